package aggregate

import (
	"sort"

	"github.com/sells-group/intel-engine/internal/model"
)

// Linker pairwise-scores entities and unions linked pairs into clusters.
type Linker struct {
	linkThreshold float64
}

// NewLinker creates a linker. Threshold zero falls back to 0.5.
func NewLinker(linkThreshold float64) *Linker {
	if linkThreshold <= 0 {
		linkThreshold = 0.5
	}
	return &Linker{linkThreshold: linkThreshold}
}

// pairScore computes the relationship score for one unordered pair,
// capped at 1.0.
func pairScore(a, b *model.Entity) float64 {
	score := 0.2 * float64(sharedSources(a, b))

	switch {
	case a.Type == model.EntityTypeEmail && b.Type == model.EntityTypeEmail:
		if da, ok := a.Metadata["domain"].(string); ok {
			if db, ok := b.Metadata["domain"].(string); ok && da == db {
				score += 0.3
			}
		}
	case a.Type == model.EntityTypeName && b.Type == model.EntityTypeName:
		if sim := NameSimilarity(a.CanonicalValue, b.CanonicalValue); sim > 0.7 {
			score += 0.4 * sim
		}
	case a.Type == model.EntityTypePhone && b.Type == model.EntityTypePhone:
		if ra, ok := a.Metadata["region"].(string); ok {
			if rb, ok := b.Metadata["region"].(string); ok && ra == rb {
				score += 0.2
			}
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

func sharedSources(a, b *model.Entity) int {
	seen := make(map[string]bool)
	for _, s := range a.Sources {
		seen[s.Source] = true
	}
	counted := make(map[string]bool)
	shared := 0
	for _, s := range b.Sources {
		if seen[s.Source] && !counted[s.Source] {
			counted[s.Source] = true
			shared++
		}
	}
	return shared
}

// Link builds the link graph over all unordered entity pairs and returns
// the connected components of size two or more as relationship clusters.
func (l *Linker) Link(entities []*model.Entity) []*model.Relationship {
	n := len(entities)
	if n < 2 {
		return nil
	}

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			if rb < ra {
				ra, rb = rb, ra
			}
			parent[rb] = ra
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if pairScore(entities[i], entities[j]) > l.linkThreshold {
				union(i, j)
			}
		}
	}

	members := make(map[int][]*model.Entity)
	var order []int
	for i, e := range entities {
		root := find(i)
		if _, ok := members[root]; !ok {
			order = append(order, root)
		}
		members[root] = append(members[root], e)
	}
	sort.Ints(order)

	var clusters []*model.Relationship
	for _, root := range order {
		group := members[root]
		if len(group) < 2 {
			continue
		}
		clusters = append(clusters, &model.Relationship{
			ID:               model.ClusterID(group),
			Members:          group,
			RelationshipType: inferRelationshipType(group),
			Confidence:       clusterConfidence(group),
		})
	}
	return clusters
}

// inferRelationshipType classifies a cluster by its member type composition.
func inferRelationshipType(members []*model.Entity) string {
	types := make(map[model.EntityType]bool)
	for _, m := range members {
		types[m.Type] = true
	}

	switch {
	case len(types) == 1 && types[model.EntityTypeName]:
		return "name_variants"
	case len(types) == 2 && types[model.EntityTypeEmail] && types[model.EntityTypeName]:
		return "person_contact"
	case len(types) == 2 && types[model.EntityTypeEmail] && types[model.EntityTypePhone]:
		return "contact_methods"
	default:
		return "related_entities"
	}
}

// clusterConfidence is the mean member confidence plus a capped size bonus,
// clamped to 1.0.
func clusterConfidence(members []*model.Entity) float64 {
	var sum float64
	for _, m := range members {
		sum += m.FinalConfidence
	}
	mean := sum / float64(len(members))

	bonus := 0.05 * float64(len(members))
	if bonus > 0.2 {
		bonus = 0.2
	}
	return clamp01(mean + bonus)
}
