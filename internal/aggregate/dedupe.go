package aggregate

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/sells-group/intel-engine/internal/model"
)

// NormalizedMention is a mention that survived normalization.
type NormalizedMention struct {
	Type      model.EntityType
	Canonical string
	Metadata  map[string]any
	Source    model.SourceAttribution
}

// Deduplicator groups normalized mentions into unique entities: exact-match
// merge keys for structured types, similarity clustering for names.
type Deduplicator struct {
	nameSimilarityThreshold float64
}

// NewDeduplicator creates a deduplicator. Threshold zero falls back to 0.85.
func NewDeduplicator(nameSimilarityThreshold float64) *Deduplicator {
	if nameSimilarityThreshold <= 0 {
		nameSimilarityThreshold = 0.85
	}
	return &Deduplicator{nameSimilarityThreshold: nameSimilarityThreshold}
}

// Deduplicate collapses mentions into entities. Sources are combined and
// distinct original spellings tracked as variants for name entities.
func (d *Deduplicator) Deduplicate(mentions []NormalizedMention) []*model.Entity {
	byType := make(map[model.EntityType][]NormalizedMention)
	var typeOrder []model.EntityType
	for _, m := range mentions {
		if _, seen := byType[m.Type]; !seen {
			typeOrder = append(typeOrder, m.Type)
		}
		byType[m.Type] = append(byType[m.Type], m)
	}

	var entities []*model.Entity
	for _, t := range typeOrder {
		group := byType[t]
		if t == model.EntityTypeName {
			entities = append(entities, d.clusterNames(group)...)
			continue
		}
		entities = append(entities, mergeByKey(t, group)...)
	}
	return entities
}

// mergeKey returns the exact-match key for structured types.
func mergeKey(t model.EntityType, m NormalizedMention) string {
	switch t {
	case model.EntityTypeAddress:
		// street|zip|state, tolerating missing zip/state.
		zip, _ := m.Metadata["zip"].(string)
		state, _ := m.Metadata["state"].(string)
		return strings.ToLower(m.Canonical) + "|" + strings.ToLower(zip) + "|" + strings.ToLower(state)
	default:
		return strings.ToLower(strings.TrimSpace(m.Canonical))
	}
}

func mergeByKey(t model.EntityType, group []NormalizedMention) []*model.Entity {
	byKey := make(map[string]*model.Entity)
	var order []string

	for _, m := range group {
		key := mergeKey(t, m)
		e, ok := byKey[key]
		if !ok {
			e = &model.Entity{
				Type:           t,
				CanonicalValue: m.Canonical,
				Metadata:       m.Metadata,
			}
			byKey[key] = e
			order = append(order, key)
		}
		e.Sources = append(e.Sources, m.Source)
	}

	out := make([]*model.Entity, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	return out
}

// clusterNames merges name mentions whose canonical values clear the
// similarity threshold. Clustering is connected-components over the
// similarity graph (union-find), so membership does not depend on input
// order; only the representative spelling follows first appearance.
func (d *Deduplicator) clusterNames(group []NormalizedMention) []*model.Entity {
	n := len(group)
	if n == 0 {
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
			if NameSimilarity(group[i].Canonical, group[j].Canonical) >= d.nameSimilarityThreshold {
				union(i, j)
			}
		}
	}

	byRoot := make(map[int]*model.Entity)
	var order []int
	for i, m := range group {
		root := find(i)
		e, ok := byRoot[root]
		if !ok {
			e = &model.Entity{
				Type:           model.EntityTypeName,
				CanonicalValue: group[root].Canonical,
				Metadata:       group[root].Metadata,
			}
			byRoot[root] = e
			order = append(order, root)
		}
		e.Sources = append(e.Sources, m.Source)
		addVariant(e, m.Source.OriginalValue)
	}

	sort.Ints(order)
	out := make([]*model.Entity, 0, len(order))
	for _, root := range order {
		out = append(out, byRoot[root])
	}
	return out
}

func addVariant(e *model.Entity, original string) {
	for _, v := range e.Variants {
		if v == original {
			return
		}
	}
	e.Variants = append(e.Variants, original)
}

// NameSimilarity is the similarity ratio between two canonical names,
// case-insensitive, in [0,1].
func NameSimilarity(a, b string) float64 {
	return levenshtein.Similarity(strings.ToLower(a), strings.ToLower(b), nil)
}
