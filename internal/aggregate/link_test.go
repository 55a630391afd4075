package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intel-engine/internal/model"
)

func linkable(t model.EntityType, canonical string, confidence float64, meta map[string]any, sources ...string) *model.Entity {
	e := &model.Entity{
		Type:            t,
		CanonicalValue:  canonical,
		FinalConfidence: confidence,
		Metadata:        meta,
	}
	for _, s := range sources {
		e.Sources = append(e.Sources, model.SourceAttribution{Source: s, Confidence: 0.8})
	}
	return e
}

func TestLinkSharedSourcesAndDomain(t *testing.T) {
	t.Parallel()

	l := NewLinker(0.5)

	a := linkable(model.EntityTypeEmail, "jane@acme.com", 0.9,
		map[string]any{"domain": "acme.com"}, "whois_lookup", "website_scrape")
	b := linkable(model.EntityTypeEmail, "info@acme.com", 0.8,
		map[string]any{"domain": "acme.com"}, "whois_lookup", "website_scrape")
	unrelated := linkable(model.EntityTypeEmail, "bob@other.org", 0.7,
		map[string]any{"domain": "other.org"}, "search_engine")

	clusters := l.Link([]*model.Entity{a, b, unrelated})
	require.Len(t, clusters, 1, "two shared sources plus shared domain clears the threshold")
	cluster := clusters[0]
	require.Len(t, cluster.Members, 2)
	assert.Contains(t, cluster.Members, a)
	assert.Contains(t, cluster.Members, b)
	assert.NotEmpty(t, cluster.ID)
}

func TestLinkBelowThresholdProducesNoClusters(t *testing.T) {
	t.Parallel()

	l := NewLinker(0.5)

	a := linkable(model.EntityTypeEmail, "a@x.com", 0.9, map[string]any{"domain": "x.com"}, "whois_lookup")
	b := linkable(model.EntityTypeEmail, "b@y.com", 0.8, map[string]any{"domain": "y.com"}, "search_engine")

	assert.Empty(t, l.Link([]*model.Entity{a, b}))
	assert.Empty(t, l.Link([]*model.Entity{a}), "singletons never cluster")
	assert.Empty(t, l.Link(nil))
}

func TestLinkRelationshipTypeInference(t *testing.T) {
	t.Parallel()

	l := NewLinker(0.3)

	t.Run("name variants", func(t *testing.T) {
		t.Parallel()
		a := linkable(model.EntityTypeName, "John Smith", 0.8, nil, "directory", "website_scrape")
		b := linkable(model.EntityTypeName, "Jon Smith", 0.7, nil, "directory", "website_scrape")
		clusters := l.Link([]*model.Entity{a, b})
		require.Len(t, clusters, 1)
		assert.Equal(t, "name_variants", clusters[0].RelationshipType)
	})

	t.Run("person contact", func(t *testing.T) {
		t.Parallel()
		name := linkable(model.EntityTypeName, "Jane Doe", 0.8, nil, "whois_lookup", "directory")
		email := linkable(model.EntityTypeEmail, "jane@acme.com", 0.9,
			map[string]any{"domain": "acme.com"}, "whois_lookup", "directory")
		clusters := l.Link([]*model.Entity{name, email})
		require.Len(t, clusters, 1)
		assert.Equal(t, "person_contact", clusters[0].RelationshipType)
	})

	t.Run("contact methods", func(t *testing.T) {
		t.Parallel()
		email := linkable(model.EntityTypeEmail, "jane@acme.com", 0.9,
			map[string]any{"domain": "acme.com"}, "whois_lookup", "directory")
		phone := linkable(model.EntityTypePhone, "+16502530000", 0.8,
			map[string]any{"region": "US"}, "whois_lookup", "directory")
		clusters := l.Link([]*model.Entity{email, phone})
		require.Len(t, clusters, 1)
		assert.Equal(t, "contact_methods", clusters[0].RelationshipType)
	})
}

func TestLinkClusterConfidence(t *testing.T) {
	t.Parallel()

	l := NewLinker(0.3)
	a := linkable(model.EntityTypeEmail, "a@acme.com", 0.8, map[string]any{"domain": "acme.com"}, "whois_lookup", "dns_records")
	b := linkable(model.EntityTypeEmail, "b@acme.com", 0.6, map[string]any{"domain": "acme.com"}, "whois_lookup", "dns_records")

	clusters := l.Link([]*model.Entity{a, b})
	require.Len(t, clusters, 1)
	// Mean 0.7 plus the size bonus for two members.
	assert.InDelta(t, 0.8, clusters[0].Confidence, 0.001)
	assert.LessOrEqual(t, clusters[0].Confidence, 1.0)
}

func TestLinkClusterIDStableAcrossOrder(t *testing.T) {
	t.Parallel()

	l := NewLinker(0.3)
	a := linkable(model.EntityTypeEmail, "a@acme.com", 0.8, map[string]any{"domain": "acme.com"}, "whois_lookup", "dns_records")
	b := linkable(model.EntityTypeEmail, "b@acme.com", 0.6, map[string]any{"domain": "acme.com"}, "whois_lookup", "dns_records")

	forward := l.Link([]*model.Entity{a, b})
	reversed := l.Link([]*model.Entity{b, a})
	require.Len(t, forward, 1)
	require.Len(t, reversed, 1)
	assert.Equal(t, forward[0].ID, reversed[0].ID)
}
