package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/intel-engine/internal/model"
)

func scoredEntity(t model.EntityType, sources ...model.SourceAttribution) *model.Entity {
	return &model.Entity{
		Type:           t,
		CanonicalValue: "x",
		Sources:        sources,
		Metadata:       map[string]any{},
	}
}

func src(source string, confidence float64) model.SourceAttribution {
	return model.SourceAttribution{
		Source:     source,
		Confidence: confidence,
		Timestamp:  "2026-03-01T00:00:00Z",
	}
}

func TestScoreBounds(t *testing.T) {
	t.Parallel()

	s := NewScorer(nil, 0)

	assert.Zero(t, s.Score(scoredEntity(model.EntityTypeEmail)), "no sources scores zero")

	// Maxed-out inputs stay within [0,1].
	e := scoredEntity(model.EntityTypeEmail,
		src("dns_records", 1), src("whois_lookup", 1), src("email_validation", 1),
		src("public_records", 1), src("phone_lookup", 1))
	e.Metadata["valid"] = true
	got := s.Score(e)
	assert.LessOrEqual(t, got, 1.0)
	assert.Greater(t, got, 0.9)

	low := scoredEntity(model.EntityTypeName, model.SourceAttribution{Source: "search_engine", Confidence: 0})
	assert.GreaterOrEqual(t, s.Score(low), 0.0)
}

func TestScoreWeighsReliableSourcesHigher(t *testing.T) {
	t.Parallel()

	s := NewScorer(nil, 0)

	// Same confidences, swapped sources: the high confidence attached to the
	// reliable source should win the weighted mean.
	reliableHigh := scoredEntity(model.EntityTypeEmail, src("dns_records", 0.9), src("search_engine", 0.2))
	flakyHigh := scoredEntity(model.EntityTypeEmail, src("search_engine", 0.9), src("dns_records", 0.2))
	assert.Greater(t, s.Score(reliableHigh), s.Score(flakyHigh))
}

func TestScoreCorroborationBonus(t *testing.T) {
	t.Parallel()

	s := NewScorer(nil, 0)

	one := scoredEntity(model.EntityTypeEmail, src("whois_lookup", 0.8))
	two := scoredEntity(model.EntityTypeEmail, src("whois_lookup", 0.8), src("whois_lookup", 0.8))
	assert.Greater(t, s.Score(two), s.Score(one), "a second sighting raises confidence")

	// The bonus is capped: many sightings cannot push past the cap.
	many := scoredEntity(model.EntityTypeEmail,
		src("whois_lookup", 0.8), src("whois_lookup", 0.8), src("whois_lookup", 0.8),
		src("whois_lookup", 0.8), src("whois_lookup", 0.8), src("whois_lookup", 0.8),
		src("whois_lookup", 0.8), src("whois_lookup", 0.8))
	four := scoredEntity(model.EntityTypeEmail,
		src("whois_lookup", 0.8), src("whois_lookup", 0.8),
		src("whois_lookup", 0.8), src("whois_lookup", 0.8))
	assert.InDelta(t, s.Score(four), s.Score(many), 0.001)
}

func TestScoreUnknownSourceUsesDefaultWeight(t *testing.T) {
	t.Parallel()

	strict := NewScorer(nil, 0.1)
	lax := NewScorer(nil, 0.9)

	known := scoredEntity(model.EntityTypeEmail, src("dns_records", 0.9), src("mystery_scanner", 0.1))

	// A low default weight shrinks the unknown source's drag on the mean.
	assert.Greater(t, strict.Score(known), lax.Score(known))
}

func TestScoreOverridesMergeOverStaticTable(t *testing.T) {
	t.Parallel()

	s := NewScorer(map[string]float64{"search_engine": 0.95}, 0)
	boosted := scoredEntity(model.EntityTypeEmail, src("search_engine", 0.9), src("dns_records", 0.2))
	stock := NewScorer(nil, 0).Score(boosted)
	assert.Greater(t, s.Score(boosted), stock, "override shifts weight toward the overridden source")
}

func TestScoreValidityBonus(t *testing.T) {
	t.Parallel()

	s := NewScorer(nil, 0)

	plain := scoredEntity(model.EntityTypeEmail, src("whois_lookup", 0.6))
	validated := scoredEntity(model.EntityTypeEmail, src("whois_lookup", 0.6))
	validated.Metadata["valid"] = true

	assert.InDelta(t, 0.10, s.Score(validated)-s.Score(plain), 0.001)
}
