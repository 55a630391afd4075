package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intel-engine/internal/model"
)

func record(scanner string, confidence float64, result map[string]any) model.ScanResultRecord {
	return model.ScanResultRecord{
		Scanner:    scanner,
		Confidence: confidence,
		Timestamp:  "2026-03-01T00:00:00Z",
		Result:     result,
	}
}

func TestExtractMentionsFieldMapping(t *testing.T) {
	t.Parallel()

	records := []model.ScanResultRecord{
		record("website_scrape", 0.8, map[string]any{
			"contact_email": "jane@acme.com",
			"phone_number":  "650-253-0000",
			"company_name":  "Acme Corp",
			"website_url":   "https://acme.com",
			"street":        "123 Main St",
			"irrelevant":    "ignored",
			"count":         42,
		}),
	}

	mentions := ExtractMentions(records)
	byType := make(map[model.EntityType][]string)
	for _, m := range mentions {
		byType[m.Type] = append(byType[m.Type], m.Value)
	}

	assert.Equal(t, []string{"jane@acme.com"}, byType[model.EntityTypeEmail])
	assert.Equal(t, []string{"650-253-0000"}, byType[model.EntityTypePhone])
	assert.Equal(t, []string{"Acme Corp"}, byType[model.EntityTypeName])
	assert.Equal(t, []string{"https://acme.com"}, byType[model.EntityTypeURL])
	assert.Equal(t, []string{"123 Main St"}, byType[model.EntityTypeAddress])
	require.Len(t, mentions, 5, "non-matching and non-string fields are skipped")
}

func TestExtractMentionsCarriesAttribution(t *testing.T) {
	t.Parallel()

	mentions := ExtractMentions([]model.ScanResultRecord{
		record("whois", 0.9, map[string]any{"email": "admin@acme.com"}),
	})
	require.Len(t, mentions, 1)
	m := mentions[0]
	assert.Equal(t, "whois", m.Source.Source)
	assert.InDelta(t, 0.9, m.Source.Confidence, 0.001)
	assert.Equal(t, "admin@acme.com", m.Source.OriginalValue)
	assert.Equal(t, "2026-03-01T00:00:00Z", m.Source.Timestamp)
}

func TestExtractMentionsListsAndNesting(t *testing.T) {
	t.Parallel()

	mentions := ExtractMentions([]model.ScanResultRecord{
		record("directory", 0.7, map[string]any{
			"emails": []string{"a@x.com", "", "b@x.com"},
			"links":  []any{"https://x.com", 7, "https://y.com"},
			"owner": map[string]any{
				"full_name": "John Smith",
			},
		}),
	})

	byType := make(map[model.EntityType]int)
	for _, m := range mentions {
		byType[m.Type]++
	}
	assert.Equal(t, 2, byType[model.EntityTypeEmail], "blank list items dropped")
	assert.Equal(t, 2, byType[model.EntityTypeURL], "non-string list items dropped")
	assert.Equal(t, 1, byType[model.EntityTypeName], "nested maps are walked")
}

func TestExtractMentionsStableOrder(t *testing.T) {
	t.Parallel()

	records := []model.ScanResultRecord{
		record("website_scrape", 0.8, map[string]any{
			"website_url":   "https://acme.com",
			"phone_number":  "650-253-0000",
			"company_name":  "Acme Corp",
			"contact_email": "jane@acme.com",
		}),
	}

	first := ExtractMentions(records)
	require.Len(t, first, 4)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, ExtractMentions(records), "payload keys are walked in a fixed order")
	}

	// Sorted key order, independent of map insertion order.
	values := make([]string, len(first))
	for i, m := range first {
		values[i] = m.Value
	}
	assert.Equal(t, []string{"Acme Corp", "jane@acme.com", "650-253-0000", "https://acme.com"}, values)
}

func TestExtractMentionsNilResult(t *testing.T) {
	t.Parallel()

	assert.Empty(t, ExtractMentions([]model.ScanResultRecord{
		{Scanner: "broken", Confidence: 0.5},
	}))
	assert.Empty(t, ExtractMentions(nil))
}
