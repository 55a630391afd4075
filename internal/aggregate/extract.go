package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/intel-engine/internal/model"
)

// Mention is one raw, source-attributed entity sighting pulled out of a scan
// result payload, prior to normalization.
type Mention struct {
	Type   model.EntityType
	Value  string
	Source model.SourceAttribution
}

// fieldType maps a payload field name to an entity type. Matching is
// substring-based so scanner payload variations (work_email, phone_numbers,
// company_name, website_url) land on the right type.
func fieldType(key string) (model.EntityType, bool) {
	k := strings.ToLower(key)
	switch {
	case strings.Contains(k, "email"):
		return model.EntityTypeEmail, true
	case strings.Contains(k, "phone") || strings.Contains(k, "tel"):
		return model.EntityTypePhone, true
	case strings.Contains(k, "address") || strings.Contains(k, "street"):
		return model.EntityTypeAddress, true
	case strings.Contains(k, "url") || strings.Contains(k, "website") || strings.Contains(k, "link"):
		return model.EntityTypeURL, true
	case strings.Contains(k, "name"):
		return model.EntityTypeName, true
	default:
		return "", false
	}
}

// ExtractMentions pattern-matches known field names against each result's
// payload. Missing or malformed fields yield no mentions, never errors.
func ExtractMentions(records []model.ScanResultRecord) []Mention {
	var mentions []Mention
	for _, rec := range records {
		if rec.Result == nil {
			continue
		}
		mentions = append(mentions, extractFromMap(rec, rec.Result)...)
	}
	return mentions
}

func extractFromMap(rec model.ScanResultRecord, payload map[string]any) []Mention {
	// Keys are walked in sorted order so mention order, and everything
	// downstream of it, is stable across runs.
	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []Mention
	for _, key := range keys {
		val := payload[key]
		// Nested payloads are walked; their keys match the same patterns.
		if nested, ok := val.(map[string]any); ok {
			out = append(out, extractFromMap(rec, nested)...)
			continue
		}

		t, ok := fieldType(key)
		if !ok {
			continue
		}

		for _, v := range stringValues(val) {
			out = append(out, Mention{
				Type:  t,
				Value: v,
				Source: model.SourceAttribution{
					Source:        rec.Scanner,
					Confidence:    rec.Confidence,
					Timestamp:     rec.Timestamp,
					OriginalValue: v,
				},
			})
		}
	}
	return out
}

// stringValues flattens a payload value into its string forms. Non-string
// scalars are ignored except numbers for phone-like fields, which arrive as
// strings from well-behaved scanners anyway.
func stringValues(val any) []string {
	switch v := val.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{v}
	case []string:
		var out []string
		for _, s := range v {
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	case fmt.Stringer:
		return []string{v.String()}
	default:
		return nil
	}
}
