package aggregate

import (
	"github.com/sells-group/intel-engine/internal/model"
)

// defaultSourceWeights is the static reliability table for known scanner
// capabilities. Unknown capabilities fall back to the scorer's default.
var defaultSourceWeights = map[string]float64{
	"dns_records":      0.95,
	"whois_lookup":     0.90,
	"email_validation": 0.85,
	"public_records":   0.80,
	"phone_lookup":     0.80,
	"breach_database":  0.75,
	"domain_parse":     0.70,
	"social_media":     0.60,
	"search_engine":    0.50,
}

// Scorer combines per-source reliability into one confidence score per
// entity.
type Scorer struct {
	weights       map[string]float64
	defaultWeight float64
}

// NewScorer creates a scorer. Overrides are merged over the static table;
// defaultWeight zero falls back to 0.3.
func NewScorer(overrides map[string]float64, defaultWeight float64) *Scorer {
	if defaultWeight <= 0 {
		defaultWeight = 0.3
	}
	weights := make(map[string]float64, len(defaultSourceWeights)+len(overrides))
	for k, v := range defaultSourceWeights {
		weights[k] = v
	}
	for k, v := range overrides {
		weights[k] = v
	}
	return &Scorer{weights: weights, defaultWeight: defaultWeight}
}

func (s *Scorer) weight(source string) float64 {
	if w, ok := s.weights[source]; ok {
		return w
	}
	return s.defaultWeight
}

// Score computes the weighted source confidence plus capped additive
// modifiers, clamped to [0,1].
func (s *Scorer) Score(e *model.Entity) float64 {
	if len(e.Sources) == 0 {
		return 0
	}

	var weighted, total float64
	for _, src := range e.Sources {
		w := s.weight(src.Source)
		weighted += src.Confidence * w
		total += w
	}
	score := weighted / total

	// Corroboration: each extra source adds a little, capped.
	corroboration := 0.05 * float64(len(e.Sources)-1)
	if corroboration > 0.15 {
		corroboration = 0.15
	}
	score += corroboration

	// Recency: any timestamped sighting counts.
	for _, src := range e.Sources {
		if src.Timestamp != "" {
			score += 0.05
			break
		}
	}

	// Structured types carry more signal than free-text names.
	switch e.Type {
	case model.EntityTypeEmail, model.EntityTypePhone, model.EntityTypeURL, model.EntityTypeAddress:
		score += 0.05
	case model.EntityTypeName:
		score -= 0.05
	}

	// Structural validity established during normalization.
	if valid, ok := e.Metadata["valid"].(bool); ok && valid {
		score += 0.10
	}

	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
