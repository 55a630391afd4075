package aggregate

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/intel-engine/internal/config"
	"github.com/sells-group/intel-engine/internal/model"
)

// Aggregator drives the pipeline: extract raw mentions, normalize per type,
// deduplicate, score, link, summarize. It is a pure, single-call pipeline
// over an in-memory batch; normalization runs per-type in parallel but the
// output never depends on goroutine interleaving.
type Aggregator struct {
	cfg    config.AggregateConfig
	dedupe *Deduplicator
	scorer *Scorer
	linker *Linker
}

// NewAggregator creates an aggregator from config.
func NewAggregator(cfg config.AggregateConfig) *Aggregator {
	return &Aggregator{
		cfg:    cfg,
		dedupe: NewDeduplicator(cfg.NameSimilarityThreshold),
		scorer: NewScorer(cfg.SourceWeights, cfg.DefaultSourceWeight),
		linker: NewLinker(cfg.LinkThreshold),
	}
}

// Aggregate consolidates a batch of scan result records into a deduplicated,
// confidence-scored entity graph. Malformed records and invalid mentions are
// dropped and counted, never raised.
func (a *Aggregator) Aggregate(ctx context.Context, records []model.ScanResultRecord) (*model.AggregationReport, error) {
	mentions := ExtractMentions(records)

	normalized, dropped, err := a.normalizeAll(ctx, mentions)
	if err != nil {
		return nil, err
	}

	entities := a.dedupe.Deduplicate(normalized)
	for _, e := range entities {
		e.FinalConfidence = a.scorer.Score(e)
	}

	relationships := a.linker.Link(entities)

	report := &model.AggregationReport{
		Entities:      entities,
		Relationships: relationships,
		Summary:       summarize(entities, relationships),
		Metadata:      buildMetadata(len(mentions), dropped, len(entities)),
	}

	zap.L().Info("aggregate: batch consolidated",
		zap.Int("records", len(records)),
		zap.Int("raw_mentions", len(mentions)),
		zap.Int("dropped_invalid", dropped),
		zap.Int("entities", len(entities)),
		zap.Int("clusters", len(relationships)),
		zap.Float64("quality", report.Summary.DataQualityScore),
	)

	return report, nil
}

// normalizeAll runs the type-specific normalizers, one goroutine per type.
// Results are reassembled in each type's first-appearance order so the
// output is identical to a serial pass.
func (a *Aggregator) normalizeAll(ctx context.Context, mentions []Mention) ([]NormalizedMention, int, error) {
	byType := make(map[model.EntityType][]Mention)
	var typeOrder []model.EntityType
	for _, m := range mentions {
		if _, seen := byType[m.Type]; !seen {
			typeOrder = append(typeOrder, m.Type)
		}
		byType[m.Type] = append(byType[m.Type], m)
	}

	results := make(map[model.EntityType][]NormalizedMention, len(typeOrder))
	droppedByType := make(map[model.EntityType]int, len(typeOrder))
	var mu sync.Mutex

	g, _ := errgroup.WithContext(ctx)
	for _, t := range typeOrder {
		group := byType[t]
		g.Go(func() error {
			var out []NormalizedMention
			var dropped int
			for _, m := range group {
				norm := Normalize(m.Type, m.Value, a.cfg.DefaultRegion)
				if !norm.Valid {
					dropped++
					zap.L().Debug("aggregate: dropped invalid mention",
						zap.String("type", string(m.Type)),
						zap.String("value", m.Value),
						zap.String("reason", norm.Reason),
					)
					continue
				}
				meta := norm.Metadata
				if meta == nil {
					meta = map[string]any{}
				}
				meta["valid"] = true
				out = append(out, NormalizedMention{
					Type:      m.Type,
					Canonical: norm.CanonicalValue,
					Metadata:  meta,
					Source:    m.Source,
				})
			}
			mu.Lock()
			results[t] = out
			droppedByType[t] = dropped
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	var all []NormalizedMention
	var dropped int
	for _, t := range typeOrder {
		all = append(all, results[t]...)
		dropped += droppedByType[t]
	}
	return all, dropped, nil
}

// Confidence bucket boundaries for the summary histogram.
const (
	highConfidence   = 0.8
	mediumConfidence = 0.5
)

func summarize(entities []*model.Entity, relationships []*model.Relationship) model.AggregationSummary {
	s := model.AggregationSummary{
		TotalEntities: len(entities),
		ByType:        make(map[model.EntityType]int),
		ClusterCount:  len(relationships),
	}

	for _, e := range entities {
		s.ByType[e.Type]++
		switch {
		case e.FinalConfidence >= highConfidence:
			s.HighConfidence++
		case e.FinalConfidence >= mediumConfidence:
			s.MediumConfidence++
		default:
			s.LowConfidence++
		}
	}

	s.DataQualityScore = dataQualityScore(s)
	return s
}

// dataQualityScore mixes high/medium confidence ratios with a small bonus
// for entity type diversity.
func dataQualityScore(s model.AggregationSummary) float64 {
	if s.TotalEntities == 0 {
		return 0
	}
	highRatio := float64(s.HighConfidence) / float64(s.TotalEntities)
	mediumRatio := float64(s.MediumConfidence) / float64(s.TotalEntities)

	diversity := 0.025 * float64(len(s.ByType))
	if diversity > 0.1 {
		diversity = 0.1
	}

	return clamp01(0.7*highRatio + 0.3*mediumRatio + diversity)
}

func buildMetadata(rawMentions, dropped, unique int) model.AggregationMetadata {
	meta := model.AggregationMetadata{
		RawMentions:    rawMentions,
		DroppedInvalid: dropped,
		UniqueEntities: unique,
	}
	valid := rawMentions - dropped
	if valid > 0 {
		meta.DeduplicationRate = 1 - float64(unique)/float64(valid)
	}
	return meta
}
