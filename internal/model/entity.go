package model

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// EntityType classifies an extracted entity mention.
type EntityType string

const (
	EntityTypeEmail   EntityType = "email"
	EntityTypePhone   EntityType = "phone"
	EntityTypeName    EntityType = "name"
	EntityTypeAddress EntityType = "address"
	EntityTypeURL     EntityType = "url"
)

// SourceAttribution is one raw, source-attributed sighting of an entity.
type SourceAttribution struct {
	Source        string  `json:"source"`
	Confidence    float64 `json:"confidence"`
	Timestamp     string  `json:"timestamp,omitempty"`
	OriginalValue string  `json:"original_value"`
}

// Entity is a deduplicated, canonical fact with aggregated confidence.
// Variants tracks alternate raw spellings (name-type entities only).
type Entity struct {
	Type            EntityType          `json:"type"`
	CanonicalValue  string              `json:"canonical_value"`
	Sources         []SourceAttribution `json:"sources"`
	Variants        []string            `json:"variants,omitempty"`
	FinalConfidence float64             `json:"final_confidence"`
	Metadata        map[string]any      `json:"metadata,omitempty"`
}

// Relationship groups related entities linked by shared sources or
// similarity into one cluster.
type Relationship struct {
	ID               string    `json:"id"`
	Members          []*Entity `json:"members"`
	RelationshipType string    `json:"relationship_type"`
	Confidence       float64   `json:"confidence"`
}

// ClusterID derives a stable identifier from the sorted member values, so
// the same cluster hashes to the same ID regardless of discovery order.
func ClusterID(members []*Entity) string {
	values := make([]string, len(members))
	for i, m := range members {
		values[i] = string(m.Type) + ":" + m.CanonicalValue
	}
	sort.Strings(values)
	sum := sha256.Sum256([]byte(strings.Join(values, "|")))
	return hex.EncodeToString(sum[:8])
}

// ScanResultRecord is one raw scanner output consumed by the aggregator.
type ScanResultRecord struct {
	Scanner    string         `json:"scanner"`
	Confidence float64        `json:"confidence"`
	Timestamp  string         `json:"timestamp,omitempty"`
	Result     map[string]any `json:"result"`
}

// AggregationSummary is the roll-up section of an aggregation report.
type AggregationSummary struct {
	TotalEntities    int                `json:"total_entities"`
	ByType           map[EntityType]int `json:"by_type"`
	HighConfidence   int                `json:"high_confidence"`
	MediumConfidence int                `json:"medium_confidence"`
	LowConfidence    int                `json:"low_confidence"`
	ClusterCount     int                `json:"cluster_count"`
	DataQualityScore float64            `json:"data_quality_score"`
}

// AggregationMetadata reports raw-vs-deduplicated counts for a run.
type AggregationMetadata struct {
	RawMentions       int     `json:"raw_mentions"`
	DroppedInvalid    int     `json:"dropped_invalid"`
	UniqueEntities    int     `json:"unique_entities"`
	DeduplicationRate float64 `json:"deduplication_rate"`
}

// AggregationReport is the complete output of one aggregation run.
type AggregationReport struct {
	Entities      []*Entity           `json:"entities"`
	Relationships []*Relationship     `json:"relationships"`
	Summary       AggregationSummary  `json:"summary"`
	Metadata      AggregationMetadata `json:"metadata"`
}
