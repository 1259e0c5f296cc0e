package common

import "time"

// EntityType classifies an extracted entity. The set is closed: extraction
// output naming any other type is coerced to EntityConcept.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityConcept      EntityType = "concept"
	EntityLocation     EntityType = "location"
	EntityTechnology   EntityType = "technology"
)

// KnownEntityType reports whether t is one of the closed entity types.
func KnownEntityType(t EntityType) bool {
	switch t {
	case EntityPerson, EntityOrganization, EntityConcept, EntityLocation, EntityTechnology:
		return true
	}
	return false
}

// RelationType classifies a relationship between two entities. As with
// entity types the set is closed; unknown types are coerced to RelRelatedTo.
type RelationType string

const (
	RelWorksFor     RelationType = "works_for"
	RelCompetesWith RelationType = "competes_with"
	RelInfluences   RelationType = "influences"
	RelRelatedTo    RelationType = "related_to"
	RelPartOf       RelationType = "part_of"
	RelLocatedIn    RelationType = "located_in"
)

// KnownRelationType reports whether t is one of the closed relation types.
func KnownRelationType(t RelationType) bool {
	switch t {
	case RelWorksFor, RelCompetesWith, RelInfluences, RelRelatedTo, RelPartOf, RelLocatedIn:
		return true
	}
	return false
}

// SourceSpan is a character range in the original content an entity was
// extracted from, when the model reported one.
type SourceSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Entity is a node in the extracted knowledge fragment. The ID is an opaque
// handle assigned at creation and never reused; identity for deduplication
// is the pair (lowercased name, type).
type Entity struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Type       EntityType        `json:"type"`
	Confidence float64           `json:"confidence"`
	Context    string            `json:"context,omitempty"`
	SourceSpan *SourceSpan       `json:"source_span,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// DedupeKey returns the identity key used for deduplication.
func (e Entity) DedupeKey() string {
	return DedupeKey(e.Name, e.Type)
}

// Relationship is a directed edge between two entities of the same result
// set. Both endpoint IDs must reference entities present in that set; a
// candidate whose endpoints cannot be resolved is dropped before storage.
type Relationship struct {
	ID             string            `json:"id"`
	SourceEntityID string            `json:"source_entity_id"`
	TargetEntityID string            `json:"target_entity_id"`
	Type           RelationType      `json:"type"`
	Confidence     float64           `json:"confidence"`
	Context        string            `json:"context,omitempty"`
	Bidirectional  bool              `json:"bidirectional"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// QualityMetrics are computed from the final result, not by the model.
// They are heuristic scores; the exact formulas reward entity count and are
// configurable, not validated science.
type QualityMetrics struct {
	ExtractionConfidence     float64 `json:"extraction_confidence"`
	CompletenessScore        float64 `json:"completeness_score"`
	ContentPreservationRatio float64 `json:"content_preservation_ratio"`
}

// ProcessingStats records how a result was produced: which provider served
// the final successful calls, total wall time, total estimated cost and the
// number of provider attempts beyond the first.
type ProcessingStats struct {
	Provider       string        `json:"provider"`
	ProcessingTime time.Duration `json:"processing_time"`
	TotalCost      float64       `json:"total_cost"`
	RetryCount     int           `json:"retry_count"`
}

// FailedProvider is the sentinel value of ProcessingStats.Provider marking a
// result produced by an aborted extraction. Such a result has empty
// collections and zeroed quality.
const FailedProvider = "failed"

// ProcessingResult is the aggregate output of one extraction job. It is
// immutable once returned; its lifecycle ends at hand-off to the result
// store.
type ProcessingResult struct {
	Entities      []Entity        `json:"entities"`
	Relationships []Relationship  `json:"relationships"`
	Summary       string          `json:"summary,omitempty"`
	KeyInsights   []string        `json:"key_insights,omitempty"`
	Quality       QualityMetrics  `json:"quality"`
	Processing    ProcessingStats `json:"processing"`
}

// Failed reports whether the result marks an aborted extraction.
func (r *ProcessingResult) Failed() bool {
	return len(r.Entities) == 0 && r.Processing.Provider == FailedProvider
}

// ContentOptions tune one extraction request. Zero values fall back to the
// orchestrator defaults.
type ContentOptions struct {
	IncludeRelationships bool     `json:"include_relationships"`
	IncludeAnalysis      bool     `json:"include_analysis"`
	ConfidenceThreshold  *float64 `json:"confidence_threshold,omitempty"`
	MaxChunks            int      `json:"max_chunks,omitempty"`
	TimeoutMs            int64    `json:"timeout_ms,omitempty"`
}

// ContentInput is one content item handed over by the scraping collaborator
// once a page's markdown content is available.
type ContentInput struct {
	SessionID   string         `json:"session_id"`
	ContentID   string         `json:"content_id"`
	Text        string         `json:"text"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Options     ContentOptions `json:"options"`
}
