package extract

import (
	"fmt"
	"strings"

	"github.com/graphmill/graphmill/pkg/ai"
	"github.com/graphmill/graphmill/pkg/common"
)

type extractedEntity struct {
	Name       string  `json:"name" jsonschema_description:"Name of the entity as it appears in the text"`
	Type       string  `json:"type" jsonschema_description:"Entity type, one of: person, organization, concept, location, technology"`
	Confidence float64 `json:"confidence" jsonschema_description:"Confidence between 0.0 and 1.0"`
	Context    string  `json:"context" jsonschema_description:"Short excerpt the entity appears in"`
}

type entitiesResponse struct {
	Entities []extractedEntity `json:"entities" jsonschema_description:"All entities found in the text"`
}

type extractedRelationship struct {
	Source        string  `json:"source" jsonschema_description:"Name of the source entity, must match a known entity"`
	Target        string  `json:"target" jsonschema_description:"Name of the target entity, must match a known entity"`
	Type          string  `json:"type" jsonschema_description:"Relationship type, one of: works_for, competes_with, influences, related_to, part_of, located_in"`
	Confidence    float64 `json:"confidence" jsonschema_description:"Confidence between 0.0 and 1.0"`
	Context       string  `json:"context" jsonschema_description:"Short excerpt supporting the relationship"`
	Bidirectional bool    `json:"bidirectional" jsonschema_description:"True when the relationship holds in both directions"`
}

type relationshipsResponse struct {
	Relationships []extractedRelationship `json:"relationships" jsonschema_description:"All relationships found between the known entities"`
}

type analysisResponse struct {
	Summary     string   `json:"summary" jsonschema_description:"Summary of the content in at most three sentences"`
	KeyInsights []string `json:"key_insights" jsonschema_description:"Key insights as short standalone statements"`
}

func parseEntities(text string) (*entitiesResponse, error) {
	var parsed entitiesResponse
	if err := ai.UnmarshalFlexible(text, &parsed); err != nil {
		return nil, &ai.ParseError{Stage: "entity extraction", Err: err}
	}
	return &parsed, nil
}

func parseRelationships(text string) (*relationshipsResponse, error) {
	var parsed relationshipsResponse
	if err := ai.UnmarshalFlexible(text, &parsed); err != nil {
		return nil, &ai.ParseError{Stage: "relationship extraction", Err: err}
	}
	return &parsed, nil
}

func parseAnalysis(text string) (*analysisResponse, error) {
	var parsed analysisResponse
	if err := ai.UnmarshalFlexible(text, &parsed); err != nil {
		return nil, &ai.ParseError{Stage: "content analysis", Err: err}
	}
	if strings.TrimSpace(parsed.Summary) == "" {
		return nil, &ai.ParseError{Stage: "content analysis", Err: fmt.Errorf("empty summary")}
	}
	return &parsed, nil
}

// coerceEntityType maps free-form model output onto the closed entity type
// set, defaulting to concept.
func coerceEntityType(raw string) common.EntityType {
	t := common.EntityType(strings.ToLower(strings.TrimSpace(raw)))
	if common.KnownEntityType(t) {
		return t
	}
	return common.EntityConcept
}

// coerceRelationType maps free-form model output onto the closed relation
// type set, defaulting to related_to.
func coerceRelationType(raw string) common.RelationType {
	t := common.RelationType(strings.ToLower(strings.TrimSpace(raw)))
	if common.KnownRelationType(t) {
		return t
	}
	return common.RelRelatedTo
}

func clampConfidence(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
