package extract

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/graphmill/graphmill/pkg/ai"
	"github.com/graphmill/graphmill/pkg/common"
	"github.com/graphmill/graphmill/pkg/preprocess"
	"github.com/graphmill/graphmill/pkg/provider"
)

type dispatcherCall struct {
	text string
	err  error
}

type fakeDispatcher struct {
	calls   []dispatcherCall
	prompts []string
	next    int
}

func (f *fakeDispatcher) Dispatch(_ context.Context, prompt string, _ ...ai.GenerateOption) (*provider.Result, int, error) {
	f.prompts = append(f.prompts, prompt)
	if f.next >= len(f.calls) {
		return nil, 0, errors.New("unexpected dispatch")
	}
	call := f.calls[f.next]
	f.next++
	if call.err != nil {
		return nil, 0, call.err
	}
	return &provider.Result{
		Provider: "openai",
		Response: &ai.Response{Text: call.text, PromptTokens: 100, CompletionTokens: 50},
		Cost:     0.001,
	}, 0, nil
}

func newTestExtractor(d Dispatcher) *Extractor {
	return NewExtractor(NewExtractorParams{
		Dispatcher:        d,
		Estimator:         preprocess.NewEstimator(preprocess.NewEstimatorParams{CharsPerToken: 4}),
		MaxTokensPerChunk: 4000,
	})
}

func TestProcessDeduplicatesByNameAndType(t *testing.T) {
	d := &fakeDispatcher{calls: []dispatcherCall{
		{text: `{"entities": [
			{"name": "Acme Corp", "type": "organization", "confidence": 0.72, "context": "a"},
			{"name": "acme corp", "type": "organization", "confidence": 0.81, "context": "b"},
			{"name": "ACME CORP", "type": "organization", "confidence": 0.65, "context": "c"}
		]}`},
	}}

	result, err := newTestExtractor(d).Process(context.Background(), common.ContentInput{
		ContentID: "c1",
		Text:      "Acme Corp does things.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The 0.65 occurrence falls below the threshold; the survivors collapse
	// to one entity carrying the highest confidence.
	if len(result.Entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(result.Entities))
	}
	if result.Entities[0].Confidence != 0.81 {
		t.Fatalf("expected confidence 0.81, got %v", result.Entities[0].Confidence)
	}
	if result.Entities[0].ID == "" {
		t.Fatalf("entity must have an id")
	}
}

func TestProcessKeepsDistinctTypesApart(t *testing.T) {
	d := &fakeDispatcher{calls: []dispatcherCall{
		{text: `{"entities": [
			{"name": "Mercury", "type": "concept", "confidence": 0.9, "context": "planet"},
			{"name": "Mercury", "type": "technology", "confidence": 0.8, "context": "project"}
		]}`},
	}}

	result, err := newTestExtractor(d).Process(context.Background(), common.ContentInput{Text: "Mercury twice."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entities) != 2 {
		t.Fatalf("same name with different types must stay separate, got %d entities", len(result.Entities))
	}
}

func TestProcessFiltersLowConfidence(t *testing.T) {
	d := &fakeDispatcher{calls: []dispatcherCall{
		{text: `{"entities": [
			{"name": "Kept", "type": "person", "confidence": 0.7, "context": ""},
			{"name": "Dropped", "type": "person", "confidence": 0.69, "context": ""}
		]}`},
	}}

	result, err := newTestExtractor(d).Process(context.Background(), common.ContentInput{Text: "two people"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entities) != 1 || result.Entities[0].Name != "Kept" {
		t.Fatalf("expected only the 0.7 entity to survive, got %v", result.Entities)
	}
}

func TestProcessCoercesUnknownTypes(t *testing.T) {
	d := &fakeDispatcher{calls: []dispatcherCall{
		{text: `{"entities": [
			{"name": "Widget", "type": "gadget", "confidence": 0.9, "context": ""}
		]}`},
	}}

	result, err := newTestExtractor(d).Process(context.Background(), common.ContentInput{Text: "a widget"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Entities[0].Type != common.EntityConcept {
		t.Fatalf("unknown type should coerce to concept, got %s", result.Entities[0].Type)
	}
}

func TestProcessFirstChunkFailureAborts(t *testing.T) {
	d := &fakeDispatcher{calls: []dispatcherCall{
		{err: &ai.AllProvidersFailed{Passes: 3, LastErr: errors.New("boom")}},
	}}

	result, err := newTestExtractor(d).Process(context.Background(), common.ContentInput{Text: "whatever"})
	if err == nil {
		t.Fatalf("expected an error")
	}
	var failed *ai.AllProvidersFailed
	if !errors.As(err, &failed) {
		t.Fatalf("expected AllProvidersFailed in chain, got %v", err)
	}
	if !result.Failed() {
		t.Fatalf("result must be marked failed")
	}
	if len(result.Entities) != 0 || len(result.Relationships) != 0 {
		t.Fatalf("failed result must be empty")
	}
	if result.Processing.Provider != common.FailedProvider {
		t.Fatalf("expected provider %q, got %q", common.FailedProvider, result.Processing.Provider)
	}
}

func TestProcessRelationshipEndpointResolution(t *testing.T) {
	d := &fakeDispatcher{calls: []dispatcherCall{
		{text: `{"entities": [
			{"name": "Jane Doe", "type": "person", "confidence": 0.9, "context": ""},
			{"name": "Acme Corp", "type": "organization", "confidence": 0.85, "context": ""}
		]}`},
		{text: `{"relationships": [
			{"source": "jane doe", "target": "Acme Corp", "type": "works_for", "confidence": 0.8, "context": "", "bidirectional": false},
			{"source": "Jane Doe", "target": "Ghost Inc", "type": "works_for", "confidence": 0.9, "context": "", "bidirectional": false},
			{"source": "Jane Doe", "target": "Acme Corp", "type": "works_for", "confidence": 0.5, "context": "", "bidirectional": false}
		]}`},
	}}

	result, err := newTestExtractor(d).Process(context.Background(), common.ContentInput{
		Text:    "Jane Doe works for Acme Corp.",
		Options: common.ContentOptions{IncludeRelationships: true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The unknown endpoint and the sub-threshold candidate are dropped.
	if len(result.Relationships) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(result.Relationships))
	}
	rel := result.Relationships[0]
	if rel.Type != common.RelWorksFor || rel.Confidence != 0.8 {
		t.Fatalf("unexpected relationship: %+v", rel)
	}

	ids := map[string]bool{}
	for _, entity := range result.Entities {
		ids[entity.ID] = true
	}
	if !ids[rel.SourceEntityID] || !ids[rel.TargetEntityID] {
		t.Fatalf("relationship endpoints must reference result entities")
	}
}

func TestProcessRelationshipParseFailureDegrades(t *testing.T) {
	d := &fakeDispatcher{calls: []dispatcherCall{
		{text: `{"entities": [
			{"name": "Jane Doe", "type": "person", "confidence": 0.9, "context": ""},
			{"name": "Acme Corp", "type": "organization", "confidence": 0.85, "context": ""}
		]}`},
		{text: `this is not json at all, sorry [[[`},
	}}

	result, err := newTestExtractor(d).Process(context.Background(), common.ContentInput{
		Text:    "Jane Doe works for Acme Corp.",
		Options: common.ContentOptions{IncludeRelationships: true},
	})
	if err != nil {
		t.Fatalf("parse failure must not fail the job: %v", err)
	}
	if len(result.Entities) != 2 {
		t.Fatalf("entities must survive relationship parse failure")
	}
	if len(result.Relationships) != 0 {
		t.Fatalf("expected empty relationships, got %d", len(result.Relationships))
	}
}

func TestProcessAnalysisFailureIsNonFatal(t *testing.T) {
	d := &fakeDispatcher{calls: []dispatcherCall{
		{text: `{"entities": [{"name": "Thing", "type": "concept", "confidence": 0.9, "context": ""}]}`},
		{err: errors.New("analysis backend down")},
	}}

	result, err := newTestExtractor(d).Process(context.Background(), common.ContentInput{
		Text:    "a thing",
		Options: common.ContentOptions{IncludeAnalysis: true},
	})
	if err != nil {
		t.Fatalf("analysis failure must not fail the job: %v", err)
	}
	if result.Summary != "" {
		t.Fatalf("expected no summary")
	}
	if len(result.Entities) != 1 {
		t.Fatalf("entities must survive analysis failure")
	}
}

func TestProcessAccounting(t *testing.T) {
	d := &fakeDispatcher{calls: []dispatcherCall{
		{text: `{"entities": [{"name": "Thing", "type": "concept", "confidence": 0.9, "context": ""}]}`},
	}}

	result, err := newTestExtractor(d).Process(context.Background(), common.ContentInput{Text: "a thing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Processing.Provider != "openai" {
		t.Fatalf("expected provider openai, got %s", result.Processing.Provider)
	}
	if result.Processing.TotalCost != 0.001 {
		t.Fatalf("expected cost 0.001, got %v", result.Processing.TotalCost)
	}
}

func TestComputeQuality(t *testing.T) {
	entities := []common.Entity{
		{Confidence: 0.8},
		{Confidence: 0.6},
	}
	relationships := []common.Relationship{{Confidence: 0.7}}

	quality := computeQuality(entities, relationships, 1)
	if math.Abs(quality.ExtractionConfidence-0.7) > 1e-9 {
		t.Fatalf("expected mean confidence 0.7, got %v", quality.ExtractionConfidence)
	}
	// 3 findings out of 10.
	if math.Abs(quality.CompletenessScore-0.3) > 1e-9 {
		t.Fatalf("expected completeness 0.3, got %v", quality.CompletenessScore)
	}
	// 2 entities against 2 expected per chunk.
	if quality.ContentPreservationRatio != 1 {
		t.Fatalf("expected preservation 1, got %v", quality.ContentPreservationRatio)
	}

	empty := computeQuality(nil, nil, 3)
	if empty.ExtractionConfidence != 0 || empty.CompletenessScore != 0 || empty.ContentPreservationRatio != 0 {
		t.Fatalf("empty result must score zero, got %+v", empty)
	}
}

func TestDedupeEntitiesIdempotent(t *testing.T) {
	entities := []common.Entity{
		{ID: "1", Name: "Acme Corp", Type: common.EntityOrganization, Confidence: 0.72},
		{ID: "2", Name: "acme corp", Type: common.EntityOrganization, Confidence: 0.81},
		{ID: "3", Name: "Jane", Type: common.EntityPerson, Confidence: 0.9},
	}

	once := dedupeEntities(entities)
	if len(once) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(once))
	}
	twice := dedupeEntities(once)
	if len(twice) != len(once) {
		t.Fatalf("dedupe must be idempotent")
	}
	for i := range once {
		if once[i].ID != twice[i].ID || once[i].Confidence != twice[i].Confidence {
			t.Fatalf("second pass changed entity %d", i)
		}
	}
}
