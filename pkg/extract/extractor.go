// Package extract turns normalized web content into a typed knowledge
// fragment: entities, relationships between them, and an optional analysis.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/graphmill/graphmill/pkg/ai"
	"github.com/graphmill/graphmill/pkg/common"
	"github.com/graphmill/graphmill/pkg/logger"
	"github.com/graphmill/graphmill/pkg/preprocess"
	"github.com/graphmill/graphmill/pkg/provider"
)

const (
	defaultConfidenceThreshold   = 0.7
	defaultRelationshipThreshold = 0.6
	defaultMaxChunks             = 10
	defaultMaxInsights           = 5
	extractionTemperature        = 0.2
)

// Dispatcher issues one logical generation request with provider fallback.
// It returns the successful result, the number of extra attempts used, or an
// aggregated failure.
type Dispatcher interface {
	Dispatch(ctx context.Context, prompt string, opts ...ai.GenerateOption) (*provider.Result, int, error)
}

// Extractor runs the extraction pipeline for one content item: chunk, pull
// entities per chunk, dedupe, pull relationships over the deduped set, and
// optionally analyze. It holds no per-request state and is safe for
// concurrent use.
//
// An Extractor should be created using NewExtractor.
type Extractor struct {
	dispatcher            Dispatcher
	estimator             *preprocess.Estimator
	maxTokensPerChunk     int
	confidenceThreshold   float64
	relationshipThreshold float64
	maxChunks             int
	maxInsights           int
}

// NewExtractorParams contains the dependencies and tuning of an Extractor.
//
// MaxTokensPerChunk is the chunk budget and should leave headroom below the
// smallest configured provider context. Thresholds and counts default to
// sensible values when zero.
type NewExtractorParams struct {
	Dispatcher            Dispatcher
	Estimator             *preprocess.Estimator
	MaxTokensPerChunk     int
	ConfidenceThreshold   float64
	RelationshipThreshold float64
	MaxChunks             int
	MaxInsights           int
}

// NewExtractor creates an extractor.
func NewExtractor(params NewExtractorParams) *Extractor {
	e := &Extractor{
		dispatcher:            params.Dispatcher,
		estimator:             params.Estimator,
		maxTokensPerChunk:     params.MaxTokensPerChunk,
		confidenceThreshold:   params.ConfidenceThreshold,
		relationshipThreshold: params.RelationshipThreshold,
		maxChunks:             params.MaxChunks,
		maxInsights:           params.MaxInsights,
	}
	if e.confidenceThreshold <= 0 {
		e.confidenceThreshold = defaultConfidenceThreshold
	}
	if e.relationshipThreshold <= 0 {
		e.relationshipThreshold = defaultRelationshipThreshold
	}
	if e.maxChunks <= 0 {
		e.maxChunks = defaultMaxChunks
	}
	if e.maxInsights <= 0 {
		e.maxInsights = defaultMaxInsights
	}
	return e
}

// accounting accumulates provider usage across the pipeline's dispatches.
type accounting struct {
	provider  string
	totalCost float64
	retries   int
}

func (a *accounting) record(result *provider.Result, retries int) {
	a.provider = result.Provider
	a.totalCost += result.Cost
	a.retries += retries
}

// Process runs the full pipeline for one content item. A failure of the very
// first entity dispatch aborts the extraction: the returned result is zeroed
// with its provider marked failed, and the error describes why. Failures on
// later chunks, relationship extraction and analysis degrade instead of
// aborting, so a partial result with an empty relationship list is a valid
// outcome.
func (e *Extractor) Process(ctx context.Context, input common.ContentInput) (*common.ProcessingResult, error) {
	start := time.Now()

	normalized := preprocess.Normalize(input.Text)
	chunks := preprocess.Chunk(normalized, e.maxTokensPerChunk, e.estimator)

	maxChunks := e.maxChunks
	if input.Options.MaxChunks > 0 {
		maxChunks = input.Options.MaxChunks
	}
	if len(chunks) == 0 {
		result := &common.ProcessingResult{
			Entities:      []common.Entity{},
			Relationships: []common.Relationship{},
			Processing:    common.ProcessingStats{ProcessingTime: time.Since(start)},
		}
		return result, nil
	}
	if len(chunks) > maxChunks {
		logger.Warn("[Extract] Content exceeds chunk limit, truncating",
			"contentId", input.ContentID, "chunks", len(chunks), "limit", maxChunks)
		chunks = chunks[:maxChunks]
	}

	threshold := e.confidenceThreshold
	if input.Options.ConfidenceThreshold != nil {
		threshold = *input.Options.ConfidenceThreshold
	}

	var acct accounting

	candidates, err := e.extractEntities(ctx, input.Title, chunks, &acct)
	if err != nil {
		logger.Error("[Extract] Extraction aborted",
			"contentId", input.ContentID, "err", err)
		return failedResult(time.Since(start), &acct), err
	}

	kept := make([]common.Entity, 0, len(candidates))
	for _, entity := range candidates {
		if entity.Confidence >= threshold {
			kept = append(kept, entity)
		}
	}
	entities := dedupeEntities(kept)

	result := &common.ProcessingResult{
		Entities:      entities,
		Relationships: []common.Relationship{},
	}

	// Relationship extraction runs once over the deduped entity set with the
	// full normalized content, not a chunk, so cross-chunk relationships
	// stay visible.
	if input.Options.IncludeRelationships && len(entities) >= 2 {
		result.Relationships = e.extractRelationships(ctx, entities, normalized, &acct)
	}

	if input.Options.IncludeAnalysis {
		if analysis := e.analyze(ctx, input.Title, normalized, &acct); analysis != nil {
			result.Summary = analysis.Summary
			result.KeyInsights = analysis.KeyInsights
		}
	}

	result.Quality = computeQuality(result.Entities, result.Relationships, len(chunks))
	result.Processing = common.ProcessingStats{
		Provider:       acct.provider,
		ProcessingTime: time.Since(start),
		TotalCost:      acct.totalCost,
		RetryCount:     acct.retries,
	}

	logger.Info("[Extract] Extraction completed",
		"contentId", input.ContentID,
		"entities", len(result.Entities),
		"relationships", len(result.Relationships),
		"chunks", len(chunks),
		"provider", acct.provider,
		"cost", acct.totalCost)

	return result, nil
}

// extractEntities pulls entity candidates from every chunk. The first chunk
// is load-bearing: when its dispatch fails the whole extraction fails. Later
// chunks degrade to zero entities on dispatch or parse failure.
func (e *Extractor) extractEntities(
	ctx context.Context,
	title string,
	chunks []string,
	acct *accounting,
) ([]common.Entity, error) {
	entityTypes := strings.Join([]string{
		string(common.EntityPerson),
		string(common.EntityOrganization),
		string(common.EntityConcept),
		string(common.EntityLocation),
		string(common.EntityTechnology),
	}, ", ")

	var candidates []common.Entity
	for i, chunk := range chunks {
		prompt := ai.RenderPrompt(ai.EntityExtractPrompt, map[string]string{
			"entity_types": entityTypes,
			"title":        title,
			"content":      chunk,
		})

		result, retries, err := e.dispatcher.Dispatch(ctx, prompt,
			ai.WithTemperature(extractionTemperature),
			ai.WithFormat("entity_extraction", "Entities found in a content fragment",
				ai.GenerateSchema(entitiesResponse{})),
		)
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("entity extraction failed on first chunk: %w", err)
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			logger.Warn("[Extract] Entity extraction failed for chunk, continuing", "chunk", i, "err", err)
			continue
		}
		acct.record(result, retries)

		parsed, err := parseEntities(result.Response.Text)
		if err != nil {
			logger.Warn("[Extract] Entity response unparsable, chunk yields nothing", "chunk", i, "err", err)
			continue
		}

		for _, raw := range parsed.Entities {
			name := common.NormalizeName(raw.Name)
			if name == "" {
				continue
			}
			id, err := gonanoid.New()
			if err != nil {
				return nil, fmt.Errorf("failed to generate entity id: %w", err)
			}
			candidates = append(candidates, common.Entity{
				ID:         id,
				Name:       name,
				Type:       coerceEntityType(raw.Type),
				Confidence: clampConfidence(raw.Confidence),
				Context:    raw.Context,
			})
		}
	}

	return candidates, nil
}

// extractRelationships runs the single relationship dispatch. Every failure
// mode degrades to an empty list.
func (e *Extractor) extractRelationships(
	ctx context.Context,
	entities []common.Entity,
	content string,
	acct *accounting,
) []common.Relationship {
	relationTypes := strings.Join([]string{
		string(common.RelWorksFor),
		string(common.RelCompetesWith),
		string(common.RelInfluences),
		string(common.RelRelatedTo),
		string(common.RelPartOf),
		string(common.RelLocatedIn),
	}, ", ")

	names := make([]string, len(entities))
	for i, entity := range entities {
		names[i] = fmt.Sprintf("- %s (%s)", entity.Name, entity.Type)
	}

	prompt := ai.RenderPrompt(ai.RelationshipPrompt, map[string]string{
		"relation_types": relationTypes,
		"entities":       strings.Join(names, "\n"),
		"content":        content,
	})

	result, retries, err := e.dispatcher.Dispatch(ctx, prompt,
		ai.WithTemperature(extractionTemperature),
		ai.WithFormat("relationship_extraction", "Relationships between known entities",
			ai.GenerateSchema(relationshipsResponse{})),
	)
	if err != nil {
		logger.Warn("[Extract] Relationship extraction failed, result has no relationships", "err", err)
		return []common.Relationship{}
	}
	acct.record(result, retries)

	parsed, err := parseRelationships(result.Response.Text)
	if err != nil {
		logger.Warn("[Extract] Relationship response unparsable, result has no relationships", "err", err)
		return []common.Relationship{}
	}

	index := entityNameIndex(entities)
	relationships := make([]common.Relationship, 0, len(parsed.Relationships))
	for _, raw := range parsed.Relationships {
		confidence := clampConfidence(raw.Confidence)
		if confidence < e.relationshipThreshold {
			continue
		}

		sourceID, sourceOK := index[strings.ToLower(common.NormalizeName(raw.Source))]
		targetID, targetOK := index[strings.ToLower(common.NormalizeName(raw.Target))]
		if !sourceOK || !targetOK {
			logger.Debug("[Extract] Dropping relationship with unknown endpoint",
				"source", raw.Source, "target", raw.Target)
			continue
		}
		if sourceID == targetID {
			continue
		}

		id, err := gonanoid.New()
		if err != nil {
			logger.Warn("[Extract] Failed to generate relationship id", "err", err)
			continue
		}
		relationships = append(relationships, common.Relationship{
			ID:             id,
			SourceEntityID: sourceID,
			TargetEntityID: targetID,
			Type:           coerceRelationType(raw.Type),
			Confidence:     confidence,
			Context:        raw.Context,
			Bidirectional:  raw.Bidirectional,
		})
	}

	return relationships
}

// analyze runs the optional analysis dispatch. Any failure is logged and
// swallowed; analysis never affects the extraction outcome.
func (e *Extractor) analyze(
	ctx context.Context,
	title string,
	content string,
	acct *accounting,
) *analysisResponse {
	prompt := ai.RenderPrompt(ai.AnalysisPrompt, map[string]string{
		"max_insights": fmt.Sprintf("%d", e.maxInsights),
		"title":        title,
		"content":      content,
	})

	result, retries, err := e.dispatcher.Dispatch(ctx, prompt,
		ai.WithTemperature(extractionTemperature),
		ai.WithFormat("content_analysis", "Summary and key insights of a content item",
			ai.GenerateSchema(analysisResponse{})),
	)
	if err != nil {
		logger.Warn("[Extract] Analysis failed, continuing without it", "err", err)
		return nil
	}
	acct.record(result, retries)

	parsed, err := parseAnalysis(result.Response.Text)
	if err != nil {
		logger.Warn("[Extract] Analysis response unparsable, continuing without it", "err", err)
		return nil
	}
	if len(parsed.KeyInsights) > e.maxInsights {
		parsed.KeyInsights = parsed.KeyInsights[:e.maxInsights]
	}
	return parsed
}

// failedResult builds the zeroed result an aborted extraction hands to the
// store.
func failedResult(elapsed time.Duration, acct *accounting) *common.ProcessingResult {
	return &common.ProcessingResult{
		Entities:      []common.Entity{},
		Relationships: []common.Relationship{},
		Processing: common.ProcessingStats{
			Provider:       common.FailedProvider,
			ProcessingTime: elapsed,
			TotalCost:      acct.totalCost,
			RetryCount:     acct.retries,
		},
	}
}
