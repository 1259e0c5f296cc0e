package extract

import "github.com/graphmill/graphmill/pkg/common"

// computeQuality derives the heuristic quality scores from the final result.
// Confidence is the mean entity confidence, completeness rewards total
// finding count, preservation relates entity count to how much content was
// processed. All scores live in [0, 1].
func computeQuality(entities []common.Entity, relationships []common.Relationship, chunkCount int) common.QualityMetrics {
	var quality common.QualityMetrics

	if len(entities) > 0 {
		sum := 0.0
		for _, entity := range entities {
			sum += entity.Confidence
		}
		quality.ExtractionConfidence = sum / float64(len(entities))
	}

	findings := float64(len(entities) + len(relationships))
	quality.CompletenessScore = min(findings/10, 1)

	expected := max(2*chunkCount, 1)
	quality.ContentPreservationRatio = min(float64(len(entities))/float64(expected), 1)

	return quality
}
