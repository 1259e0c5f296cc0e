// Package preprocess normalizes scraped text and splits it into chunks that
// fit a provider's context window.
package preprocess

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/pkoukk/tiktoken-go"

	"github.com/graphmill/graphmill/pkg/logger"
)

var (
	excessNewlines = regexp.MustCompile(`\n{3,}`)
	excessSpaces   = regexp.MustCompile(`[ \t]{2,}`)
)

// Normalize collapses runs of three or more newlines into exactly two,
// collapses runs of spaces and tabs into one, and trims surrounding
// whitespace. Paragraph boundaries survive normalization; everything
// downstream relies on "\n\n" still separating paragraphs.
func Normalize(text string) string {
	text = excessNewlines.ReplaceAllString(text, "\n\n")
	text = excessSpaces.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Estimator approximates how many tokens a piece of text will consume. When
// an encoding name is configured it counts exactly via the tokenizer;
// otherwise it falls back to a characters-per-token ratio, which
// overestimates slightly and errs on the safe side.
//
// An Estimator should be created using NewEstimator.
type Estimator struct {
	charsPerToken float64
	codec         *tiktoken.Tiktoken
}

// NewEstimatorParams contains configuration for creating an Estimator.
//
// Encoding is an optional tiktoken encoding name such as "o200k_base".
// CharsPerToken must be positive and is used whenever no encoding is set or
// the tokenizer fails to load.
type NewEstimatorParams struct {
	CharsPerToken float64
	Encoding      string
}

// NewEstimator creates an estimator. A tokenizer load failure is logged and
// degrades to the ratio estimate rather than failing construction.
func NewEstimator(params NewEstimatorParams) *Estimator {
	charsPerToken := params.CharsPerToken
	if charsPerToken <= 0 {
		charsPerToken = 4
	}

	est := &Estimator{charsPerToken: charsPerToken}
	if params.Encoding != "" {
		codec, err := tiktoken.GetEncoding(params.Encoding)
		if err != nil {
			logger.Warn("[Preprocess] Failed to load encoding, using ratio estimate", "encoding", params.Encoding, "err", err)
		} else {
			est.codec = codec
		}
	}
	return est
}

// Estimate returns the estimated token count of the text.
func (e *Estimator) Estimate(text string) int {
	if e.codec != nil {
		return len(e.codec.Encode(text, nil, nil))
	}
	return int(math.Ceil(float64(len(text)) / e.charsPerToken))
}

// Chunk splits normalized text into pieces whose estimated token count stays
// within maxTokens. Text that already fits is returned as a single chunk.
// Splitting is paragraph-first: paragraphs are packed greedily in order, a
// paragraph that alone exceeds the budget is split into sentences which are
// packed the same way, and a sentence that alone exceeds the budget is cut
// at word boundaries (rune boundaries for a single oversized word). Order is
// preserved and no non-whitespace content is dropped.
func Chunk(text string, maxTokens int, est *Estimator) []string {
	if text == "" {
		return nil
	}
	if est.Estimate(text) <= maxTokens {
		return []string{text}
	}

	var pieces []string
	for _, paragraph := range strings.Split(text, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		if est.Estimate(paragraph) <= maxTokens {
			pieces = append(pieces, paragraph)
			continue
		}
		for _, sentence := range splitIntoSentences(paragraph) {
			if est.Estimate(sentence) > maxTokens {
				pieces = append(pieces, splitOversized(sentence, maxTokens, est)...)
				continue
			}
			pieces = append(pieces, sentence)
		}
	}

	separatorTokens := est.Estimate("\n\n")

	var chunks []string
	var current strings.Builder
	currentTokens := 0
	for _, piece := range pieces {
		pieceTokens := est.Estimate(piece)
		if current.Len() > 0 && currentTokens+separatorTokens+pieceTokens > maxTokens {
			chunks = append(chunks, current.String())
			current.Reset()
			currentTokens = 0
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
			currentTokens += separatorTokens
		}
		current.WriteString(piece)
		currentTokens += pieceTokens
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// splitOversized breaks a sentence with no usable terminator into fragments
// that fit the budget, packing whole words greedily and cutting a word that
// alone exceeds the budget at rune boundaries.
func splitOversized(sentence string, maxTokens int, est *Estimator) []string {
	var fragments []string
	var current strings.Builder
	currentTokens := 0

	flush := func() {
		if current.Len() > 0 {
			fragments = append(fragments, current.String())
			current.Reset()
			currentTokens = 0
		}
	}

	for _, word := range strings.Fields(sentence) {
		wordTokens := est.Estimate(word)
		if wordTokens > maxTokens {
			flush()
			fragments = append(fragments, splitRunes(word, maxTokens, est)...)
			continue
		}
		if current.Len() > 0 && currentTokens+1+wordTokens > maxTokens {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
			currentTokens++
		}
		current.WriteString(word)
		currentTokens += wordTokens
	}
	flush()
	return fragments
}

func splitRunes(word string, maxTokens int, est *Estimator) []string {
	var fragments []string
	var current []rune
	for _, r := range word {
		if len(current) > 0 && est.Estimate(string(append(current, r))) > maxTokens {
			fragments = append(fragments, string(current))
			current = nil
		}
		current = append(current, r)
	}
	if len(current) > 0 {
		fragments = append(fragments, string(current))
	}
	return fragments
}

// splitIntoSentences breaks a paragraph at sentence terminators, keeping
// trailing punctuation and closing quotes with their sentence. A period
// directly after a digit and before a space is treated as a numeric listing
// marker, not a sentence end.
func splitIntoSentences(paragraph string) []string {
	var sentences []string
	var current strings.Builder

	for i := 0; i < len(paragraph); i++ {
		current.WriteByte(paragraph[i])

		if paragraph[i] != '.' && paragraph[i] != '!' && paragraph[i] != '?' {
			continue
		}

		if i > 0 && unicode.IsDigit(rune(paragraph[i-1])) &&
			i+1 < len(paragraph) && paragraph[i+1] == ' ' {
			continue
		}

		j := i + 1
		for j < len(paragraph) && (paragraph[j] == '.' || paragraph[j] == '!' || paragraph[j] == '?') {
			current.WriteByte(paragraph[j])
			j++
		}
		for j < len(paragraph) && (paragraph[j] == '"' || paragraph[j] == '\'' || paragraph[j] == ')' ||
			paragraph[j] == ']' || paragraph[j] == '}') {
			current.WriteByte(paragraph[j])
			j++
		}

		sentence := strings.TrimSpace(current.String())
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		current.Reset()
		i = j - 1
	}

	remaining := strings.TrimSpace(current.String())
	if remaining != "" {
		sentences = append(sentences, remaining)
	}

	return sentences
}
