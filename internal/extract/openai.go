package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/guptaanant682/memorybank-backend/internal/domain"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
	"github.com/guptaanant682/memorybank-backend/internal/platform/openai"
)

const extractionSystemPrompt = `You extract knowledge from text. Identify named entities ` +
	`(people, organizations, products, places) and key topics (subjects the text is about). ` +
	`Report each with a confidence between 0 and 1. Only include items actually present in the text.`

var extractionSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"mentions"},
	"properties": map[string]any{
		"mentions": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"label", "kind", "confidence"},
				"properties": map[string]any{
					"label":      map[string]any{"type": "string"},
					"kind":       map[string]any{"type": "string", "enum": []string{"entity", "topic"}},
					"confidence": map[string]any{"type": "number"},
				},
			},
		},
	},
}

// OpenAIExtractor calls the structured-output endpoint per chunk.
type OpenAIExtractor struct {
	log    *logger.Logger
	client openai.Client
}

func NewOpenAIExtractor(log *logger.Logger, client openai.Client) *OpenAIExtractor {
	return &OpenAIExtractor{
		log:    log.With("service", "OpenAIExtractor"),
		client: client,
	}
}

func (e *OpenAIExtractor) Extract(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, nil
	}
	raw, err := e.client.GenerateJSON(ctx, extractionSystemPrompt, text, "chunk_extraction", extractionSchema)
	if err != nil {
		return Result{}, fmt.Errorf("extract mentions: %w", err)
	}

	var res Result
	items, _ := raw["mentions"].([]any)
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			continue
		}
		label, _ := obj["label"].(string)
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		kind, _ := obj["kind"].(string)
		if kind != domain.ConceptKindEntity {
			kind = domain.ConceptKindTopic
		}
		conf, _ := obj["confidence"].(float64)
		if conf <= 0 || conf > 1 {
			conf = 0.5
		}
		res.Mentions = append(res.Mentions, Mention{Label: label, Kind: kind, Confidence: conf})
	}
	res.Cooccurrences = PairsOf(res.Mentions)
	return res, nil
}
