package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

const classifyPrompt = `You classify help-center search queries. Reply with one JSON object and nothing else:
{"technical_level": <integer 1-10, 1 = non-technical>,
 "format": "free_text" | "steps" | "list" | "table",
 "topics": [<zero or more of: %s>],
 "urgency": "normal" | "elevated" | "high",
 "complexity": <number 0-1>}`

// QueryClassifier asks a chat model to classify a query.
type QueryClassifier struct {
	client *OllamaClient
	topics []string
}

// NewQueryClassifier creates a classifier restricted to the given topic names.
func NewQueryClassifier(client *OllamaClient, topics []string) *QueryClassifier {
	return &QueryClassifier{client: client, topics: topics}
}

type classification struct {
	TechnicalLevel int      `json:"technical_level"`
	Format         string   `json:"format"`
	Topics         []string `json:"topics"`
	Urgency        string   `json:"urgency"`
	Complexity     float64  `json:"complexity"`
}

// Classify returns the model's opinion. Fields the model left out are zero.
func (c *QueryClassifier) Classify(ctx context.Context, query string) (*models.QueryAnalysis, error) {
	content, err := c.client.Chat(ctx, []Message{
		{Role: "system", Content: fmt.Sprintf(classifyPrompt, strings.Join(c.topics, ", "))},
		{Role: "user", Content: query},
	}, true)
	if err != nil {
		return nil, fmt.Errorf("classify query: %w", err)
	}

	raw, ok := extractObject(content)
	if !ok {
		return nil, fmt.Errorf("classify query: no JSON object in reply")
	}
	var cl classification
	if err := json.Unmarshal([]byte(raw), &cl); err != nil {
		return nil, fmt.Errorf("classify query: %w", err)
	}
	return &models.QueryAnalysis{
		TechnicalLevel: cl.TechnicalLevel,
		Format:         models.AnswerFormat(strings.ToLower(cl.Format)),
		Topics:         c.knownTopics(cl.Topics),
		Urgency:        models.Urgency(strings.ToLower(cl.Urgency)),
		Complexity:     cl.Complexity,
	}, nil
}

// knownTopics drops topics outside the configured vocabulary.
func (c *QueryClassifier) knownTopics(topics []string) []string {
	if len(c.topics) == 0 {
		return topics
	}
	allowed := make(map[string]struct{}, len(c.topics))
	for _, t := range c.topics {
		allowed[strings.ToLower(t)] = struct{}{}
	}
	var out []string
	for _, t := range topics {
		t = strings.ToLower(strings.TrimSpace(t))
		if _, ok := allowed[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// extractObject returns the outermost {...} span; models sometimes wrap JSON
// in prose or code fences.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
