// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"

	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

// scoringPromptTmpl is the prompt sent to the Claude API for each catalog
// entry. It instructs the model to score the entry on each requested
// dimension and answer with bare JSON.
var scoringPromptTmpl = template.Must(template.New("scoring").Parse(`You are a research relevance scoring system. Score the following paper on each requested dimension.

Dimensions: {{.Dimensions}}

For each dimension return:
- dimension: the dimension name, exactly as requested
- score: a float between 0.0 and 1.0
- confidence: a float between 0.0 and 1.0 indicating how certain you are

Respond with a JSON object containing a "scores" array with one element per dimension. Do not include any text outside the JSON object.

Example response:
{"scores": [{"dimension": "novelty", "score": 0.8, "confidence": 0.9}]}

Title: {{.Title}}

Abstract:
{{.Abstract}}
`))

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

// ClaudeScorer calls the Claude Messages API to score catalog entries.
type ClaudeScorer struct {
	APIKey string
	Model  string
	Client *http.Client
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type scoreEnvelope struct {
	Scores []types.DimensionScore `json:"scores"`
}

// Score sends one entry's title and abstract with the scoring prompt and
// parses the per-dimension results.
func (c *ClaudeScorer) Score(ctx context.Context, p types.Paper, dimensions []string) ([]types.DimensionScore, error) {
	var prompt bytes.Buffer
	err := scoringPromptTmpl.Execute(&prompt, map[string]string{
		"Dimensions": strings.Join(dimensions, ", "),
		"Title":      p.Title,
		"Abstract":   p.Abstract,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering scoring prompt: %w", err)
	}

	reqBody := claudeRequest{
		Model:     c.Model,
		MaxTokens: 1024,
		Messages: []claudeMessage{
			{Role: "user", Content: prompt.String()},
		},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, string(body))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return nil, fmt.Errorf("decoding Claude response: %w", err)
	}

	for _, block := range cResp.Content {
		if block.Type != "text" {
			continue
		}
		var env scoreEnvelope
		if err := json.Unmarshal([]byte(block.Text), &env); err != nil {
			return nil, fmt.Errorf("parsing scoring response JSON: %w", err)
		}
		if len(env.Scores) == 0 {
			return nil, fmt.Errorf("Claude API returned no scores")
		}
		return env.Scores, nil
	}
	return nil, fmt.Errorf("no text content in Claude API response")
}
