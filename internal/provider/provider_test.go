// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

func TestClaudeScorerScore(t *testing.T) {
	var gotReq claudeRequest
	var gotKey, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Error(err)
		}
		fmt.Fprint(w, `{"content": [{"type": "text", "text":
			"{\"scores\": [{\"dimension\": \"novelty\", \"score\": 0.8, \"confidence\": 0.9}, {\"dimension\": \"rigor\", \"score\": 0.6, \"confidence\": 0.7}]}"
		}]}`)
	}))
	defer srv.Close()
	oldURL := claudeAPIURL
	claudeAPIURL = srv.URL
	defer func() { claudeAPIURL = oldURL }()

	c := &ClaudeScorer{APIKey: "key-1", Model: "claude-test"}
	p := types.Paper{Title: "A Paper", Abstract: "About things."}
	scores, err := c.Score(context.Background(), p, []string{"novelty", "rigor"})
	if err != nil {
		t.Fatal(err)
	}

	if gotKey != "key-1" || gotVersion == "" {
		t.Errorf("headers: key=%q version=%q", gotKey, gotVersion)
	}
	if gotReq.Model != "claude-test" || len(gotReq.Messages) != 1 {
		t.Errorf("request = %+v", gotReq)
	}
	prompt := gotReq.Messages[0].Content
	if !strings.Contains(prompt, "novelty, rigor") || !strings.Contains(prompt, "A Paper") {
		t.Errorf("prompt missing fields:\n%s", prompt)
	}

	if len(scores) != 2 || scores[0].Dimension != "novelty" || scores[0].Score != 0.8 {
		t.Errorf("scores = %+v", scores)
	}
}

func TestClaudeScorerAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	oldURL := claudeAPIURL
	claudeAPIURL = srv.URL
	defer func() { claudeAPIURL = oldURL }()

	c := &ClaudeScorer{APIKey: "k", Model: "m"}
	_, err := c.Score(context.Background(), types.Paper{Title: "t"}, []string{"novelty"})
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("err = %v, want status error", err)
	}
}

func TestClaudeScorerEmptyScores(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content": [{"type": "text", "text": "{\"scores\": []}"}]}`)
	}))
	defer srv.Close()
	oldURL := claudeAPIURL
	claudeAPIURL = srv.URL
	defer func() { claudeAPIURL = oldURL }()

	c := &ClaudeScorer{}
	if _, err := c.Score(context.Background(), types.Paper{Title: "t"}, []string{"novelty"}); err == nil {
		t.Fatal("expected error for empty score list")
	}
}

func TestOpenAIEmbedderEmbed(t *testing.T) {
	var gotAuth string
	var gotReq embeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Error(err)
		}
		// Out-of-order indices must land in input order.
		fmt.Fprint(w, `{"data": [
			{"index": 1, "embedding": [0.4, 0.5]},
			{"index": 0, "embedding": [0.1, 0.2]}
		]}`)
	}))
	defer srv.Close()
	oldURL := openAIEmbeddingsURL
	openAIEmbeddingsURL = srv.URL
	defer func() { openAIEmbeddingsURL = oldURL }()

	e := &OpenAIEmbedder{APIKey: "key-2", Model: "text-embedding-test"}
	vectors, err := e.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer key-2" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotReq.Model != "text-embedding-test" || len(gotReq.Input) != 2 {
		t.Errorf("request = %+v", gotReq)
	}
	if vectors[0][0] != 0.1 || vectors[1][0] != 0.4 {
		t.Errorf("vectors not reordered by index: %v", vectors)
	}
}

func TestOpenAIEmbedderCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": [{"index": 0, "embedding": [0.1]}]}`)
	}))
	defer srv.Close()
	oldURL := openAIEmbeddingsURL
	openAIEmbeddingsURL = srv.URL
	defer func() { openAIEmbeddingsURL = oldURL }()

	e := &OpenAIEmbedder{}
	if _, err := e.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error for missing vectors")
	}
}

func TestOpenAIEmbedderBatchCap(t *testing.T) {
	e := &OpenAIEmbedder{}
	texts := make([]string, e.MaxBatchSize()+1)
	for i := range texts {
		texts[i] = "x"
	}
	if _, err := e.Embed(context.Background(), texts); err == nil {
		t.Fatal("expected error above the provider cap")
	}
	if got, err := e.Embed(context.Background(), nil); got != nil || err != nil {
		t.Errorf("empty input: %v, %v", got, err)
	}
}
