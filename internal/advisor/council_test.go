package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"consensus-trader/internal/config"
)

type recordingSink struct {
	mu           sync.Mutex
	interactions []Interaction
}

func (s *recordingSink) RecordInteraction(ctx context.Context, interaction Interaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions = append(s.interactions, interaction)
}

func completionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(body); err != nil {
			t.Errorf("写入模拟应答失败: %v", err)
		}
	}))
}

func advisorConfig(name, baseURL string) config.AdvisorConfig {
	return config.AdvisorConfig{
		Name:    name,
		BaseURL: baseURL + "/v1",
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}
}

func TestCollect_GathersBatchesInConfigOrder(t *testing.T) {
	alpha := completionServer(t, `{"analysis": "看多", "trades": []}`)
	defer alpha.Close()
	beta := completionServer(t, "```json\n{\"analysis\": \"观望\", \"trades\": []}\n```")
	defer beta.Close()

	sink := &recordingSink{}
	council, err := NewCouncil([]config.AdvisorConfig{
		advisorConfig("alpha", alpha.URL),
		advisorConfig("beta", beta.URL),
	}, sink, nil)
	if err != nil {
		t.Fatalf("NewCouncil returned error: %v", err)
	}
	if council.Size() != 2 {
		t.Fatalf("unexpected council size: %d", council.Size())
	}

	batches := council.Collect(context.Background(), "prompt")
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if batches[0].SourceID != "alpha" || batches[1].SourceID != "beta" {
		t.Errorf("batches must follow config order: %s, %s", batches[0].SourceID, batches[1].SourceID)
	}
	if batches[1].Analysis != "观望" {
		t.Errorf("fenced response not parsed: %+v", batches[1])
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.interactions) != 2 {
		t.Errorf("every source interaction must be recorded, got %d", len(sink.interactions))
	}
	for _, interaction := range sink.interactions {
		if !interaction.Success {
			t.Errorf("expected successful interaction for %s", interaction.Source)
		}
	}
}

func TestCollect_FailedSourceIsolated(t *testing.T) {
	healthy := completionServer(t, `{"analysis": "ok", "trades": []}`)
	defer healthy.Close()
	// 返回空 choices，触发不可重试的失败。
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices": []}`)
	}))
	defer broken.Close()

	sink := &recordingSink{}
	council, err := NewCouncil([]config.AdvisorConfig{
		advisorConfig("broken", broken.URL),
		advisorConfig("healthy", healthy.URL),
	}, sink, nil)
	if err != nil {
		t.Fatalf("NewCouncil returned error: %v", err)
	}

	batches := council.Collect(context.Background(), "prompt")
	if len(batches) != 1 {
		t.Fatalf("expected the healthy source to survive, got %d batches", len(batches))
	}
	if batches[0].SourceID != "healthy" {
		t.Errorf("unexpected surviving source: %s", batches[0].SourceID)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.interactions) != 2 {
		t.Fatalf("failures must be recorded too, got %d interactions", len(sink.interactions))
	}
	var sawFailure bool
	for _, interaction := range sink.interactions {
		if interaction.Source == "broken" && !interaction.Success {
			sawFailure = true
			if interaction.Error == "" {
				t.Errorf("failed interaction must carry the error")
			}
		}
	}
	if !sawFailure {
		t.Errorf("broken source's failure not recorded")
	}
}

func TestCollect_UnparsableResponseIsolated(t *testing.T) {
	garbage := completionServer(t, "抱歉，我无法给出建议。")
	defer garbage.Close()

	council, err := NewCouncil([]config.AdvisorConfig{
		advisorConfig("garbage", garbage.URL),
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewCouncil returned error: %v", err)
	}

	if batches := council.Collect(context.Background(), "prompt"); len(batches) != 0 {
		t.Fatalf("unparsable response must yield no batch, got %d", len(batches))
	}
}

func TestNewSource_RequiresCredentialsAndModel(t *testing.T) {
	if _, err := NewSource(config.AdvisorConfig{Name: "x", Model: "m"}, nil); err == nil {
		t.Errorf("expected error without api key")
	}
	if _, err := NewSource(config.AdvisorConfig{Name: "x", APIKey: "k"}, nil); err == nil {
		t.Errorf("expected error without model")
	}
}

func TestBuildPrompt(t *testing.T) {
	full := BuildPrompt("prefix", "market", "account")
	if want := "prefix\n\nmarketaccount\n" + OutputFormat + "\n"; full != want {
		t.Errorf("unexpected full prompt:\n%q", full)
	}

	bare := BuildPrompt("", "market", "")
	if want := "market\n" + OutputFormat + "\n"; bare != want {
		t.Errorf("empty sections must be omitted:\n%q", bare)
	}
}
