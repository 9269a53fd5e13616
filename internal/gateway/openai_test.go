package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/veridex/veridex/internal/model"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

func completionBody(content string) string {
	raw, _ := json.Marshal(content)
	return fmt.Sprintf(`{"id":"cmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
		"choices":[{"index":0,"message":{"role":"assistant","content":%s},"finish_reason":"stop"}],
		"usage":{"prompt_tokens":10,"completion_tokens":20,"total_tokens":30}}`, raw)
}

// fakeOpenAI serves scripted chat completion responses in order.
func fakeOpenAI(t *testing.T, handler http.HandlerFunc) (*OpenAIClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewOpenAIClient(model.LLMConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/v1",
		Model:      "gpt-4o-mini",
		Timeout:    5 * time.Second,
		MaxRetries: 1,
	}, "")
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}
	return client, srv
}

func TestCompleteJSONParsesStructuredReply(t *testing.T) {
	var sawJSONMode atomic.Bool
	client, _ := fakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object" {
			sawJSONMode.Store(true)
		}
		fmt.Fprint(w, completionBody(`{"answer":"yes","count":3}`))
	})

	var out struct {
		Answer string `json:"answer"`
		Count  int    `json:"count"`
	}
	usage, err := client.CompleteJSON(context.Background(), Request{System: "sys", Prompt: "q"}, &out)
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if out.Answer != "yes" || out.Count != 3 {
		t.Errorf("out = %+v", out)
	}
	if usage.TotalTokens != 30 {
		t.Errorf("usage = %+v, want 30 total tokens", usage)
	}
	if !sawJSONMode.Load() {
		t.Error("request did not ask for JSON mode")
	}
}

func TestCompleteJSONStripsCodeFences(t *testing.T) {
	client, _ := fakeOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, completionBody("```json\n{\"answer\":\"fenced\"}\n```"))
	})

	var out struct {
		Answer string `json:"answer"`
	}
	if _, err := client.CompleteJSON(context.Background(), Request{Prompt: "q"}, &out); err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if out.Answer != "fenced" {
		t.Errorf("answer = %q", out.Answer)
	}
}

func TestCompleteJSONRepairRetry(t *testing.T) {
	var calls atomic.Int32
	var repairPrompt atomic.Value
	client, _ := fakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if n == 1 {
			fmt.Fprint(w, completionBody("Sure! Here is the JSON you asked for."))
			return
		}
		repairPrompt.Store(req.Messages[1].Content)
		fmt.Fprint(w, completionBody(`{"answer":"repaired"}`))
	})

	var out struct {
		Answer string `json:"answer"`
	}
	usage, err := client.CompleteJSON(context.Background(), Request{Prompt: "q"}, &out)
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if out.Answer != "repaired" {
		t.Errorf("answer = %q", out.Answer)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (original plus one repair)", calls.Load())
	}
	// Both calls bill.
	if usage.TotalTokens != 60 {
		t.Errorf("usage total = %d, want 60 across both calls", usage.TotalTokens)
	}
	prompt, _ := repairPrompt.Load().(string)
	if !strings.Contains(prompt, "not a valid JSON object") {
		t.Errorf("repair prompt missing corrective instruction: %q", prompt)
	}
}

func TestCompleteJSONRepairExhausted(t *testing.T) {
	var calls atomic.Int32
	client, _ := fakeOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, completionBody("still not JSON"))
	})

	var out struct{}
	_, err := client.CompleteJSON(context.Background(), Request{Prompt: "q"}, &out)
	if !errors.Is(err, ErrStructuredOutput) {
		t.Fatalf("err = %v, want ErrStructuredOutput", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want exactly one repair attempt", calls.Load())
	}
}

func TestCompleteJSONClassifiesRateLimit(t *testing.T) {
	client, _ := fakeOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited","type":"requests"}}`)
	})

	var out struct{}
	_, err := client.CompleteJSON(context.Background(), Request{Prompt: "q"}, &out)
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("err = %v, want ErrThrottled", err)
	}
}

func TestCompleteJSONRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":{"message":"upstream blip","type":"server_error"}}`)
			return
		}
		fmt.Fprint(w, completionBody(`{"answer":"recovered"}`))
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(model.LLMConfig{
		APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini",
		Timeout: 5 * time.Second, MaxRetries: 2,
	}, "")
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}

	var out struct {
		Answer string `json:"answer"`
	}
	if _, err := client.CompleteJSON(context.Background(), Request{Prompt: "q"}, &out); err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if out.Answer != "recovered" {
		t.Errorf("answer = %q", out.Answer)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	if _, err := NewOpenAIClient(model.LLMConfig{}, ""); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestSecondaryModelOverride(t *testing.T) {
	client, err := NewOpenAIClient(model.LLMConfig{APIKey: "k", Model: "gpt-4o-mini"}, "gpt-4o")
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}
	if client.Name() != "gpt-4o" {
		t.Errorf("name = %q, want the override", client.Name())
	}
}

func TestStripFences(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tc := range cases {
		if got := stripFences(tc.in); got != tc.want {
			t.Errorf("stripFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBackoffDelayBounded(t *testing.T) {
	base, max := time.Second, 20*time.Second
	if d := backoffDelay(0, base, max); d != time.Second {
		t.Errorf("attempt 0 = %v", d)
	}
	if d := backoffDelay(2, base, max); d != 4*time.Second {
		t.Errorf("attempt 2 = %v", d)
	}
	if d := backoffDelay(10, base, max); d != max {
		t.Errorf("attempt 10 = %v, want capped at %v", d, max)
	}
}
