package genai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type fakeChat struct {
	resp *openai.ChatCompletion
	err  error
	got  openai.ChatCompletionNewParams
}

func (f *fakeChat) New(_ context.Context, body openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	f.got = body
	return f.resp, f.err
}

func TestTextClient_Complete(t *testing.T) {
	t.Parallel()

	fake := &fakeChat{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "Brand ideas"}}},
	}}
	c := &TextClient{chat: fake, model: "llama3-70b-8192", temperature: 0.4}

	out, err := c.Complete(context.Background(), "sys", "usr")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "Brand ideas" {
		t.Errorf("Expected 'Brand ideas', got %q", out)
	}
	if len(fake.got.Messages) != 2 {
		t.Errorf("Expected 2 messages, got %d", len(fake.got.Messages))
	}
	if string(fake.got.Model) != "llama3-70b-8192" {
		t.Errorf("Unexpected model %q", fake.got.Model)
	}
}

func TestTextClient_Errors(t *testing.T) {
	t.Parallel()

	c := &TextClient{chat: &fakeChat{resp: &openai.ChatCompletion{}}}
	if _, err := c.Complete(context.Background(), "s", "u"); !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("Expected ErrNoChoicesReturned, got %v", err)
	}

	boom := errors.New("rate limited")
	c = &TextClient{chat: &fakeChat{err: boom}}
	if _, err := c.Complete(context.Background(), "s", "u"); !errors.Is(err, boom) {
		t.Errorf("Expected wrapped error, got %v", err)
	}

	if _, err := NewTextClient(""); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Expected ErrMissingAPIKey, got %v", err)
	}
}

func TestClients_AgainstCompatibleServer(t *testing.T) {
	t.Parallel()

	png := []byte{0x89, 'P', 'N', 'G'}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "llama3-70b-8192" {
			http.Error(w, "bad model", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"llama3-70b-8192",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Sunrise Residences"}}]}`))
	})
	mux.HandleFunc("/v1/images/generations", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"created": 1,
			"data":    []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(png)}},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	text, err := NewTextClient("test-key", WithBaseURL(srv.URL+"/v1/"), WithModel("llama3-70b-8192"))
	if err != nil {
		t.Fatalf("NewTextClient: %v", err)
	}
	out, err := text.Complete(context.Background(), "sys", "usr")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "Sunrise Residences" {
		t.Errorf("Unexpected completion %q", out)
	}

	images := NewImageClient("test-key", WithBaseURL(srv.URL+"/v1/"))
	data, err := images.Generate(context.Background(), "a house")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(data) != string(png) {
		t.Errorf("Unexpected image bytes %v", data)
	}
}

func TestImageClient_WithoutKey(t *testing.T) {
	t.Parallel()

	c := NewImageClient("")
	if _, err := c.Generate(context.Background(), "p"); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Expected ErrMissingAPIKey, got %v", err)
	}
}
