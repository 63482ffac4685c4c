package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// serve starts a server that answers path with h and 404s everything else.
func serve(t *testing.T, path string, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func tags(names ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models := make([]map[string]string, len(names))
		for i, n := range names {
			models[i] = map[string]string{"name": n, "digest": "sha256:" + n}
		}
		json.NewEncoder(w).Encode(map[string]any{"models": models})
	}
}

func reply(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{Message: Message{Role: "assistant", Content: content}})
	}
}

var hi = []Message{{Role: "user", Content: "hi"}}

func TestIsRunning(t *testing.T) {
	up := serve(t, "/api/version", func(w http.ResponseWriter, r *http.Request) {})
	if !up.IsRunning(context.Background()) {
		t.Error("IsRunning = false for a server with an empty version body")
	}

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	if New(srv.URL).IsRunning(context.Background()) {
		t.Error("IsRunning = true for a closed server")
	}
}

func TestListModels(t *testing.T) {
	c := serve(t, "/api/tags", tags("qwen2.5:7b", "llama3.2:latest", "phi3.5:latest"))
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	want := []string{"qwen2.5:7b", "llama3.2:latest", "phi3.5:latest"}
	if strings.Join(models, ",") != strings.Join(want, ",") {
		t.Errorf("ListModels = %v, want %v", models, want)
	}

	if !c.HasModel(context.Background(), "qwen2.5") {
		t.Error("HasModel(qwen2.5) = false with qwen2.5:7b installed")
	}
	if c.HasModel(context.Background(), "mistral") {
		t.Error("HasModel(mistral) = true")
	}
}

func TestChat_PlainText(t *testing.T) {
	c := serve(t, "/api/chat", reply("I'm 72 and I live alone."))
	got, err := c.Chat(context.Background(), "qwen2.5", hi, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "I'm 72 and I live alone." {
		t.Errorf("Chat = %q", got)
	}
}

func TestChat_JSONSchema(t *testing.T) {
	var captured chatRequest
	answer := reply(`{"identity_language":{"age":{"value":72,"confidence":0.9}}}`)
	c := serve(t, "/api/chat", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		answer(w, r)
	})
	c.options = &Options{Seed: 7}

	schema := &Schema{
		Type: "object",
		Properties: map[string]SchemaProperty{
			"identity_language": {
				Type: "object",
				Properties: map[string]SchemaProperty{
					"age": {Type: "object", Description: "age in years"},
				},
			},
		},
	}
	got, err := c.Chat(context.Background(), "qwen2.5", hi, schema)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	format, ok := captured.Format.(map[string]any)
	if !ok {
		t.Fatalf("format = %T, want a schema object", captured.Format)
	}
	props, _ := format["properties"].(map[string]any)
	if format["type"] != "object" || props["identity_language"] == nil {
		t.Errorf("format = %v", format)
	}
	if captured.Options == nil || captured.Options.Seed != 7 {
		t.Errorf("options = %+v, want seed 7", captured.Options)
	}
	if !json.Valid([]byte(got)) {
		t.Errorf("reply is not JSON: %q", got)
	}
}

func TestChat_ErrorBody(t *testing.T) {
	c := serve(t, "/api/chat", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	})
	_, err := c.Chat(context.Background(), "missing", hi, nil)
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Errorf("err = %v, want response body included", err)
	}
}

func TestPullModel_Progress(t *testing.T) {
	c := serve(t, "/api/pull", func(w http.ResponseWriter, r *http.Request) {
		var req pullRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Name != "qwen2.5" {
			t.Errorf("pull model = %q, want qwen2.5", req.Name)
		}
		enc := json.NewEncoder(w)
		for _, done := range []int64{500, 1000} {
			enc.Encode(PullProgress{Status: "downloading", Total: 1000, Completed: done})
		}
		enc.Encode(PullProgress{Status: "success"})
	})

	var seen []string
	err := c.PullModel(context.Background(), "qwen2.5", func(p PullProgress) {
		seen = append(seen, p.Status)
	})
	if err != nil {
		t.Fatalf("PullModel: %v", err)
	}
	if len(seen) != 3 || seen[2] != "success" {
		t.Errorf("progress = %v", seen)
	}
}

func TestVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/version" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"version":"0.6.2"}`))
	}))
	defer srv.Close()

	v, err := New(srv.URL).Version(context.Background())
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v != "0.6.2" {
		t.Errorf("version = %q, want %q", v, "0.6.2")
	}
}

func TestChat_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Chat(context.Background(), "qwen2.5", hi, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.Code != http.StatusServiceUnavailable || se.Op != "chat" {
		t.Errorf("status error = %+v", se)
	}
}

func TestChat_TruncatedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"role":"assistant","content":"{\"identity_lang"},"done_reason":"length"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Chat(context.Background(), "qwen2.5", hi, nil)
	if err == nil || !strings.Contains(err.Error(), "truncated") {
		t.Errorf("err = %v, want truncation error", err)
	}
}

func TestChat_KeepAlive(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.Write([]byte(`{"message":{"role":"assistant","content":"ok"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithKeepAlive("10m"))
	if _, err := c.Chat(context.Background(), "qwen2.5", hi, nil); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if captured.KeepAlive != "10m" {
		t.Errorf("keep_alive = %q, want %q", captured.KeepAlive, "10m")
	}
	if captured.Stream {
		t.Error("stream = true, want false")
	}
}

func TestPullModel_StreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		enc.Encode(PullProgress{Status: "pulling manifest"})
		enc.Encode(PullProgress{Error: "pull model manifest: file does not exist"})
	}))
	defer srv.Close()

	err := New(srv.URL).PullModel(context.Background(), "nope", nil)
	if err == nil || !strings.Contains(err.Error(), "file does not exist") {
		t.Errorf("err = %v, want stream error", err)
	}
}

func TestModelMatches(t *testing.T) {
	tests := []struct {
		have, want string
		match      bool
	}{
		{"qwen2.5:7b", "qwen2.5:7b", true},
		{"qwen2.5:7b", "qwen2.5", true},
		{"qwen2.5:14b", "qwen2.5:7b", false},
		{"qwen2.5-coder:7b", "qwen2.5", false},
	}
	for _, tt := range tests {
		if got := modelMatches(tt.have, tt.want); got != tt.match {
			t.Errorf("modelMatches(%q, %q) = %v, want %v", tt.have, tt.want, got, tt.match)
		}
	}
}
