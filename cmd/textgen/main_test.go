package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"generate", "serve", "models", "schema"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeTestFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newChatServer(t *testing.T, captured *map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if captured != nil {
			if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
				t.Errorf("decode body: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello from the stub"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 7, "completion_tokens": 4, "total_tokens": 11}
		}`)
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(t *testing.T, baseURL string) string {
	t.Helper()
	return writeTestFile(t, "textgen.yaml", `
providers:
  local:
    type: openai
    api_key: sk-test
    base_url: `+baseURL+`/v1
    default_model: gpt-4o-mini
generation:
  max_retries: 0
  max_tokens: 32
logging:
  level: error
`)
}

func TestGenerateCommand(t *testing.T) {
	var body map[string]any
	server := newChatServer(t, &body)
	path := testConfig(t, server.URL)

	out, err := execute(t, "generate", "--config", path, "--system", "Be terse.", "--temperature", "0.2", "Say hello")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if strings.TrimSpace(out) != "Hello from the stub" {
		t.Errorf("stdout = %q", out)
	}

	if body["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", body["model"])
	}
	if body["max_tokens"] != float64(32) || body["temperature"] != 0.2 {
		t.Errorf("settings = max_tokens %v, temperature %v", body["max_tokens"], body["temperature"])
	}
	messages, _ := body["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages = %v", body["messages"])
	}
	if first, _ := messages[0].(map[string]any); first["role"] != "system" {
		t.Errorf("first message = %v", first)
	}
}

func TestGenerateCommandJSONOutput(t *testing.T) {
	server := newChatServer(t, nil)
	path := testConfig(t, server.URL)
	messages := writeTestFile(t, "chat.json", `[
		{"role": "user", "content": "Hi"},
		{"role": "assistant", "content": "Hello"},
		{"role": "user", "content": "How are you?"}
	]`)

	out, err := execute(t, "generate", "--config", path, "--messages", messages, "--output", "json")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	var result struct {
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
		Usage        struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
		ContextWindow *struct {
			Used int `json:"used_tokens"`
		} `json:"context_window"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if result.Text != "Hello from the stub" || result.FinishReason != "stop" || result.Usage.TotalTokens != 11 {
		t.Errorf("result = %+v", result)
	}
	if result.ContextWindow == nil {
		t.Error("context_window missing with the default remove strategy")
	}
}

func TestGenerateCommandErrors(t *testing.T) {
	server := newChatServer(t, nil)
	path := testConfig(t, server.URL)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no prompt", []string{"generate", "--config", path}, "prompt"},
		{"bad output", []string{"generate", "--config", path, "-o", "yaml", "hi"}, "output format"},
		{"bad strategy", []string{"generate", "--config", path, "--strategy", "shrink", "hi"}, "context window"},
		{"unknown provider", []string{"generate", "--config", path, "--provider", "nope", "hi"}, "not configured"},
		{"missing config", []string{"generate", "--config", filepath.Join(t.TempDir(), "absent.yaml"), "hi"}, "failed to load config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestModelsCommand(t *testing.T) {
	out, err := execute(t, "models", "--provider", "mistral")
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	if !strings.Contains(out, "mistral-large") || !strings.Contains(out, "131072") {
		t.Errorf("table = %s", out)
	}
	if strings.Contains(out, "claude") {
		t.Errorf("provider filter ignored: %s", out)
	}

	out, err = execute(t, "models", "--provider", "anthropic", "--capability", "tools", "--json")
	if err != nil {
		t.Fatalf("models --json: %v", err)
	}
	var list []struct {
		ID       string `json:"id"`
		Provider string `json:"provider"`
	}
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if len(list) == 0 {
		t.Fatal("expected anthropic models")
	}
	for _, m := range list {
		if m.Provider != "anthropic" {
			t.Errorf("unexpected provider %q for %s", m.Provider, m.ID)
		}
	}
}

func TestSchemaCommand(t *testing.T) {
	out, err := execute(t, "schema")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if !json.Valid([]byte(out)) || !strings.Contains(out, "textgen configuration") {
		t.Errorf("schema output = %.200s", out)
	}
}

func TestReadMessagesRejectsGarbage(t *testing.T) {
	path := writeTestFile(t, "chat.json", `{"role": "user"}`)
	if _, err := readMessages(path); err == nil {
		t.Fatal("expected error for non-array messages")
	}
}
