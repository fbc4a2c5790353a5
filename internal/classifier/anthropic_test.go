// ABOUTME: Tests for the Anthropic classifier against a fake Messages endpoint
// ABOUTME: Verifies prompt assembly, turn merging, and error classification

package classifier

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/teller/internal/config"
	"github.com/2389/teller/internal/session"
)

type capturedRequest struct {
	Model       string   `json:"model"`
	MaxTokens   int64    `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
	System      []struct {
		Text string `json:"text"`
	} `json:"system"`
	Messages []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"messages"`
}

// fakeMessagesAPI answers every request with reply and records the last body.
type fakeMessagesAPI struct {
	mu     sync.Mutex
	last   capturedRequest
	reply  string
	status int
}

func (f *fakeMessagesAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/messages" {
		http.NotFound(w, r)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	_ = json.NewDecoder(r.Body).Decode(&f.last)

	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":            "msg_test",
		"type":          "message",
		"role":          "assistant",
		"model":         f.last.Model,
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"content": []map[string]any{
			{"type": "text", "text": f.reply},
		},
		"usage": map[string]any{"input_tokens": 10, "output_tokens": 5},
	})
}

func newTestClassifier(t *testing.T, api *fakeMessagesAPI, mutate ...func(*config.ClassifierConfig)) *Anthropic {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cfg := config.ClassifierConfig{
		Provider:    config.ClassifierAnthropic,
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/",
		Model:       "claude-test",
		MaxTokens:   256,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return NewAnthropic(cfg, nil, option.WithMaxRetries(0))
}

func TestAnthropic_ClassifiesOperation(t *testing.T) {
	api := &fakeMessagesAPI{reply: `{"type":"banking_operation","operation":{"action":"REGISTER","user_name":"Ada","amount":1000}}`}
	c := newTestClassifier(t, api)

	history := []session.Message{
		{Role: session.RoleAssistant, Content: "Register by typing your full name"},
		{Role: session.RoleUser, Content: "I am Ada, I have 1000"},
	}
	intent, err := c.Classify(t.Context(), history, "Accounts are free.")
	require.NoError(t, err)

	assert.Equal(t, KindOperation, intent.Kind)
	assert.Equal(t, ActionRegister, intent.Operation.Action)

	req := api.last
	assert.Equal(t, "claude-test", req.Model)
	assert.Equal(t, int64(256), req.MaxTokens)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, config.DefaultTemperature, *req.Temperature, 1e-9)
	require.Len(t, req.System, 1)
	assert.True(t, strings.HasPrefix(req.System[0].Text, SystemPrompt))
	assert.True(t, strings.HasSuffix(req.System[0].Text, "Bank information:\nAccounts are free."))

	// Leading greeting dropped; conversation starts with the user.
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "I am Ada, I have 1000", req.Messages[0].Content[0].Text)
}

func TestAnthropic_NoContextLeavesPromptUnchanged(t *testing.T) {
	api := &fakeMessagesAPI{reply: `{"response":"Hello"}`}
	c := newTestClassifier(t, api)

	intent, err := c.Classify(t.Context(), []session.Message{{Role: session.RoleUser, Content: "hi"}}, "")
	require.NoError(t, err)
	assert.Equal(t, KindInquiry, intent.Kind)
	assert.Equal(t, SystemPrompt, api.last.System[0].Text)
}

func TestAnthropic_MalformedReply(t *testing.T) {
	api := &fakeMessagesAPI{reply: "I'm not sure what you mean."}
	c := newTestClassifier(t, api)

	_, err := c.Classify(t.Context(), []session.Message{{Role: session.RoleUser, Content: "??"}}, "")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestAnthropic_ServerError(t *testing.T) {
	api := &fakeMessagesAPI{status: http.StatusInternalServerError}
	c := newTestClassifier(t, api)

	_, err := c.Classify(t.Context(), []session.Message{{Role: session.RoleUser, Content: "balance"}}, "")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAnthropic_EmptyHistory(t *testing.T) {
	c := newTestClassifier(t, &fakeMessagesAPI{})

	_, err := c.Classify(t.Context(), []session.Message{{Role: session.RoleAssistant, Content: "greeting"}}, "")
	assert.ErrorIs(t, err, ErrEmptyHistory)
}

func TestToMessageParams_MergesSameRole(t *testing.T) {
	history := []session.Message{
		{Role: session.RoleAssistant, Content: "greeting"},
		{Role: session.RoleUser, Content: "one"},
		{Role: session.RoleUser, Content: "two"},
		{Role: session.RoleAssistant, Content: "reply"},
		{Role: session.RoleAssistant, Content: ""},
		{Role: session.RoleUser, Content: "three"},
	}

	msgs := toMessageParams(history)
	require.Len(t, msgs, 3)

	raw, err := json.Marshal(msgs)
	require.NoError(t, err)

	var decoded []struct {
		Role    string `json:"role"`
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "user", decoded[0].Role)
	assert.Equal(t, "one\n\ntwo", decoded[0].Content[0].Text)
	assert.Equal(t, "assistant", decoded[1].Role)
	assert.Equal(t, "reply", decoded[1].Content[0].Text)
	assert.Equal(t, "three", decoded[2].Content[0].Text)
}

func TestAnthropic_SendsZeroTemperature(t *testing.T) {
	api := &fakeMessagesAPI{reply: `{"type":"general_inquiry","response":"hi"}`}
	c := newTestClassifier(t, api, func(cfg *config.ClassifierConfig) {
		zero := 0.0
		cfg.Temperature = &zero
	})

	_, err := c.Classify(t.Context(), []session.Message{{Role: session.RoleUser, Content: "hello"}}, "")
	require.NoError(t, err)
	require.NotNil(t, api.last.Temperature)
	assert.Equal(t, 0.0, *api.last.Temperature)
}

func TestNew_Provider(t *testing.T) {
	c, err := New(config.ClassifierConfig{Provider: config.ClassifierAnthropic, APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Anthropic{}, c)

	_, err = New(config.ClassifierConfig{Provider: config.ClassifierAnthropic}, nil)
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = New(config.ClassifierConfig{Provider: "openai"}, nil)
	assert.Error(t, err)
}
