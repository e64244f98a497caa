package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nibaldox/chat-llm-terminal/model"
)

const testAPIKey = "*****"

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		modelName string
		opts      []Option
		wantErr   bool
		errMsg    string
	}{
		{
			name:      "empty model name",
			modelName: "",
			opts:      []Option{WithBaseURL("https://example.com/v1"), WithAPIKey(testAPIKey)},
			wantErr:   true,
			errMsg:    "model name cannot be empty",
		},
		{
			name:      "missing base URL",
			modelName: "test-model",
			opts:      []Option{WithAPIKey(testAPIKey)},
			wantErr:   true,
			errMsg:    "base URL is required",
		},
		{
			name:      "missing API key",
			modelName: "test-model",
			opts:      []Option{WithBaseURL("https://example.com/v1")},
			wantErr:   true,
			errMsg:    "API key is required",
		},
		{
			name:      "valid configuration",
			modelName: "test-model",
			opts:      []Option{WithBaseURL("https://example.com/v1"), WithAPIKey(testAPIKey)},
			wantErr:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.modelName, tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.modelName, m.Info().Name)
		})
	}
}

func newTestModel(t *testing.T, url string) *Model {
	t.Helper()
	m, err := New("test-model", WithBaseURL(url), WithAPIKey(testAPIKey))
	require.NoError(t, err)
	return m
}

func TestGenerateContentStreaming(t *testing.T) {
	var gotAuth string
	var gotBody ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"H", "ol", "a"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	m := newTestModel(t, srv.URL)
	ch, err := m.GenerateContent(context.Background(), &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage("be brief"),
			model.NewUserMessage("hola"),
		},
		GenerationConfig: model.GenerationConfig{Stream: true},
	})
	require.NoError(t, err)

	var partials []string
	var final *model.Response
	for rsp := range ch {
		require.Nil(t, rsp.Error)
		if rsp.IsPartial {
			partials = append(partials, rsp.Choices[0].Delta.Content)
			continue
		}
		final = rsp
	}

	assert.Equal(t, "Bearer "+testAPIKey, gotAuth)
	assert.True(t, gotBody.Stream)
	require.Len(t, gotBody.Messages, 2)
	assert.Equal(t, "system", gotBody.Messages[0].Role)
	assert.Equal(t, "user", gotBody.Messages[1].Role)

	assert.Equal(t, []string{"H", "ol", "a"}, partials)
	require.NotNil(t, final)
	assert.True(t, final.Done)
	assert.Equal(t, "Hola", final.Choices[0].Message.Content)
	assert.Equal(t, model.RoleAssistant, final.Choices[0].Message.Role)
}

func TestGenerateContentNonStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := ChatCompletionResponse{
			ID:    "cmpl-1",
			Model: "test-model",
			Choices: []ChatCompletionChoice{{
				Message:      ChatMessage{Role: "assistant", Content: "done"},
				FinishReason: "stop",
			}},
			Usage: &UsageInfo{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	m := newTestModel(t, srv.URL)
	ch, err := m.GenerateContent(context.Background(), &model.Request{
		Messages: []model.Message{model.NewUserMessage("hi")},
	})
	require.NoError(t, err)

	rsp := <-ch
	require.NotNil(t, rsp)
	require.Nil(t, rsp.Error)
	assert.True(t, rsp.Done)
	assert.Equal(t, "done", rsp.Choices[0].Message.Content)
	require.NotNil(t, rsp.Usage)
	assert.Equal(t, 4, rsp.Usage.TotalTokens)
}

// Assistant history entries must map to the assistant role, and any
// non-user, non-system role collapses onto assistant.
func TestConvertRequestRoleMapping(t *testing.T) {
	m := newTestModel(t, "https://example.com/v1")
	req := m.convertRequest(&model.Request{
		Messages: []model.Message{
			model.NewSystemMessage("sys"),
			model.NewUserMessage("u1"),
			model.NewAssistantMessage("a1"),
			model.NewToolMessage("id", "name", "tool output"),
		},
	})
	roles := make([]string, 0, len(req.Messages))
	for _, msg := range req.Messages {
		roles = append(roles, msg.Role)
	}
	assert.Equal(t, []string{"system", "user", "assistant", "assistant"}, roles)
}

func TestGenerateContentAPIErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"data policy violation"}}`)
	}))
	defer srv.Close()

	m := newTestModel(t, srv.URL)
	ch, err := m.GenerateContent(context.Background(), &model.Request{
		Messages:         []model.Message{model.NewUserMessage("hi")},
		GenerationConfig: model.GenerationConfig{Stream: true},
	})
	require.NoError(t, err)

	rsp := <-ch
	require.NotNil(t, rsp)
	require.NotNil(t, rsp.Error)
	assert.Equal(t, model.ErrorTypeAPIError, rsp.Error.Type)
	// Both the provider message and the remediation hint must survive.
	assert.Contains(t, rsp.Error.Message, "data policy violation")
	assert.Contains(t, rsp.Error.Message, DataPolicyHint)
}

func TestGenerateContentAPIErrorStatusTextFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "not json")
	}))
	defer srv.Close()

	m := newTestModel(t, srv.URL)
	ch, err := m.GenerateContent(context.Background(), &model.Request{
		Messages: []model.Message{model.NewUserMessage("hi")},
	})
	require.NoError(t, err)

	rsp := <-ch
	require.NotNil(t, rsp.Error)
	assert.Contains(t, rsp.Error.Message, "status 503")
	assert.Contains(t, rsp.Error.Message, http.StatusText(http.StatusServiceUnavailable))
	assert.NotContains(t, rsp.Error.Message, DataPolicyHint)
}

// Tools have no wire representation on this protocol; a request carrying
// them must still go out as a plain chat completion.
func TestGenerateContentIgnoresTools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, hasTools := raw["tools"]
		assert.False(t, hasTools)
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer srv.Close()

	m := newTestModel(t, srv.URL)
	ch, err := m.GenerateContent(context.Background(), &model.Request{
		Messages: []model.Message{model.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	rsp := <-ch
	require.Nil(t, rsp.Error)
	assert.Equal(t, "ok", rsp.Choices[0].Message.Content)
}

func TestGenerateContentNilRequest(t *testing.T) {
	m := newTestModel(t, "https://example.com/v1")
	_, err := m.GenerateContent(context.Background(), nil)
	require.Error(t, err)
}

func TestStreamingContextCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	m := newTestModel(t, srv.URL)
	ch, err := m.GenerateContent(ctx, &model.Request{
		Messages:         []model.Message{model.NewUserMessage("hi")},
		GenerationConfig: model.GenerationConfig{Stream: true},
	})
	require.NoError(t, err)

	// First chunk arrives, then cancel; the channel must close without a
	// hang.
	first := <-ch
	require.NotNil(t, first)
	cancel()

	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not terminate after cancellation")
	}
}

func TestExtractAPIErrorCaseInsensitiveHint(t *testing.T) {
	resp := &http.Response{StatusCode: 404, Status: "404 Not Found"}
	msg := extractAPIError(resp, []byte(`{"error":{"message":"No endpoints found matching your Data Policy"}}`))
	assert.True(t, strings.Contains(msg, DataPolicyHint))
}
