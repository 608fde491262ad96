package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/steve/internal/completion"
	"github.com/samcharles93/steve/internal/dialog"
	"github.com/samcharles93/steve/internal/inference"
)

type testCompleter struct {
	err      error
	prompts  []string
	dialogs  []dialog.Dialog
	lastOpts completion.Options
}

func (c *testCompleter) MaxSeqLen() int { return 64 }

func (c *testCompleter) TextCompletion(_ context.Context, prompts []string, opts completion.Options) ([]completion.CompletionPrediction, error) {
	c.prompts = prompts
	c.lastOpts = opts
	if c.err != nil {
		return nil, c.err
	}
	out := make([]completion.CompletionPrediction, len(prompts))
	for i, p := range prompts {
		out[i] = completion.CompletionPrediction{Generation: p + " ok", CompletionID: "abc"}
	}
	return out, nil
}

func (c *testCompleter) ChatCompletion(_ context.Context, dialogs []dialog.Dialog, opts completion.Options) ([]completion.ChatPrediction, error) {
	c.dialogs = dialogs
	c.lastOpts = opts
	if c.err != nil {
		return nil, c.err
	}
	out := make([]completion.ChatPrediction, len(dialogs))
	for i := range dialogs {
		out[i] = completion.ChatPrediction{
			Generation:   dialog.Message{Role: dialog.RoleAssistant, Content: "hello"},
			CompletionID: "abc",
		}
	}
	return out, nil
}

func newTestEcho(c *testCompleter) *echo.Echo {
	temp := 0.2
	server := NewServer(NewSerialProvider(c), inference.Defaults{Temperature: &temp})
	e := echo.New()
	server.Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCompletionsSinglePrompt(t *testing.T) {
	t.Parallel()
	c := &testCompleter{}
	e := newTestEcho(c)

	rec := doJSON(t, e, http.MethodPost, "/v1/completions", `{"prompt":"I believe","max_gen_len":8,"echo":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp CompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cmpl-abc", resp.ID)
	assert.Equal(t, "text_completion", resp.Object)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "I believe ok", resp.Results[0].Generation)

	assert.Equal(t, []string{"I believe"}, c.prompts)
	assert.Equal(t, 0.2, c.lastOpts.Temperature, "server default applies")
	assert.Equal(t, 0.9, c.lastOpts.TopP)
	require.NotNil(t, c.lastOpts.MaxGenLen)
	assert.Equal(t, 8, *c.lastOpts.MaxGenLen)
	assert.True(t, c.lastOpts.Echo)
}

func TestCompletionsDefaultsMaxGenLen(t *testing.T) {
	t.Parallel()
	c := &testCompleter{}
	rec := doJSON(t, newTestEcho(c), http.MethodPost, "/v1/completions", `{"prompts":["a","b"],"temperature":0}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"a", "b"}, c.prompts)
	assert.Equal(t, 63, *c.lastOpts.MaxGenLen)
	assert.Equal(t, 0.0, c.lastOpts.Temperature)
}

func TestCompletionsValidation(t *testing.T) {
	t.Parallel()
	e := newTestEcho(&testCompleter{})
	for name, body := range map[string]string{
		"missing prompt": `{}`,
		"both forms":     `{"prompt":"a","prompts":["b"]}`,
		"bad json":       `{"prompt":`,
	} {
		rec := doJSON(t, e, http.MethodPost, "/v1/completions", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.Contains(t, rec.Body.String(), "invalid_request_error", name)
	}
}

func TestChatCompletionsValidation(t *testing.T) {
	t.Parallel()
	c := &testCompleter{}
	e := newTestEcho(c)
	for body, msg := range map[string]string{
		`{}`: "dialogs or messages is required",
		`{"dialogs":[[{"role":"user","content":"a"}]],"messages":[{"role":"user","content":"b"}]}`: "dialogs and messages are mutually exclusive",
		`{"dialogs":`: "invalid JSON body",
	} {
		rec := doJSON(t, e, http.MethodPost, "/v1/chat/completions", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, rec.Body.String(), "invalid_request_error", body)
		assert.Contains(t, rec.Body.String(), msg, body)
	}
	assert.Empty(t, c.dialogs, "invalid requests never reach the completer")
}

func TestInvalidRequestErrorsMapToBadRequest(t *testing.T) {
	t.Parallel()
	err := newInvalidRequest("prompt or prompts is required")
	require.ErrorIs(t, err, ErrInvalidRequest)
	status, errType := statusFor(err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_request_error", errType)

	status, errType = statusFor(errors.New("device lost"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "server_error", errType)
}

func TestChatCompletionsMessagesShorthand(t *testing.T) {
	t.Parallel()
	c := &testCompleter{}
	body := `{"messages":[{"role":"system","content":"be brief"},{"role":"user","content":"hi"}],"logprobs":true}`
	rec := doJSON(t, newTestEcho(c), http.MethodPost, "/v1/chat/completions", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "chat.completion", resp.Object)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, dialog.RoleAssistant, resp.Results[0].Generation.Role)

	require.Len(t, c.dialogs, 1)
	assert.Equal(t, dialog.RoleSystem, c.dialogs[0][0].Role)
	assert.True(t, c.lastOpts.LogProbs)
	assert.False(t, c.lastOpts.Echo)
}

func TestChatCompletionsRejectsUnknownRole(t *testing.T) {
	t.Parallel()
	rec := doJSON(t, newTestEcho(&testCompleter{}), http.MethodPost, "/v1/chat/completions",
		`{"dialogs":[[{"role":"tool","content":"x"}]]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"order", &dialog.OrderError{Index: 1, Role: dialog.RoleUser, Want: dialog.RoleAssistant}, http.StatusBadRequest},
		{"too long", &inference.PromptTooLongError{Length: 99, Max: 64}, http.StatusBadRequest},
		{"params", inference.ErrInvalidParams, http.StatusBadRequest},
		{"model", errors.New("device lost"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := doJSON(t, newTestEcho(&testCompleter{err: tc.err}), http.MethodPost, "/v1/chat/completions",
				`{"dialogs":[[{"role":"user","content":"x"}]]}`)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), tc.err.Error())
		})
	}
}

func TestOperationalEndpoints(t *testing.T) {
	t.Parallel()
	e := newTestEcho(&testCompleter{})

	rec := doJSON(t, e, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = doJSON(t, e, http.MethodGet, "/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version"`)

	rec = doJSON(t, e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestSerialProviderHonoursCancelledContext(t *testing.T) {
	t.Parallel()
	p := NewSerialProvider(&testCompleter{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := p.WithService(ctx, func(Completer) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestSerialProviderQueuedRequestGivesUp(t *testing.T) {
	t.Parallel()
	p := NewSerialProvider(&testCompleter{})

	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = p.WithService(context.Background(), func(Completer) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.WithService(ctx, func(Completer) error {
		t.Error("queued request ran while the completer was busy")
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, p.WithService(context.Background(), func(Completer) error { return nil }))
}
