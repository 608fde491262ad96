package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/steve/internal/completion"
	"github.com/samcharles93/steve/internal/dialog"
	"github.com/samcharles93/steve/internal/inference"
	"github.com/samcharles93/steve/internal/metrics"
	"github.com/samcharles93/steve/internal/version"
)

type Server struct {
	provider ServiceProvider
	defaults inference.Defaults
	clock    func() time.Time
}

// NewServer serves completions from provider. defaults fill request fields
// the client leaves out.
func NewServer(provider ServiceProvider, defaults inference.Defaults) *Server {
	return &Server{
		provider: provider,
		defaults: defaults,
		clock:    time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/completions", s.handleCompletions)
	e.POST("/v1/chat/completions", s.handleChatCompletions)
	e.GET("/healthz", s.handleHealth)
	e.GET("/version", s.handleVersion)
	e.GET("/metrics", handleMetrics)
}

func (s *Server) options(svc Completer, fields GenerationFields, echoPrompt *bool) completion.Options {
	p := inference.ResolveParams(fields.options(echoPrompt), s.defaults, svc.MaxSeqLen())
	maxGen := p.MaxGenLen
	return completion.Options{
		Temperature: p.Temperature,
		TopP:        p.TopP,
		MaxGenLen:   &maxGen,
		LogProbs:    p.LogProbs,
		Echo:        p.Echo,
		Seed:        p.Seed,
	}
}

func (s *Server) handleCompletions(c *echo.Context) error {
	req, err := decodeJSON[CompletionRequest](c.Request().Body)
	if err != nil {
		return writeServiceError(c, newInvalidRequest("invalid JSON body: "+err.Error()))
	}
	prompts := req.Prompts
	switch {
	case req.Prompt != nil && len(req.Prompts) > 0:
		return writeServiceError(c, newInvalidRequest("prompt and prompts are mutually exclusive"))
	case req.Prompt != nil:
		prompts = []string{*req.Prompt}
	case len(prompts) == 0:
		return writeServiceError(c, newInvalidRequest("prompt or prompts is required"))
	}

	var results []completion.CompletionPrediction
	err = s.provider.WithService(c.Request().Context(), func(svc Completer) error {
		var err error
		results, err = svc.TextCompletion(c.Request().Context(), prompts, s.options(svc, req.GenerationFields, req.Echo))
		return err
	})
	if err != nil {
		return writeServiceError(c, err)
	}

	resp := CompletionResponse{
		ID:      responseID(firstID(results, func(p completion.CompletionPrediction) string { return p.CompletionID })),
		Object:  "text_completion",
		Created: s.clock().Unix(),
		Results: results,
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleChatCompletions(c *echo.Context) error {
	req, err := decodeJSON[ChatRequest](c.Request().Body)
	if err != nil {
		return writeServiceError(c, newInvalidRequest("invalid JSON body: "+err.Error()))
	}
	dialogs := req.Dialogs
	switch {
	case len(req.Dialogs) > 0 && len(req.Messages) > 0:
		return writeServiceError(c, newInvalidRequest("dialogs and messages are mutually exclusive"))
	case len(req.Messages) > 0:
		dialogs = []dialog.Dialog{req.Messages}
	case len(dialogs) == 0:
		return writeServiceError(c, newInvalidRequest("dialogs or messages is required"))
	}

	var results []completion.ChatPrediction
	err = s.provider.WithService(c.Request().Context(), func(svc Completer) error {
		var err error
		results, err = svc.ChatCompletion(c.Request().Context(), dialogs, s.options(svc, req.GenerationFields, nil))
		return err
	})
	if err != nil {
		return writeServiceError(c, err)
	}

	resp := ChatResponse{
		ID:      responseID(firstID(results, func(p completion.ChatPrediction) string { return p.CompletionID })),
		Object:  "chat.completion",
		Created: s.clock().Unix(),
		Results: results,
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleVersion(c *echo.Context) error {
	return c.JSON(http.StatusOK, version.Resolve())
}

func handleMetrics(c *echo.Context) error {
	metrics.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}

func responseID(completionID string) string {
	if completionID == "" {
		completionID = uuid.NewString()
	}
	return "cmpl-" + completionID
}

func firstID[T any](results []T, id func(T) string) string {
	if len(results) == 0 {
		return ""
	}
	return id(results[0])
}
