package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/haasonsaas/textgen/internal/agent"
	"github.com/haasonsaas/textgen/internal/agent/providers"
	"github.com/haasonsaas/textgen/internal/config"
	ctxwindow "github.com/haasonsaas/textgen/internal/context"
	"github.com/haasonsaas/textgen/internal/observability"
	"github.com/haasonsaas/textgen/internal/prompt"
	"github.com/haasonsaas/textgen/internal/retry"
)

// GenerateRequest is the body of POST /v1/generate.
type GenerateRequest struct {
	prompt.Input

	// Provider names a configured provider. Empty selects default_provider.
	Provider string `json:"provider,omitempty"`

	// Model overrides the provider's default model.
	Model string `json:"model,omitempty"`

	// Tools are declared to the model. They carry no implementation over
	// HTTP, so calls are validated and returned but never executed.
	Tools []agent.ToolDefinition `json:"tools,omitempty"`

	// Settings override the configured generation defaults field by field.
	Settings agent.CallSettings `json:"settings"`

	MaxRetries *int `json:"max_retries,omitempty"`

	// ContextWindow overrides the configured sizing strategy.
	ContextWindow *config.ContextWindowConfig `json:"context_window,omitempty"`
}

// GenerateResponse is the body of a successful POST /v1/generate.
type GenerateResponse struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	RequestID string `json:"request_id"`
	*agent.GenerateResult
}

func (s *Server) handleGenerate(c echo.Context) error {
	var req GenerateRequest
	if err := s.decodeRequestBody(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	if timeout := s.cfg.Server.RequestTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	handler := s.handler
	if req.ContextWindow != nil {
		h, err := req.ContextWindow.Handler()
		if err != nil {
			return invalidRequest(fmt.Sprintf("context_window: %v", err))
		}
		handler = h
	}

	maxRetries := req.MaxRetries
	if maxRetries == nil {
		maxRetries = s.cfg.Generation.MaxRetries
	}
	if maxRetries != nil && *maxRetries < 0 {
		return invalidRequest("max_retries must not be negative")
	}

	gen, err := s.generator(ctx, req.Provider, req.Model)
	if err != nil {
		return invalidRequest(err.Error())
	}

	tools := make([]agent.Tool, 0, len(req.Tools))
	for _, def := range req.Tools {
		tools = append(tools, agent.Tool{Name: def.Name, Description: def.Description, Parameters: def.Parameters})
	}

	result, err := gen.Generate(ctx, agent.GenerateParams{
		Input:          req.Input,
		Tools:          tools,
		Settings:       req.Settings.WithDefaults(s.cfg.Generation.CallSettings),
		MaxRetries:     maxRetries,
		ContextHandler: handler,
	})
	if err != nil {
		return toHTTPError(err)
	}

	model := gen.Model()
	return c.JSON(http.StatusOK, GenerateResponse{
		Provider:       model.Provider(),
		Model:          model.ModelID(),
		RequestID:      observability.GetRequestID(ctx),
		GenerateResult: result,
	})
}

func (s *Server) decodeRequestBody(c echo.Context, target any) error {
	limit := s.cfg.Server.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}

	req := c.Request()
	defer req.Body.Close()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, limit)

	decoder := json.NewDecoder(req.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return invalidRequest("request body is required")
		case errors.As(err, &tooLarge):
			return requestError{
				Status:  http.StatusRequestEntityTooLarge,
				Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
				Type:    "invalid_request_error",
			}
		default:
			return invalidRequest(fmt.Sprintf("invalid JSON payload: %v", err))
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return invalidRequest("request body must contain a single JSON object")
	}
	return nil
}

type requestError struct {
	Status  int
	Message string
	Type    string
	Code    string
}

func (e requestError) Error() string {
	return e.Message
}

func invalidRequest(msg string) requestError {
	return requestError{Status: http.StatusBadRequest, Message: msg, Type: "invalid_request_error"}
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

func writeError(c echo.Context, status int, message, errType, code string) error {
	var payload errorBody
	payload.Error.Message = message
	payload.Error.Type = errType
	payload.Error.Code = code
	return c.JSON(status, payload)
}

func jsonErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Type, reqErr.Code)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = writeError(c, he.Code, fmt.Sprint(he.Message), "invalid_request_error", "")
		return
	}

	_ = writeError(c, http.StatusInternalServerError, "internal server error", "server_error", "")
}

// toHTTPError maps a pipeline error onto a status and error type.
// Caller errors become 400s; backend failures keep their classification.
func toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	var (
		promptErr  *prompt.InvalidPromptError
		argErr     *agent.InvalidArgumentError
		unknown    *agent.UnknownToolError
		badArgs    *agent.InvalidToolArgumentsError
		cancelled  *retry.CancelledError
		tooLarge   *ctxwindow.BudgetExceededError
		sysTooBig  *ctxwindow.SystemPromptTooLargeError
		toolErr    *agent.ToolError
		providerEr *providers.ProviderError
	)
	switch {
	case errors.As(err, &promptErr), errors.As(err, &argErr),
		errors.Is(err, agent.ErrInvalidToolName), errors.Is(err, agent.ErrDuplicateTool):
		return invalidRequest(err.Error())

	case errors.As(err, &tooLarge), errors.As(err, &sysTooBig):
		return requestError{
			Status:  http.StatusRequestEntityTooLarge,
			Message: err.Error(),
			Type:    "context_window_error",
		}

	case ctxwindow.IsSizingError(err):
		return requestError{Status: http.StatusBadRequest, Message: err.Error(), Type: "context_window_error"}

	case errors.As(err, &unknown), errors.As(err, &badArgs):
		return requestError{Status: http.StatusBadGateway, Message: err.Error(), Type: "tool_call_error"}

	case errors.As(err, &toolErr):
		return requestError{Status: http.StatusInternalServerError, Message: err.Error(), Type: "tool_error", Code: string(toolErr.Type)}

	case errors.As(err, &cancelled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return requestError{Status: http.StatusGatewayTimeout, Message: err.Error(), Type: "cancelled"}

	case errors.As(err, &providerEr):
		status := http.StatusBadGateway
		switch providerEr.Reason {
		case providers.FailoverRateLimit:
			status = http.StatusTooManyRequests
		case providers.FailoverTimeout:
			status = http.StatusGatewayTimeout
		case providers.FailoverInvalidRequest, providers.FailoverContentFilter:
			status = http.StatusBadRequest
		}
		return requestError{
			Status:  status,
			Message: providerEr.Error(),
			Type:    "upstream_error",
			Code:    string(providerEr.Reason),
		}
	}

	return requestError{
		Status:  http.StatusBadGateway,
		Message: "upstream provider error",
		Type:    "upstream_error",
	}
}
