package chathandler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"keygate/internal/domain/dispatch"
	"keygate/internal/domain/key"
	"keygate/internal/infrastructure/metrics"
	"keygate/internal/infrastructure/upstream"
)

const scopeHeader = "X-Provider-Scope"

// ChatHandler proxies chat completion requests through the key dispatcher.
type ChatHandler struct {
	registry *dispatch.Registry
	clients  map[string]*upstream.ChatClient
	logger   zerolog.Logger
}

func NewChatHandler(registry *dispatch.Registry, clients map[string]*upstream.ChatClient, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{registry: registry, clients: clients, logger: logger}
}

// CreateChatCompletion handles POST /v1/chat/completions. The provider scope
// is taken from the X-Provider-Scope header, falling back to the model name.
func (h *ChatHandler) CreateChatCompletion(c *gin.Context) {
	var request openai.ChatCompletionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	scope := strings.TrimSpace(c.GetHeader(scopeHeader))
	if scope == "" {
		scope = request.Model
	}
	if scope == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "model or provider scope is required"})
		return
	}

	client, ok := h.clients[scope]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_scope", "message": fmt.Sprintf("no upstream configured for scope %q", scope)})
		return
	}

	start := time.Now()
	response, err := dispatch.ExecuteScoped(c.Request.Context(), h.registry, scope, client.CompletionFunc(request))
	outcome := h.respond(c, scope, response, err)
	metrics.RecordDispatch(scope, outcome, time.Since(start).Seconds())
}

// respond maps the dispatch error taxonomy to HTTP statuses: no capacity is
// retriable (429), pool exhaustion is an upstream problem (502), and
// request-specific failures are the caller's (400).
func (h *ChatHandler) respond(c *gin.Context, scope string, response *openai.ChatCompletionResponse, err error) string {
	if err == nil {
		c.JSON(http.StatusOK, response)
		return "success"
	}

	// Exhaustion is matched first: it can wrap a NoKeyAvailableError and
	// errors.As would otherwise unwrap through it and report 429 for a
	// pool that is dead rather than merely busy.
	var exhausted *dispatch.AllKeysExhaustedError
	if errors.As(err, &exhausted) {
		h.logger.Error().Err(err).Str("scope", scope).Msg("all keys exhausted")
		c.JSON(http.StatusBadGateway, gin.H{"error": "all_keys_exhausted", "message": exhausted.Error()})
		return "exhausted"
	}

	var noKey *key.NoKeyAvailableError
	if errors.As(err, &noKey) {
		retryAfter := "60"
		if !noKey.RetryAfter.IsZero() {
			if secs := int(time.Until(noKey.RetryAfter).Seconds()) + 1; secs > 0 {
				retryAfter = fmt.Sprintf("%d", secs)
			}
		}
		c.Header("Retry-After", retryAfter)
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "no_available_key", "message": noKey.Error()})
		return "no_key"
	}

	var failure *dispatch.Failure
	if errors.As(err, &failure) && failure.Kind == dispatch.KindOther {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": failure.Error()})
		return "invalid"
	}

	if errors.Is(err, dispatch.ErrPoolNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_scope", "message": err.Error()})
		return "unknown_scope"
	}

	h.logger.Error().Err(err).Str("scope", scope).Msg("dispatch failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "dispatch failed"})
	return "error"
}
