package upstream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"resty.dev/v3"

	"keygate/internal/domain/dispatch"
	"keygate/internal/infrastructure/logger"
)

const defaultRequestTimeout = 120 * time.Second

// ChatClient calls an OpenAI-compatible chat completion endpoint with a
// caller-supplied credential and returns responses or classified failures.
// The dispatcher never sees raw HTTP errors.
type ChatClient struct {
	client  *resty.Client
	baseURL string
	name    string
}

func NewChatClient(name, baseURL string, timeout time.Duration) *ChatClient {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	client := resty.New().SetTimeout(timeout)
	client.AddRequestMiddleware(func(c *resty.Client, r *resty.Request) error {
		r.SetContext(context.WithValue(r.Context(), startsAtKey{}, time.Now()))
		return nil
	})
	client.AddResponseMiddleware(func(c *resty.Client, r *resty.Response) error {
		log := logger.GetLogger()
		startTime, _ := r.Request.Context().Value(startsAtKey{}).(time.Time)
		log.Debug().
			Str("client", name).
			Int("status", r.StatusCode()).
			Str("method", r.Request.RawRequest.Method).
			Str("path", r.Request.RawRequest.URL.Path).
			Dur("latency", time.Since(startTime)).
			Msg("HTTP client request")
		return nil
	})
	return &ChatClient{
		client:  client,
		baseURL: normalizeBaseURL(baseURL),
		name:    name,
	}
}

type startsAtKey struct{}

// CreateChatCompletion performs one non-streaming completion call. Errors are
// returned as *dispatch.Failure classified from the transport error or the
// upstream status code.
func (c *ChatClient) CreateChatCompletion(ctx context.Context, apiKey string, request openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	var respBody openai.ChatCompletionResponse
	resp, err := c.prepareRequest(ctx, apiKey).
		SetBody(request).
		SetResult(&respBody).
		Post(c.endpoint("/chat/completions"))
	if err != nil {
		return nil, dispatch.Classify(err)
	}
	if resp.IsError() {
		return nil, dispatch.FromStatusCode(resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return &respBody, nil
}

// CompletionFunc adapts one request into the dispatcher's RequestFunc shape.
func (c *ChatClient) CompletionFunc(request openai.ChatCompletionRequest) dispatch.RequestFunc[*openai.ChatCompletionResponse] {
	return func(ctx context.Context, credential string) (*openai.ChatCompletionResponse, error) {
		return c.CreateChatCompletion(ctx, credential, request)
	}
}

func (c *ChatClient) prepareRequest(ctx context.Context, apiKey string) *resty.Request {
	req := c.client.R().SetContext(ctx)
	req.SetHeader("Content-Type", "application/json")
	if strings.TrimSpace(apiKey) != "" {
		req.SetHeader("Authorization", fmt.Sprintf("Bearer %s", apiKey))
	}
	return req
}

func (c *ChatClient) endpoint(path string) string {
	if path == "" {
		return c.baseURL
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if c.baseURL == "" {
		return path
	}
	if strings.HasPrefix(path, "/") {
		return c.baseURL + path
	}
	return c.baseURL + "/" + path
}

func normalizeBaseURL(base string) string {
	trimmed := strings.TrimSpace(base)
	return strings.TrimSuffix(trimmed, "/")
}
