package insight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const DefaultModel = "claude-3-5-haiku-latest"

var statusCodeRe = regexp.MustCompile(`(?:status(?:\s+code)?[:=\s]+)(\d{3})`)

// FailureClass is the closed set of reasons an external completion can fail.
type FailureClass int

const (
	FailureNone FailureClass = iota
	FailureRateLimit
	FailureTimeout
	FailureServer
	FailureClient
	FailureEmpty
	FailureUnconfigured
)

func (c FailureClass) String() string {
	switch c {
	case FailureNone:
		return "none"
	case FailureRateLimit:
		return "rate_limit"
	case FailureTimeout:
		return "timeout"
	case FailureServer:
		return "server"
	case FailureClient:
		return "client"
	case FailureEmpty:
		return "empty"
	case FailureUnconfigured:
		return "unconfigured"
	default:
		return fmt.Sprintf("failure(%d)", int(c))
	}
}

// Retryable reports whether another attempt may succeed.
func (c FailureClass) Retryable() bool {
	switch c {
	case FailureRateLimit, FailureTimeout, FailureServer, FailureEmpty:
		return true
	default:
		return false
	}
}

// CallError is returned by the retry loop once it gives up.
type CallError struct {
	Class    FailureClass
	Attempts int
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("llm call failed class=%s attempts=%d: %v", e.Class, e.Attempts, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

var (
	errRateLimited = errors.New("rate limit exceeded for LLM calls")
	errNoCaller    = errors.New("LLM caller not configured")
	errEmpty       = errors.New("empty completion")
)

type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int64
}

type Response struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

type LLMCaller interface {
	Generate(ctx context.Context, req Request) (Response, error)
	ModelName() string
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

type AnthropicCaller struct {
	messages AnthropicMessager
	model    string
}

func NewAnthropicCaller(messages AnthropicMessager, model string) *AnthropicCaller {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	return &AnthropicCaller{messages: messages, model: model}
}

// NewAnthropicCallerFromEnv builds a caller from ANTHROPIC_API_KEY.
func NewAnthropicCallerFromEnv(model string) (*AnthropicCaller, error) {
	return NewAnthropicCallerWithKey(os.Getenv("ANTHROPIC_API_KEY"), model)
}

func NewAnthropicCallerWithKey(apiKey, model string) (*AnthropicCaller, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	return NewAnthropicCaller(newAnthropicClient(apiKey), model), nil
}

func (a *AnthropicCaller) ModelName() string { return a.model }

func (a *AnthropicCaller) Generate(ctx context.Context, req Request) (Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 256
	}
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   maxTokens,
		System:      []anthropic.TextBlockParam{{Text: req.System}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.User))},
		Temperature: anthropic.Float(req.Temperature),
	})
	if err != nil {
		return Response{}, err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	out := Response{
		Text:         sb.String(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	slog.Info("llm usage", "model", a.model, "input_tokens", out.InputTokens, "output_tokens", out.OutputTokens)
	return out, nil
}

func classifyTransportError(err error) FailureClass {
	if errors.Is(err, errRateLimited) {
		return FailureRateLimit
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return FailureTimeout
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		return classifyStatus(apiErr.StatusCode)
	}
	msg := strings.ToLower(err.Error())
	if m := statusCodeRe.FindStringSubmatch(msg); len(m) == 2 {
		code, _ := strconv.Atoi(m[1])
		return classifyStatus(code)
	}
	if strings.Contains(msg, "rate limit") {
		return FailureRateLimit
	}
	return FailureServer
}

func classifyStatus(code int) FailureClass {
	switch {
	case code == 429:
		return FailureRateLimit
	case code == 408:
		return FailureTimeout
	case code >= 500:
		return FailureServer
	case code >= 400:
		return FailureClient
	default:
		return FailureServer
	}
}

// backoffDelay is the wait after the given failed attempt: base·2^(attempt-1), capped.
func backoffDelay(attempt int, base, ceiling time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}
