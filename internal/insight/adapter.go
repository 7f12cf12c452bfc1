package insight

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joelkehle/ideafit/internal/jsonsafe"
	"github.com/joelkehle/ideafit/internal/model"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseBackoff = 600 * time.Millisecond
	DefaultMaxBackoff  = 4 * time.Second

	defaultTemperature   = 0.4
	defaultJSONMaxTokens = 180
	defaultTextMaxTokens = 200
)

var tracer = otel.Tracer("github.com/joelkehle/ideafit/internal/insight")

type Config struct {
	CacheSize     int
	RatePerMinute int
	MaxAttempts   int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	// Now and Sleep are overridable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func (c Config) withDefaults() Config {
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.RatePerMinute <= 0 {
		c.RatePerMinute = DefaultRatePerMinute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = DefaultBaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Sleep == nil {
		c.Sleep = sleepContext
	}
	return c
}

// Adapter produces normalized insight payloads from an LLM. Its public calls
// always return a value; failures degrade to the caller's fallback.
type Adapter struct {
	caller LLMCaller
	cfg    Config
	cache  *Cache
	window *RateWindow
}

// NewAdapter accepts a nil caller, in which case every miss serves the fallback.
func NewAdapter(caller LLMCaller, cfg Config) *Adapter {
	cfg = cfg.withDefaults()
	return &Adapter{
		caller: caller,
		cfg:    cfg,
		cache:  NewCache(cfg.CacheSize),
		window: NewRateWindow(cfg.RatePerMinute, cfg.Now),
	}
}

type JSONCall struct {
	System      string
	User        string
	Fallback    map[string]any
	Temperature float64
	MaxTokens   int64
	Key         Key
}

type TextCall struct {
	System      string
	User        string
	Fallback    string
	Temperature float64
	MaxTokens   int64
	Key         Key
}

type Stats struct {
	Model         string `json:"model"`
	Configured    bool   `json:"configured"`
	CacheEntries  int    `json:"cacheEntries"`
	CacheCapacity int    `json:"cacheCapacity"`
	WindowCalls   int    `json:"windowCalls"`
	WindowQuota   int    `json:"windowQuota"`
}

func (a *Adapter) Stats() Stats {
	s := Stats{
		Configured:    a.caller != nil,
		CacheEntries:  a.cache.Len(),
		CacheCapacity: a.cache.Capacity(),
		WindowCalls:   a.window.Len(),
		WindowQuota:   a.window.Quota(),
	}
	if a.caller != nil {
		s.Model = a.caller.ModelName()
	}
	return s
}

func (a *Adapter) Cache() *Cache { return a.cache }

func (a *Adapter) Window() *RateWindow { return a.window }

// CallJSON returns a JSON object from the model with intent_to_try and
// price_acceptance clamped to [0,1] and friction_hint to [-1,1] when the
// fallback carries it.
func (a *Adapter) CallJSON(ctx context.Context, call JSONCall) map[string]any {
	if cached, ok := a.cache.Get(call.Key); ok {
		slog.Info("llm cache hit", "key", call.Key.String())
		return cached
	}
	if call.Temperature == 0 {
		call.Temperature = defaultTemperature
	}
	if call.MaxTokens <= 0 {
		call.MaxTokens = defaultJSONMaxTokens
	}

	var payload map[string]any
	text, err := a.complete(ctx, Request{System: call.System, User: call.User, Temperature: call.Temperature, MaxTokens: call.MaxTokens})
	if err != nil {
		a.logFallback("json", call.Key, err)
		payload = jsonsafe.DeepCopy(call.Fallback)
	} else {
		payload = jsonsafe.ParseOrDefault(text, call.Fallback)
	}

	normalize(payload, call.Fallback)
	a.cache.Set(call.Key, payload)
	return payload
}

func (a *Adapter) CallText(ctx context.Context, call TextCall) string {
	if cached, ok := a.cache.Get(call.Key); ok {
		slog.Info("llm cache hit", "key", call.Key.String())
		if s, ok := cached["text"].(string); ok {
			return s
		}
		return call.Fallback
	}
	if call.Temperature == 0 {
		call.Temperature = defaultTemperature
	}
	if call.MaxTokens <= 0 {
		call.MaxTokens = defaultTextMaxTokens
	}

	out := call.Fallback
	text, err := a.complete(ctx, Request{System: call.System, User: call.User, Temperature: call.Temperature, MaxTokens: call.MaxTokens})
	if err != nil {
		a.logFallback("text", call.Key, err)
	} else if t := strings.TrimSpace(text); t != "" {
		out = t
	}
	a.cache.Set(call.Key, map[string]any{"text": out})
	return out
}

// React is the single-shot scoring call for an idea, cached per idea revision.
func (a *Adapter) React(ctx context.Context, idea model.Idea) map[string]any {
	return a.CallJSON(ctx, JSONCall{
		System:      reactSystemPrompt,
		User:        buildReactPrompt(idea),
		Fallback:    DefaultReaction(),
		Temperature: 0.4,
		MaxTokens:   180,
		Key:         NewKey(idea.ID, idea.UpdatedAt),
	})
}

// complete runs the retry loop and returns a *CallError when it gives up.
func (a *Adapter) complete(ctx context.Context, req Request) (string, error) {
	if a.caller == nil {
		return "", &CallError{Class: FailureUnconfigured, Err: errNoCaller}
	}
	var last *CallError
	for attempt := 1; attempt <= a.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := a.cfg.Sleep(ctx, backoffDelay(attempt-1, a.cfg.BaseBackoff, a.cfg.MaxBackoff)); err != nil {
				return "", &CallError{Class: FailureTimeout, Attempts: attempt - 1, Err: err}
			}
		}
		text, err := a.attempt(ctx, req, attempt)
		if err == nil {
			return text, nil
		}
		class := FailureEmpty
		if !errors.Is(err, errEmpty) {
			class = classifyTransportError(err)
		}
		last = &CallError{Class: class, Attempts: attempt, Err: err}
		slog.Info("llm attempt failed", "attempt", attempt, "class", class.String(), "err", err)
		if !class.Retryable() {
			break
		}
	}
	return "", last
}

func (a *Adapter) attempt(ctx context.Context, req Request, attempt int) (string, error) {
	ctx, span := tracer.Start(ctx, "insight.complete", trace.WithAttributes(
		attribute.String("llm.model", a.caller.ModelName()),
		attribute.Int("llm.attempt", attempt),
	))
	defer span.End()

	if !a.window.Allow() {
		span.SetStatus(codes.Error, errRateLimited.Error())
		return "", errRateLimited
	}
	started := time.Now()
	resp, err := a.caller.Generate(ctx, req)
	span.SetAttributes(attribute.Int64("llm.elapsed_ms", time.Since(started).Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(
		attribute.Int64("llm.input_tokens", resp.InputTokens),
		attribute.Int64("llm.output_tokens", resp.OutputTokens),
	)
	if strings.TrimSpace(resp.Text) == "" {
		span.SetStatus(codes.Error, errEmpty.Error())
		return "", errEmpty
	}
	return resp.Text, nil
}

func (a *Adapter) logFallback(kind string, key Key, err error) {
	var ce *CallError
	if errors.As(err, &ce) && ce.Class == FailureClient {
		slog.Error("llm call rejected, using fallback", "kind", kind, "key", key.String(), "err", err)
		return
	}
	slog.Warn("llm call failed, using fallback", "kind", kind, "key", key.String(), "err", err)
}

func normalize(payload, fallback map[string]any) {
	payload["intent_to_try"] = clamp(numberOr(payload["intent_to_try"], numberOr(fallback["intent_to_try"], 0.5)), 0, 1)
	payload["price_acceptance"] = clamp(numberOr(payload["price_acceptance"], numberOr(fallback["price_acceptance"], 0.5)), 0, 1)
	if _, ok := fallback["friction_hint"]; ok {
		payload["friction_hint"] = clamp(numberOr(payload["friction_hint"], numberOr(fallback["friction_hint"], 0)), -1, 1)
	}
	for _, k := range []string{"reaction", "comment"} {
		if strings.TrimSpace(stringOf(payload[k])) != "" {
			continue
		}
		if fb := stringOf(fallback[k]); fb != "" {
			payload[k] = fb
		}
	}
}

// ToInsight converts a normalized payload into the typed form used for scoring.
func ToInsight(p map[string]any) model.Insight {
	in := model.Insight{
		Reaction:        stringOf(p["reaction"]),
		Comment:         stringOf(p["comment"]),
		IntentToTry:     numberOr(p["intent_to_try"], 0.5),
		PriceAcceptance: numberOr(p["price_acceptance"], 0.5),
		FrictionHint:    numberOr(p["friction_hint"], 0),
	}
	if v, ok := number(p["trend"]); ok {
		in.Trend = &v
	}
	if v, ok := number(p["credibility"]); ok {
		in.Credibility = &v
	}
	return in
}

func number(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func numberOr(v any, def float64) float64 {
	if f, ok := number(v); ok {
		return f
	}
	return def
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
