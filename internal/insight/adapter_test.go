package insight

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/ideafit/internal/model"
)

type scriptedReply struct {
	text string
	err  error
}

type fakeCaller struct {
	mu      sync.Mutex
	replies []scriptedReply
	calls   int
	reqs    []Request
}

func (f *fakeCaller) Generate(_ context.Context, req Request) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.reqs = append(f.reqs, req)
	if len(f.replies) == 0 {
		return Response{}, errors.New("no scripted reply")
	}
	r := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return Response{Text: r.text}, r.err
}

func (f *fakeCaller) ModelName() string { return "fake-model" }

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func newTestAdapter(caller LLMCaller, cfg Config) (*Adapter, *sleepRecorder) {
	rec := &sleepRecorder{}
	cfg.Sleep = rec.sleep
	return NewAdapter(caller, cfg), rec
}

func reactionFallback() map[string]any {
	return map[string]any{"reaction": "fallback", "intent_to_try": 0.42, "price_acceptance": 0.5, "friction_hint": 0.0}
}

func TestCallJSONSuccessIsClampedAndCached(t *testing.T) {
	caller := &fakeCaller{replies: []scriptedReply{{text: "```json\n{\"reaction\":\"良い\",\"intent_to_try\":1.7,\"price_acceptance\":\"0.3\",\"friction_hint\":-4}\n```"}}}
	a, _ := newTestAdapter(caller, Config{})

	call := JSONCall{System: "s", User: "u", Fallback: reactionFallback(), Key: NewKey("idea-1", "t1")}
	got := a.CallJSON(context.Background(), call)

	assert.Equal(t, "良い", got["reaction"])
	assert.Equal(t, 1.0, got["intent_to_try"])
	assert.Equal(t, 0.3, got["price_acceptance"])
	assert.Equal(t, -1.0, got["friction_hint"])
	require.Len(t, caller.reqs, 1)
	assert.Equal(t, 0.4, caller.reqs[0].Temperature)
	assert.Equal(t, int64(180), caller.reqs[0].MaxTokens)

	again := a.CallJSON(context.Background(), call)
	assert.Equal(t, got, again)
	assert.Equal(t, 1, caller.calls, "cache hit must not reach the caller")
}

func TestCallJSONBackfillsTextAndOmitsFrictionWithoutFallbackKey(t *testing.T) {
	caller := &fakeCaller{replies: []scriptedReply{{text: `{"comment":"  ","intent_to_try":0.2,"friction_hint":3}`}}}
	a, _ := newTestAdapter(caller, Config{})

	fb := map[string]any{"comment": "default comment", "intent_to_try": 0.5, "price_acceptance": 0.6}
	got := a.CallJSON(context.Background(), JSONCall{Fallback: fb})

	assert.Equal(t, "default comment", got["comment"])
	assert.Equal(t, 0.2, got["intent_to_try"])
	assert.Equal(t, 0.6, got["price_acceptance"])
	assert.Equal(t, 3.0, got["friction_hint"])
}

func TestCallJSONMalformedOutputUsesFallbackWithoutRetry(t *testing.T) {
	caller := &fakeCaller{replies: []scriptedReply{{text: "sorry, I cannot answer"}}}
	a, rec := newTestAdapter(caller, Config{})

	fb := reactionFallback()
	got := a.CallJSON(context.Background(), JSONCall{Fallback: fb, Key: "k"})

	assert.Equal(t, "fallback", got["reaction"])
	assert.Equal(t, 1, caller.calls)
	assert.Empty(t, rec.delays)

	got["reaction"] = "mutated"
	assert.Equal(t, "fallback", fb["reaction"])
}

func TestRetryCountsPerFailureClass(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		wantCalls int
	}{
		{name: "server", err: errors.New("status code: 503 upstream"), wantCalls: 3},
		{name: "rate limited upstream", err: errors.New("status 429 too many requests"), wantCalls: 3},
		{name: "timeout", err: fmt.Errorf("request: %w", context.DeadlineExceeded), wantCalls: 3},
		{name: "client", err: errors.New("status code: 401 invalid x-api-key"), wantCalls: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			caller := &fakeCaller{replies: []scriptedReply{{err: tc.err}}}
			a, _ := newTestAdapter(caller, Config{})

			got := a.CallJSON(context.Background(), JSONCall{Fallback: reactionFallback()})
			assert.Equal(t, tc.wantCalls, caller.calls)
			assert.Equal(t, 0.42, got["intent_to_try"])
		})
	}
}

func TestRetryBackoffDelays(t *testing.T) {
	caller := &fakeCaller{replies: []scriptedReply{{err: errors.New("status 500")}}}
	a, rec := newTestAdapter(caller, Config{MaxAttempts: 5})

	a.CallText(context.Background(), TextCall{Fallback: "fb"})

	assert.Equal(t, 5, caller.calls)
	assert.Equal(t, []time.Duration{600 * time.Millisecond, 1200 * time.Millisecond, 2400 * time.Millisecond, 4 * time.Second}, rec.delays)
}

func TestRetryRecoversAfterTransientFailure(t *testing.T) {
	caller := &fakeCaller{replies: []scriptedReply{
		{err: errors.New("status 502")},
		{text: ""},
		{text: `{"intent_to_try":0.9,"price_acceptance":0.1}`},
	}}
	a, rec := newTestAdapter(caller, Config{})

	got := a.CallJSON(context.Background(), JSONCall{Fallback: reactionFallback()})

	assert.Equal(t, 3, caller.calls)
	assert.Len(t, rec.delays, 2)
	assert.Equal(t, 0.9, got["intent_to_try"])
	assert.Equal(t, "fallback", got["reaction"])
}

func TestRateWindowTripCountsAsAttempt(t *testing.T) {
	caller := &fakeCaller{replies: []scriptedReply{{text: `{"intent_to_try":0.9}`}}}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a, rec := newTestAdapter(caller, Config{RatePerMinute: 1, Now: func() time.Time { return now }})

	first := a.CallJSON(context.Background(), JSONCall{Fallback: reactionFallback(), Key: "a"})
	assert.Equal(t, 0.9, first["intent_to_try"])

	second := a.CallJSON(context.Background(), JSONCall{Fallback: reactionFallback(), Key: "b"})
	assert.Equal(t, 0.42, second["intent_to_try"])
	assert.Equal(t, 1, caller.calls, "limited attempts never reach the caller")
	assert.Len(t, rec.delays, 2)
	assert.True(t, a.Window().Limited())
}

func TestUnconfiguredAdapterServesFallback(t *testing.T) {
	a, rec := newTestAdapter(nil, Config{})

	got := a.CallJSON(context.Background(), JSONCall{Fallback: reactionFallback(), Key: "k"})
	assert.Equal(t, "fallback", got["reaction"])
	assert.Empty(t, rec.delays)
	assert.True(t, a.Cache().Contains("k"))

	text := a.CallText(context.Background(), TextCall{Fallback: "コメント不足"})
	assert.Equal(t, "コメント不足", text)

	stats := a.Stats()
	assert.False(t, stats.Configured)
	assert.Equal(t, 1, stats.CacheEntries)
	assert.Equal(t, DefaultCacheSize, stats.CacheCapacity)
}

func TestCompleteReturnsTypedError(t *testing.T) {
	caller := &fakeCaller{replies: []scriptedReply{{err: errors.New("status code: 400 bad request")}}}
	a, _ := newTestAdapter(caller, Config{})

	_, err := a.complete(context.Background(), Request{})
	var ce *CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, FailureClient, ce.Class)
	assert.Equal(t, 1, ce.Attempts)

	a.caller = nil
	_, err = a.complete(context.Background(), Request{})
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, FailureUnconfigured, ce.Class)
	assert.ErrorIs(t, err, errNoCaller)
}

func TestCancelledContextStopsBackoff(t *testing.T) {
	caller := &fakeCaller{replies: []scriptedReply{{err: errors.New("status 503")}}}
	a := NewAdapter(caller, Config{BaseBackoff: time.Hour, MaxBackoff: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := a.CallText(ctx, TextCall{Fallback: "fb"})

	assert.Equal(t, "fb", got)
	assert.Equal(t, 1, caller.calls)
}

func TestCallTextCachesTrimmedText(t *testing.T) {
	caller := &fakeCaller{replies: []scriptedReply{{text: "  要約です \n"}}}
	a, _ := newTestAdapter(caller, Config{})

	key := NewKey("summary", "idea-1", "v1", "abc")
	assert.Equal(t, "要約です", a.CallText(context.Background(), TextCall{Fallback: "fb", Key: key}))
	assert.Equal(t, "要約です", a.CallText(context.Background(), TextCall{Fallback: "fb", Key: key}))
	assert.Equal(t, 1, caller.calls)
	assert.Equal(t, int64(200), caller.reqs[0].MaxTokens)
}

func TestReactUsesIdeaRevisionKey(t *testing.T) {
	caller := &fakeCaller{replies: []scriptedReply{{text: `{"reaction":"試したい","intent_to_try":0.7,"price_acceptance":0.6,"friction_hint":0.1}`}}}
	a, _ := newTestAdapter(caller, Config{})
	idea := model.Idea{ID: "idea-1", UpdatedAt: "2025-01-01T00:00:00Z", Target: "中小企業", Pain: "受付", Solution: "AI受付", Price: 9800, Onboarding: "即日"}

	got := a.React(context.Background(), idea)
	assert.Equal(t, "試したい", got["reaction"])
	assert.Contains(t, caller.reqs[0].User, "9800円")
	assert.True(t, a.Cache().Contains(NewKey(idea.ID, idea.UpdatedAt)))

	a.React(context.Background(), idea)
	assert.Equal(t, 1, caller.calls)

	idea.UpdatedAt = "2025-01-02T00:00:00Z"
	a.React(context.Background(), idea)
	assert.Equal(t, 2, caller.calls)
}

func TestToInsight(t *testing.T) {
	in := ToInsight(map[string]any{"reaction": "r", "intent_to_try": 0.55, "price_acceptance": "0.48", "friction_hint": -0.1, "trend": 0.6})
	assert.Equal(t, "r", in.Reaction)
	assert.Equal(t, 0.55, in.IntentToTry)
	assert.Equal(t, 0.48, in.PriceAcceptance)
	assert.Equal(t, -0.1, in.FrictionHint)
	require.NotNil(t, in.Trend)
	assert.Equal(t, 0.6, *in.Trend)
	assert.Nil(t, in.Credibility)
}
