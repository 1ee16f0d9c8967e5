package agentdriver

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"
)

// AdaptiveRateLimiter applies an AIMD-style token bucket in front of a
// Client, grounded on the teacher's
// features/model/middleware.AdaptiveRateLimiter: it estimates a per-request
// token cost, blocks until budget is available, and backs off the
// tokens-per-minute budget on a rate-limit error while slowly probing back
// upward on success. Simplified from the teacher's cluster-aware version
// (goa.design/pulse/rmap-backed shared budget) to a process-local limiter,
// since this harness runs one agent conversation per execution rather than
// a pool of server replicas sharing one provider quota.
type AdaptiveRateLimiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM   float64
	minTPM       float64
	maxTPM       float64
	recoveryRate float64
}

// ErrRateLimited is observed by observe to trigger a backoff; callers
// compare their provider's rate-limit error against it with errors.Is
// after wrapping, or pass it directly when no richer error is available.
var ErrRateLimited = errors.New("agentdriver: provider rate limit exceeded")

// NewAdaptiveRateLimiter returns a limiter with an initial tokens-per-minute
// budget and a ceiling of maxTPM; a non-positive maxTPM, or one below
// initialTPM, is raised to initialTPM. A non-positive initialTPM defaults to
// 60000.
func NewAdaptiveRateLimiter(initialTPM, maxTPM float64) *AdaptiveRateLimiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &AdaptiveRateLimiter{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// Wrap returns a Client that enforces this limiter in front of next.
func (l *AdaptiveRateLimiter) Wrap(next Client) Client {
	if next == nil {
		return nil
	}
	return &limitedClient{next: next, limiter: l}
}

type limitedClient struct {
	next    Client
	limiter *AdaptiveRateLimiter
}

func (c *limitedClient) Complete(ctx context.Context, req Request) (Response, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return Response{}, err
	}
	resp, err := c.next.Complete(ctx, req)
	c.limiter.observe(err)
	return resp, err
}

func (l *AdaptiveRateLimiter) wait(ctx context.Context, req Request) error {
	return l.limiter.WaitN(ctx, estimateTokens(req))
}

func (l *AdaptiveRateLimiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if errors.Is(err, ErrRateLimited) {
		l.backoff()
	}
}

func (l *AdaptiveRateLimiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

func (l *AdaptiveRateLimiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

// estimateTokens is a cheap heuristic: ~1 token per 3 characters of prompt
// plus a fixed buffer for the system prompt and tool schema framing.
func estimateTokens(req Request) int {
	chars := len(req.SystemPrompt) + len(req.Prompt)
	if chars <= 0 {
		return 500
	}
	tokens := chars/3 + 500
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
