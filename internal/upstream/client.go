// Package upstream implements the resilient client used for every call
// to the platform: per-endpoint circuit breaking, retry with backoff and
// jitter, per-call timeouts, degraded-response caching, and ledger
// recording of every terminal outcome.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/trustgate/trustgate/internal/breaker"
	"github.com/trustgate/trustgate/internal/ledger"
	"github.com/trustgate/trustgate/internal/redact"
)

// ErrUnavailable is returned when the live call failed (breaker open or
// retries exhausted) and no cached payload could serve the request.
var ErrUnavailable = errors.New("upstream unavailable")

// Options tunes the client's resilience behavior.
type Options struct {
	MaxAttempts      int           // total attempts per call, including the first
	BaseBackoff      time.Duration // first retry delay; doubles each attempt
	MaxBackoff       time.Duration // backoff ceiling
	CallTimeout      time.Duration // per-attempt timeout
	FailureThreshold int           // breaker threshold per endpoint
	Cooldown         time.Duration // breaker cooldown per endpoint
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:      3,
		BaseBackoff:      200 * time.Millisecond,
		MaxBackoff:       5 * time.Second,
		CallTimeout:      30 * time.Second,
		FailureThreshold: 5,
		Cooldown:         60 * time.Second,
	}
}

// Result is the outcome of a Call. Degraded marks payloads served from
// cache after a live failure.
type Result struct {
	Payload  map[string]any
	CallID   string
	Degraded bool
}

// Client is safe for concurrent use across requests. It keeps one
// breaker per logical endpoint and shares the transport's connections.
type Client struct {
	transport Transport
	ledger    *ledger.Ledger
	cache     Cache // nil disables degraded fallback
	opts      Options
	logger    *slog.Logger

	mu       sync.Mutex
	breakers map[string]*breaker.Breaker

	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a resilient client. cache may be nil.
func NewClient(transport Transport, l *ledger.Ledger, cache Cache, opts Options, logger *slog.Logger) *Client {
	return &Client{
		transport: transport,
		ledger:    l,
		cache:     cache,
		opts:      opts,
		logger:    logger,
		breakers:  make(map[string]*breaker.Breaker),
		sleep:     sleepCtx,
	}
}

// Call executes a logical upstream operation. Every terminal outcome is
// recorded in the ledger under requestID; individual retries are not.
// On failure it falls back to the cache, returning a degraded result on
// a hit and ErrUnavailable (wrapped, sanitized) on a miss.
func (c *Client) Call(ctx context.Context, requestID, endpoint string, args map[string]any) (*Result, error) {
	start := time.Now()
	br := c.breakerFor(endpoint)
	cacheKey := redact.Digest(map[string]any{
		"endpoint": endpoint,
		"args":     redact.Tree(args),
	})

	var payload map[string]any
	var lastErr error

	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			retriesTotal.WithLabelValues(endpoint).Inc()
			if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
				lastErr = err
				break
			}
		}

		lastErr = br.Do(func() error {
			callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
			defer cancel()
			p, err := c.transport.Call(callCtx, endpoint, args)
			if err != nil {
				return err
			}
			payload = p
			return nil
		})
		c.observeBreaker(endpoint, br)

		if lastErr == nil {
			latency := time.Since(start).Milliseconds()
			callID := c.ledger.RecordCall(requestID, endpoint, args, payload, ledger.StatusSuccess, latency)
			callsTotal.WithLabelValues(endpoint, string(ledger.StatusSuccess)).Inc()
			if c.cache != nil {
				c.cache.Set(ctx, cacheKey, payload)
			}
			return &Result{Payload: payload, CallID: callID}, nil
		}

		// An open breaker will not recover within this call's retries.
		if errors.Is(lastErr, breaker.ErrOpen) || ctx.Err() != nil {
			break
		}

		c.logger.Warn("upstream attempt failed",
			"endpoint", endpoint,
			"attempt", attempt+1,
			"error", redact.MaskText(lastErr.Error()),
		)
	}

	latency := time.Since(start).Milliseconds()

	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, cacheKey); ok {
			cacheHitsTotal.Inc()
			callID := c.ledger.RecordCall(requestID, endpoint, args, cached, ledger.StatusDegraded, latency)
			callsTotal.WithLabelValues(endpoint, string(ledger.StatusDegraded)).Inc()
			c.logger.Info("serving degraded response from cache",
				"endpoint", endpoint, "request_id", requestID)
			return &Result{Payload: cached, CallID: callID, Degraded: true}, nil
		}
	}

	callID := c.ledger.RecordCall(requestID, endpoint, args, nil, ledger.StatusFailure, latency)
	callsTotal.WithLabelValues(endpoint, string(ledger.StatusFailure)).Inc()

	msg := "no error detail"
	if lastErr != nil {
		msg = redact.MaskText(lastErr.Error())
	}
	return &Result{CallID: callID}, fmt.Errorf("%w: %s: %s", ErrUnavailable, endpoint, msg)
}

// Close shuts down the transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

// BreakerState returns the state of the endpoint's breaker, for status
// reporting. Endpoints never called report closed.
func (c *Client) BreakerState(endpoint string) breaker.State {
	c.mu.Lock()
	br, ok := c.breakers[endpoint]
	c.mu.Unlock()
	if !ok {
		return breaker.StateClosed
	}
	return br.State()
}

func (c *Client) breakerFor(endpoint string) *breaker.Breaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	br, ok := c.breakers[endpoint]
	if !ok {
		br = breaker.New(c.opts.FailureThreshold, c.opts.Cooldown)
		c.breakers[endpoint] = br
	}
	return br
}

// backoff returns the delay before the given attempt (1-based for
// retries): exponential with full jitter on the upper half, capped.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.BaseBackoff << (attempt - 1)
	if d > c.opts.MaxBackoff {
		d = c.opts.MaxBackoff
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

func (c *Client) observeBreaker(endpoint string, br *breaker.Breaker) {
	var v float64
	switch br.State() {
	case breaker.StateHalfOpen:
		v = 1
	case breaker.StateOpen:
		v = 2
	}
	breakerState.WithLabelValues(endpoint).Set(v)
}

// sleepCtx blocks for d or until ctx is done, whichever comes first.
// Only the calling worker blocks.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
