// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/pdiddy/newsdesk/internal/metrics"
)

// Fallback tries Primary and, on any failure other than cancellation, tries
// Secondary with the same request.
type Fallback struct {
	Primary   Port
	Secondary Port
	Log       zerolog.Logger
}

var _ Port = (*Fallback)(nil)

// Generate implements Port.
func (f *Fallback) Generate(ctx context.Context, req Request) (string, error) {
	text, err := f.Primary.Generate(ctx, req)
	if err == nil || isContextErr(err) {
		return text, err
	}

	f.Log.Warn().Err(err).Msg("primary provider failed, trying fallback")
	text, err2 := f.Secondary.Generate(ctx, req)
	if err2 != nil {
		if isContextErr(err2) {
			return "", err2
		}
		return "", fmt.Errorf("primary: %w; fallback: %w", err, err2)
	}
	return text, nil
}

// RateLimited spaces calls to the wrapped port.
type RateLimited struct {
	next    Port
	limiter *rate.Limiter
}

var _ Port = (*RateLimited)(nil)

// NewRateLimited allows perMinute calls per minute with a burst of one.
// perMinute <= 0 returns next unchanged.
func NewRateLimited(next Port, perMinute int) Port {
	if perMinute <= 0 {
		return next
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Generate waits for a token and delegates.
func (r *RateLimited) Generate(ctx context.Context, req Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.Generate(ctx, req)
}

// Instrumented logs and measures every call to the wrapped port.
type Instrumented struct {
	Next     Port
	Provider string
	Metrics  *metrics.Metrics
	Log      zerolog.Logger
}

var _ Port = (*Instrumented)(nil)

// Generate implements Port.
func (i *Instrumented) Generate(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	text, err := i.Next.Generate(ctx, req)
	elapsed := time.Since(start)

	i.Metrics.ObserveGeneration(i.Provider, elapsed, err)
	ev := i.Log.Debug()
	if err != nil {
		ev = i.Log.Warn().Err(err)
	}
	ev.Str("provider", i.Provider).
		Dur("elapsed", elapsed).
		Int("prompt_chars", len(req.System)+len(req.User)).
		Int("response_chars", len(text)).
		Msg("generation call")
	return text, err
}
