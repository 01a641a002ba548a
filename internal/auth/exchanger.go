package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// DefaultCookieWait bounds how long Exchange waits for the auth service to
// emit session cookies after the exchange call returns.
const DefaultCookieWait = time.Second

// CodeExchanger is the part of the auth service the Exchanger drives.
// Implementations may emit cookies to sink before returning, from another
// goroutine afterwards, or not at all.
type CodeExchanger interface {
	ExchangeCodeForSession(ctx context.Context, code string, cookies []*http.Cookie, sink CookieSink) error
}

// ExchangeResult is the outcome of a successful exchange.
type ExchangeResult struct {
	Cookies []Cookie
	// TimedOut is set when the wait for cookies ended on the deadline rather
	// than on an emitted batch.
	TimedOut bool
}

// Exchanger converts a one-time authorization code into session cookies.
type Exchanger struct {
	auth CodeExchanger
	wait time.Duration
}

// NewExchanger builds an Exchanger; a non-positive wait selects DefaultCookieWait.
func NewExchanger(auth CodeExchanger, wait time.Duration) *Exchanger {
	if wait <= 0 {
		wait = DefaultCookieWait
	}
	return &Exchanger{auth: auth, wait: wait}
}

// Exchange runs the code exchange and returns the cookies to attach to the
// redirect. An empty code fails with ErrMissingCode without calling the auth
// service. If no cookie batch arrives before the wait elapses, Exchange
// proceeds with whatever has been collected.
func (e *Exchanger) Exchange(ctx context.Context, code string, requestCookies []*http.Cookie) (ExchangeResult, error) {
	if code == "" {
		return ExchangeResult{}, ErrMissingCode
	}
	if e == nil || e.auth == nil {
		return ExchangeResult{}, fmt.Errorf("%w: auth service unavailable", ErrExchangeFailed)
	}

	collector := newCookieCollector()
	if err := e.auth.ExchangeCodeForSession(ctx, code, requestCookies, collector); err != nil {
		return ExchangeResult{}, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}

	timer := time.NewTimer(e.wait)
	defer timer.Stop()

	var timedOut bool
	select {
	case <-collector.Done():
	case <-timer.C:
		timedOut = true
	case <-ctx.Done():
		timedOut = true
	}

	return ExchangeResult{Cookies: collector.List(), TimedOut: timedOut}, nil
}
