package callback

import (
	"context"
	"fmt"
	"net/url"
	"time"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
	"github.com/target/mmk-portal/internal/ports"
)

const (
	// DefaultRoute is where unmatched roles land.
	DefaultRoute = "/"
	// DefaultSignInPath is where failures end up.
	DefaultSignInPath = "/auth/login"
	// DefaultFailureDelay is how long a failure message stays up before redirecting.
	DefaultFailureDelay = 2 * time.Second
)

// OutcomeRouter turns a settled outcome into navigation.
type OutcomeRouter struct {
	Routes    ports.RouteTable
	Navigator ports.Navigator
	Notifier  ports.Notifier
	Waiter    ports.Waiter

	DefaultRoute string
	SignInPath   string
	FailureDelay time.Duration
}

// ResolveRoute returns the landing path for role.
func (r OutcomeRouter) ResolveRoute(role domainauth.Role) string {
	if r.Routes != nil {
		if path, ok := r.Routes.Lookup(role); ok && path != "" {
			return path
		}
	}
	if r.DefaultRoute != "" {
		return r.DefaultRoute
	}
	return DefaultRoute
}

// Delay is the pause before a failure redirects to sign-in.
func (r OutcomeRouter) Delay() time.Duration {
	if r.FailureDelay > 0 {
		return r.FailureDelay
	}
	return DefaultFailureDelay
}

func (r OutcomeRouter) signIn() string {
	if r.SignInPath != "" {
		return r.SignInPath
	}
	return DefaultSignInPath
}

// Route navigates for outcome. current, when set, has its callback parameters
// stripped before navigating so a reload cannot replay the exchange.
//
// A failure shows its message, waits Delay, then replaces the location with the
// sign-in path. If ctx ends during the wait nothing is navigated.
func (r OutcomeRouter) Route(ctx context.Context, current *url.URL, outcome domainauth.CallbackOutcome) error {
	switch o := outcome.(type) {
	case domainauth.Success:
		StripTransientParams(current)
		path := o.Route
		if path == "" {
			path = r.ResolveRoute(o.Identity.Role)
		}
		if err := r.Navigator.Replace(ctx, path); err != nil {
			return fmt.Errorf("navigate to %s: %w", path, err)
		}
		return nil
	case domainauth.Failure:
		StripTransientParams(current)
		delay := o.RetryAfter
		if delay <= 0 {
			delay = r.Delay()
		}
		if r.Notifier != nil {
			r.Notifier.Notify(ctx, ports.Notice{Kind: o.Kind, Message: o.Message, RetryAfter: delay})
		}
		if err := r.Waiter.Wait(ctx, delay); err != nil {
			return fmt.Errorf("wait before sign-in redirect: %w", err)
		}
		if err := r.Navigator.Replace(ctx, r.signIn()); err != nil {
			return fmt.Errorf("navigate to sign-in: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown callback outcome %T", outcome)
	}
}

// TimerWaiter waits on a real timer.
type TimerWaiter struct{}

// Wait blocks for d or until ctx is done. The timer is stopped either way.
func (TimerWaiter) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
