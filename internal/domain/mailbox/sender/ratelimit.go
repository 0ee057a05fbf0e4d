package sender

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/mailbox"
)

// RateLimited spaces out replies so a large batch does not trip the
// provider's sending limits.
type RateLimited struct {
	next    Sender
	limiter *rate.Limiter
}

// NewRateLimited allows perMinute replies per minute with a burst of one.
// A non-positive rate disables the limit.
func NewRateLimited(next Sender, perMinute int) *RateLimited {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, 1)}
}

// Send waits for a token and forwards the reply.
func (r *RateLimited) Send(ctx context.Context, reply mailbox.Reply) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for send slot: %w", err)
	}
	return r.next.Send(ctx, reply)
}
