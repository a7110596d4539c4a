package notify

import (
	"context"

	"github.com/arangkita/arang-chat/internal/domain"
)

// Notifier alerts the admin pool about a new customer message. Delivery is
// best-effort and fire-and-forget: a false return is logged by callers but
// never affects the message itself.
type Notifier interface {
	NotifyAdminsOfCustomerMessage(ctx context.Context, msg domain.Message) bool
}

// FanOut dispatches to every configured channel and reports success if at
// least one delivered.
type FanOut []Notifier

func (f FanOut) NotifyAdminsOfCustomerMessage(ctx context.Context, msg domain.Message) bool {
	delivered := false
	for _, n := range f {
		if n.NotifyAdminsOfCustomerMessage(ctx, msg) {
			delivered = true
		}
	}
	return delivered
}

// Nop is used when no notification channel is configured.
type Nop struct{}

func (Nop) NotifyAdminsOfCustomerMessage(context.Context, domain.Message) bool { return true }
