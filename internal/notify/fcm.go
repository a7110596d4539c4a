package notify

import (
	"context"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"github.com/arangkita/arang-chat/internal/domain"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// TokenSource lists the device tokens registered by admin users.
type TokenSource interface {
	AdminTokens(ctx context.Context) ([]string, error)
}

// FCMNotifier pushes customer-message alerts to admin devices through
// Firebase Cloud Messaging.
type FCMNotifier struct {
	messaging *messaging.Client
	tokens    TokenSource
}

// NewFCMNotifier creates an FCM notifier from a service account
// credentials file.
func NewFCMNotifier(ctx context.Context, credentialsFile string, tokens TokenSource) (*FCMNotifier, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, err
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, err
	}

	return &FCMNotifier{messaging: client, tokens: tokens}, nil
}

func (f *FCMNotifier) NotifyAdminsOfCustomerMessage(ctx context.Context, msg domain.Message) bool {
	tokens, err := f.tokens.AdminTokens(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load admin push tokens")
		return false
	}

	delivered := false
	for _, token := range tokens {
		_, err := f.messaging.Send(ctx, &messaging.Message{
			Notification: &messaging.Notification{
				Title: "Pesan pelanggan baru",
				Body:  msg.Content,
			},
			Data: map[string]string{
				"session_id": msg.SessionID.String(),
				"sender_id":  msg.SenderID.String(),
			},
			Token: token,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to deliver push notification")
			continue
		}
		delivered = true
	}
	return delivered
}
