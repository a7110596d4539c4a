package notify

import (
	"context"
	"fmt"

	"github.com/arangkita/arang-chat/internal/domain"
	"github.com/arangkita/arang-chat/internal/gateway"
	"github.com/google/uuid"
)

const tokensTable = "push_tokens"

// TokenStore keeps device push tokens in the persistence gateway, one row
// per token. Re-registering an existing token re-binds it to the latest
// user.
type TokenStore struct {
	gw gateway.Gateway
}

// NewTokenStore creates a gateway-backed token store
func NewTokenStore(gw gateway.Gateway) *TokenStore {
	return &TokenStore{gw: gw}
}

// Register stores a device token for a user.
func (s *TokenStore) Register(ctx context.Context, userID uuid.UUID, role domain.Role, token string) error {
	patch := gateway.Row{
		"user_id": userID.String(),
		"role":    string(role),
	}
	updated, err := s.gw.Update(ctx, tokensTable, gateway.Filter{"token": token}, patch)
	if err != nil {
		return fmt.Errorf("failed to update push token: %w", err)
	}
	if updated != nil {
		return nil
	}

	row := gateway.Row{
		"user_id": userID.String(),
		"role":    string(role),
		"token":   token,
	}
	inserted, err := s.gw.Insert(ctx, tokensTable, row)
	if err != nil {
		return fmt.Errorf("failed to register push token: %w", err)
	}
	if inserted == nil {
		return fmt.Errorf("push token registration was rejected")
	}
	return nil
}

// AdminTokens lists tokens registered by admin users.
func (s *TokenStore) AdminTokens(ctx context.Context) ([]string, error) {
	rows, err := s.gw.Find(ctx, tokensTable, gateway.Filter{"role": string(domain.RoleAdmin)}, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list admin tokens: %w", err)
	}

	tokens := make([]string, 0, len(rows))
	for _, row := range rows {
		if t, ok := row["token"].(string); ok && t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens, nil
}
