package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/arangkita/arang-chat/internal/domain"
	"github.com/rs/zerolog/log"
)

// WhatsAppClient forwards customer-message alerts to the store's WhatsApp
// gateway. The gateway is an external black box; only this send endpoint
// is consumed.
type WhatsAppClient struct {
	baseURL     string
	apiKey      string
	adminPhones []string
	httpClient  *http.Client
}

// NewWhatsAppClient creates a WhatsApp gateway client
func NewWhatsAppClient(baseURL, apiKey string, adminPhones []string) *WhatsAppClient {
	return &WhatsAppClient{
		baseURL:     baseURL,
		apiKey:      apiKey,
		adminPhones: adminPhones,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *WhatsAppClient) NotifyAdminsOfCustomerMessage(ctx context.Context, msg domain.Message) bool {
	delivered := false
	for _, phone := range c.adminPhones {
		if err := c.send(ctx, phone, fmt.Sprintf("Pesan baru dari pelanggan: %s", msg.Content)); err != nil {
			log.Warn().Err(err).Str("phone", phone).Msg("Failed to deliver WhatsApp alert")
			continue
		}
		delivered = true
	}
	return delivered
}

func (c *WhatsAppClient) send(ctx context.Context, phone, text string) error {
	payload := map[string]any{
		"target":  phone,
		"message": text,
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp gateway returned status %d", resp.StatusCode)
	}
	return nil
}
