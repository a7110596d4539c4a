package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/arangkita/arang-chat/internal/gateway"
	"github.com/rs/zerolog/log"
)

const feedChannelPrefix = "feed:"

// Feed implements the change-feed transport over Redis pub/sub. Every
// gateway insert is published on feed:<table>; subscribers receive rows
// after a JSON round-trip, in publish order per channel.
type Feed struct {
	client *Client
}

// NewFeed creates a new change feed
func NewFeed(client *Client) *Feed {
	return &Feed{client: client}
}

// Publish broadcasts an inserted row to the table's channel.
func (f *Feed) Publish(ctx context.Context, table string, row gateway.Row) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal feed row: %w", err)
	}
	if err := f.client.rdb.Publish(ctx, feedChannelPrefix+table, data).Err(); err != nil {
		return fmt.Errorf("failed to publish feed row: %w", err)
	}
	return nil
}

// Subscribe delivers every row inserted into the table until the handle is
// closed or the context ends. Callbacks run on the receive goroutine, so
// one subscription sees rows in arrival order.
func (f *Feed) Subscribe(ctx context.Context, table string, fn func(gateway.Row)) (gateway.Subscription, error) {
	pubsub := f.client.rdb.Subscribe(ctx, feedChannelPrefix+table)

	// Force the subscription to be established before returning, so rows
	// inserted after Subscribe returns are guaranteed to be delivered.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s feed: %w", table, err)
	}

	sub := &feedSubscription{pubsub: pubsub}

	go func() {
		for msg := range pubsub.Channel() {
			var row gateway.Row
			if err := json.Unmarshal([]byte(msg.Payload), &row); err != nil {
				log.Warn().Err(err).Str("table", table).Msg("Dropping malformed feed event")
				continue
			}
			fn(row)
		}
	}()

	return sub, nil
}

type feedSubscription struct {
	once   sync.Once
	pubsub interface{ Close() error }
}

func (s *feedSubscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.pubsub.Close()
	})
	return err
}
