package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arangkita/arang-chat/internal/gateway"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Gateway implements gateway.Gateway on MongoDB, with inserts fanned out
// on the change feed. Documents carry an application-level "id" field
// (uuid string) alongside Mongo's own _id.
type Gateway struct {
	db   *DB
	feed gateway.Feed
}

// NewGateway creates a Mongo-backed persistence gateway
func NewGateway(db *DB, feed gateway.Feed) *Gateway {
	return &Gateway{db: db, feed: feed}
}

func (g *Gateway) Find(ctx context.Context, table string, filter gateway.Filter, order *gateway.Order, limit int) ([]gateway.Row, error) {
	opts := options.Find()
	if order != nil {
		dir := 1
		if order.Desc {
			dir = -1
		}
		// Missing fields sort as smallest in Mongo, so descending order
		// already places null/absent timestamps last.
		opts.SetSort(bson.D{{Key: order.Field, Value: dir}})
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := g.db.db.Collection(table).Find(ctx, toBSON(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find in %s: %w", table, err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode rows from %s: %w", table, err)
	}

	rows := make([]gateway.Row, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, normalizeRow(doc))
	}
	return rows, nil
}

func (g *Gateway) Insert(ctx context.Context, table string, row gateway.Row) (gateway.Row, error) {
	doc := bson.M{}
	for k, v := range row {
		doc[k] = v
	}
	// Server-assigned id and timestamp, like a store-side column default.
	if _, ok := doc["id"]; !ok {
		doc["id"] = uuid.NewString()
	}
	if _, ok := doc["created_at"]; !ok {
		doc["created_at"] = time.Now().UTC()
	}

	if _, err := g.db.db.Collection(table).InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", table, err)
	}

	// Read the row back through the same access path the caller uses. A
	// write the reader cannot see comes back as nil, which callers must
	// treat as a rejected insert.
	var inserted bson.M
	err := g.db.db.Collection(table).FindOne(ctx, bson.M{"id": doc["id"]}).Decode(&inserted)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read back insert into %s: %w", table, err)
	}

	result := normalizeRow(inserted)
	if err := g.feed.Publish(ctx, table, result); err != nil {
		log.Warn().Err(err).Str("table", table).Msg("Failed to publish insert to change feed")
	}
	return result, nil
}

func (g *Gateway) Update(ctx context.Context, table string, filter gateway.Filter, patch gateway.Row) (gateway.Row, error) {
	set := bson.M{}
	for k, v := range patch {
		set[k] = v
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated bson.M
	err := g.db.db.Collection(table).
		FindOneAndUpdate(ctx, toBSON(filter), bson.M{"$set": set}, opts).
		Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", table, err)
	}

	// Apply the patch to any remaining matches so filter-wide updates
	// (mark-all-as-read) cover the whole set, not just one row.
	if _, err := g.db.db.Collection(table).UpdateMany(ctx, toBSON(filter), bson.M{"$set": set}); err != nil {
		return nil, fmt.Errorf("failed to update remaining rows in %s: %w", table, err)
	}

	return normalizeRow(updated), nil
}

func (g *Gateway) Subscribe(ctx context.Context, table string, filter gateway.Filter, onInsert func(gateway.Row)) (gateway.Subscription, error) {
	return g.feed.Subscribe(ctx, table, func(row gateway.Row) {
		if gateway.Match(filter, row) {
			onInsert(row)
		}
	})
}

// toBSON translates gateway filter predicates into Mongo query operators.
func toBSON(filter gateway.Filter) bson.M {
	query := bson.M{}
	for field, cond := range filter {
		switch c := cond.(type) {
		case gateway.InCond:
			query[field] = bson.M{"$in": c.Values}
		case gateway.NeCond:
			query[field] = bson.M{"$ne": c.Value}
		case gateway.ExistsCond:
			query[field] = bson.M{"$exists": c.Set}
		default:
			query[field] = cond
		}
	}
	return query
}

// normalizeRow strips driver-specific value types so rows look the same
// whether they came off the store or the feed.
func normalizeRow(doc bson.M) gateway.Row {
	row := gateway.Row{}
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		row[k] = normalizeValue(v)
	}
	return row
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.M:
		m := map[string]any{}
		for k, mv := range t {
			m[k] = normalizeValue(mv)
		}
		return m
	case primitive.A:
		a := make([]any, len(t))
		for i, av := range t {
			a[i] = normalizeValue(av)
		}
		return a
	case int32:
		return int64(t)
	default:
		return v
	}
}
