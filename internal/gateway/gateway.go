package gateway

import "context"

// Row is a weakly-typed store row. Rows are mapped into domain types at
// the first consumer boundary and never travel further untyped.
type Row = map[string]any

// Filter matches rows by field. Values are compared for equality unless
// wrapped in one of the predicate constructors below.
type Filter map[string]any

// InCond matches when the field equals any of the listed values.
type InCond struct{ Values []any }

// NeCond matches when the field differs from the value. A missing field
// also matches, mirroring Mongo's $ne semantics; this is what lets a
// single predicate cover both explicit-false and legacy-absent read flags.
type NeCond struct{ Value any }

// ExistsCond matches on field presence (or absence when Set is false).
type ExistsCond struct{ Set bool }

// In builds an InCond.
func In(values ...any) InCond { return InCond{Values: values} }

// Ne builds a NeCond.
func Ne(value any) NeCond { return NeCond{Value: value} }

// Exists builds an ExistsCond.
func Exists(set bool) ExistsCond { return ExistsCond{Set: set} }

// Order describes a single-field sort. Rows missing the field sort last
// regardless of direction.
type Order struct {
	Field string
	Desc  bool
}

// Subscription is an owned live-feed handle. Close is idempotent and must
// be called exactly once per acquisition path; after Close no further
// callbacks fire.
type Subscription interface {
	Close() error
}

// Gateway is the persistence contract the chat subsystem consumes.
//
// Insert and Update return the affected row, or nil with a nil error when
// the store silently rejected the write (e.g. row-level access control
// hides the row from the writer). Callers must treat a nil row as failure,
// not as zero results.
type Gateway interface {
	Find(ctx context.Context, table string, filter Filter, order *Order, limit int) ([]Row, error)
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Update(ctx context.Context, table string, filter Filter, patch Row) (Row, error)
	Subscribe(ctx context.Context, table string, filter Filter, onInsert func(Row)) (Subscription, error)
}

// Feed is the change-feed transport behind Subscribe. Implementations
// deliver every inserted row of a table, in insert order per table.
type Feed interface {
	Publish(ctx context.Context, table string, row Row) error
	Subscribe(ctx context.Context, table string, fn func(Row)) (Subscription, error)
}
