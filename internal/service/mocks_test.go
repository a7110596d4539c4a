package service

import (
	"context"

	"github.com/arangkita/arang-chat/internal/gateway"
	"github.com/stretchr/testify/mock"
)

// MockGateway mocks the persistence gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Find(ctx context.Context, table string, filter gateway.Filter, order *gateway.Order, limit int) ([]gateway.Row, error) {
	args := m.Called(ctx, table, filter, order, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]gateway.Row), args.Error(1)
}

func (m *MockGateway) Insert(ctx context.Context, table string, row gateway.Row) (gateway.Row, error) {
	args := m.Called(ctx, table, row)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(gateway.Row), args.Error(1)
}

func (m *MockGateway) Update(ctx context.Context, table string, filter gateway.Filter, patch gateway.Row) (gateway.Row, error) {
	args := m.Called(ctx, table, filter, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(gateway.Row), args.Error(1)
}

func (m *MockGateway) Subscribe(ctx context.Context, table string, filter gateway.Filter, onInsert func(gateway.Row)) (gateway.Subscription, error) {
	args := m.Called(ctx, table, filter, onInsert)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(gateway.Subscription), args.Error(1)
}
