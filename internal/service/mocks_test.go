package service

import (
	"context"
	"time"

	"zerosaver/internal/domain"

	"github.com/stretchr/testify/mock"
)

// MockDealStore is a mock implementation of DealStore
type MockDealStore struct {
	mock.Mock
}

func (m *MockDealStore) Create(ctx context.Context, deal *domain.Deal) error {
	args := m.Called(ctx, deal)
	return args.Error(0)
}

func (m *MockDealStore) ListActive(ctx context.Context, now time.Time) ([]domain.Deal, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Deal), args.Error(1)
}

func (m *MockDealStore) MarkRetired(ctx context.Context, ids []string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockDealStore) RetireStale(ctx context.Context, now time.Time) ([]string, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDealStore) AddQuantity(ctx context.Context, id string, delta int) error {
	args := m.Called(ctx, id, delta)
	return args.Error(0)
}

// MockPublisher is a mock implementation of events.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	args := m.Called(ctx, routingKey, payload)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}

// MockCartStore is a mock implementation of CartStore
type MockCartStore struct {
	mock.Mock
}

func (m *MockCartStore) Customers(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockCartStore) CartItems(ctx context.Context, customerID string) ([]domain.CartLine, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CartLine), args.Error(1)
}

func (m *MockCartStore) ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Order), args.Error(1)
}
