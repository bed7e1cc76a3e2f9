package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"zerosaver/internal/catalog"
	"zerosaver/internal/clock"
	"zerosaver/internal/domain"
	"zerosaver/internal/events"
	"zerosaver/internal/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// blockingBackend holds every call until the context is done.
type blockingBackend struct {
	ledger.NopBackend
}

func (blockingBackend) ConfirmHold(ctx context.Context, _ string, _ domain.CartLine, _ int) error {
	<-ctx.Done()
	return ctx.Err()
}

func newCartFixture(t *testing.T, backend ledger.Backend, timeout time.Duration) (*catalog.Catalog, *MockPublisher, CartService) {
	t.Helper()
	c := catalog.New(clock.NewManual(baseTime), zap.NewNop())
	_, err := c.Publish(sampleDeal("d-1"))
	require.NoError(t, err)

	pub := new(MockPublisher)
	registry := ledger.NewRegistry(c, backend, zap.NewNop())
	return c, pub, NewCartService(registry, c, pub, timeout, zap.NewNop())
}

func TestCartService_ReserveAndCart(t *testing.T) {
	c, _, svc := newCartFixture(t, nil, time.Second)
	ctx := context.Background()

	line, err := svc.Reserve(ctx, "alice", "d-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, line.Quantity)

	cart := svc.Cart("alice")
	assert.Equal(t, "alice", cart.CustomerID)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 12.0, cart.Total)

	assert.Empty(t, svc.Cart("bob").Lines)

	deal, err := c.Get("d-1")
	require.NoError(t, err)
	assert.Equal(t, 3, deal.Quantity)
}

func TestCartService_CheckoutPublishesOrder(t *testing.T) {
	_, pub, svc := newCartFixture(t, nil, time.Second)
	ctx := context.Background()
	_, err := svc.Reserve(ctx, "alice", "d-1", 2)
	require.NoError(t, err)

	pub.On("Publish", mock.Anything, events.OrderPlaced, mock.MatchedBy(func(ev events.OrderEvent) bool {
		return ev.CustomerID == "alice" && ev.Items == 2 && ev.TotalAmount == 12
	})).Return(nil).Once()

	order, err := svc.Checkout(ctx, "alice")

	require.NoError(t, err)
	assert.Len(t, order.PickupCode, 5)
	assert.Empty(t, svc.Cart("alice").Lines)
	assert.Equal(t, []domain.Order{order}, svc.Orders("alice"))
	pub.AssertExpectations(t)
}

func TestCartService_CheckoutIgnoresBrokerFailure(t *testing.T) {
	_, pub, svc := newCartFixture(t, nil, time.Second)
	ctx := context.Background()
	_, err := svc.Reserve(ctx, "alice", "d-1", 1)
	require.NoError(t, err)
	pub.On("Publish", mock.Anything, events.OrderPlaced, mock.Anything).Return(errors.New("broker down")).Once()

	_, err = svc.Checkout(ctx, "alice")

	assert.NoError(t, err)
}

func TestCartService_CheckoutEmptyCart(t *testing.T) {
	_, pub, svc := newCartFixture(t, nil, time.Second)

	_, err := svc.Checkout(context.Background(), "alice")

	assert.ErrorIs(t, err, domain.ErrEmptyCart)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestCartService_CancelAndLostStock(t *testing.T) {
	c, _, svc := newCartFixture(t, nil, 0)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, "alice", "d-1", 5)
	require.NoError(t, err)
	require.Equal(t, 1, c.SweepExpired(c.Now()))

	require.NoError(t, svc.Cancel(ctx, "alice", "d-1"))
	assert.Equal(t, map[string]int{"d-1": 5}, svc.LostStock())
	assert.Empty(t, svc.Cart("alice").Lines)
}

func TestCartService_BackendTimeoutRollsBack(t *testing.T) {
	c, _, svc := newCartFixture(t, blockingBackend{}, 20*time.Millisecond)

	_, err := svc.Reserve(context.Background(), "alice", "d-1", 2)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, svc.Cart("alice").Lines)
	deal, err := c.Get("d-1")
	require.NoError(t, err)
	assert.Equal(t, 5, deal.Quantity)
}

func TestCartService_SetQuantityAndClear(t *testing.T) {
	c, _, svc := newCartFixture(t, nil, time.Second)
	ctx := context.Background()
	_, err := svc.Reserve(ctx, "alice", "d-1", 1)
	require.NoError(t, err)

	line, err := svc.SetQuantity(ctx, "alice", "d-1", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, line.Quantity)
	assert.Equal(t, 24.0, svc.Cart("alice").Total)

	deal, err := c.Get("d-1")
	require.NoError(t, err)
	assert.Equal(t, 1, deal.Quantity)

	require.NoError(t, svc.Clear(ctx, "alice"))
	assert.Empty(t, svc.Cart("alice").Lines)

	deal, err = c.Get("d-1")
	require.NoError(t, err)
	assert.Equal(t, 5, deal.Quantity)
}

func TestCartService_SetQuantityTimeoutRollsBack(t *testing.T) {
	c := catalog.New(clock.NewManual(baseTime), zap.NewNop())
	_, err := c.Publish(sampleDeal("d-1"))
	require.NoError(t, err)
	registry := ledger.NewRegistry(c, nil, zap.NewNop())
	_, err = registry.For("alice").Reserve(context.Background(), "d-1", 1)
	require.NoError(t, err)

	blocked := ledger.NewRegistry(c, blockingBackend{}, zap.NewNop())
	blocked.For("alice").Restore(registry.For("alice").Lines(), nil)
	svc := NewCartService(blocked, c, nil, 20*time.Millisecond, zap.NewNop())

	_, err = svc.SetQuantity(context.Background(), "alice", "d-1", 3)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, svc.Cart("alice").Lines[0].Quantity)
	deal, err := c.Get("d-1")
	require.NoError(t, err)
	assert.Equal(t, 4, deal.Quantity)
}
