package repository

import (
	"context"
	"testing"

	"zerosaver/internal/catalog"
	"zerosaver/internal/clock"
	"zerosaver/internal/domain"
	"zerosaver/internal/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func storedQuantity(t *testing.T, id string) int {
	t.Helper()
	deal, err := NewDealRepository(testDB).FindByID(context.Background(), id)
	require.NoError(t, err)
	return deal.Quantity
}

func TestOrderRepository_HoldAndRelease(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	require.NoError(t, NewDealRepository(testDB).Create(ctx, storedDeal("d-1")))
	repo := NewOrderRepository(testDB)

	line := domain.CartLine{DealID: "d-1", Title: "Pastry bag", VendorName: "Green Bakery", Price: 6, Quantity: 2, ReservedAt: baseTime}
	require.NoError(t, repo.ConfirmHold(ctx, "alice", line, 2))
	line.Quantity = 3
	require.NoError(t, repo.ConfirmHold(ctx, "alice", line, 1))

	items, err := repo.CartItems(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, 2, storedQuantity(t, "d-1"))

	require.NoError(t, repo.ReleaseHold(ctx, "alice", "d-1", 3))
	items, err = repo.CartItems(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 5, storedQuantity(t, "d-1"))
}

func TestOrderRepository_HoldBeyondStoredStockRollsBack(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	require.NoError(t, NewDealRepository(testDB).Create(ctx, storedDeal("d-1")))
	repo := NewOrderRepository(testDB)

	line := domain.CartLine{DealID: "d-1", Title: "Pastry bag", Price: 6, Quantity: 6, ReservedAt: baseTime}
	err := repo.ConfirmHold(ctx, "alice", line, 6)

	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	items, err := repo.CartItems(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 5, storedQuantity(t, "d-1"))
}

func TestOrderRepository_ReleaseAfterRetire(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	deals := NewDealRepository(testDB)
	require.NoError(t, deals.Create(ctx, storedDeal("d-1")))
	repo := NewOrderRepository(testDB)

	line := domain.CartLine{DealID: "d-1", Title: "Pastry bag", Price: 6, Quantity: 2, ReservedAt: baseTime}
	require.NoError(t, repo.ConfirmHold(ctx, "alice", line, 2))
	require.NoError(t, deals.MarkRetired(ctx, []string{"d-1"}))

	require.NoError(t, repo.ReleaseHold(ctx, "alice", "d-1", 2))
	assert.Equal(t, 3, storedQuantity(t, "d-1"))
}

func TestOrderRepository_LowerHoldReturnsStock(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	require.NoError(t, NewDealRepository(testDB).Create(ctx, storedDeal("d-1")))
	repo := NewOrderRepository(testDB)

	line := domain.CartLine{DealID: "d-1", Title: "Pastry bag", Price: 6, Quantity: 4, ReservedAt: baseTime}
	require.NoError(t, repo.ConfirmHold(ctx, "alice", line, 4))
	line.Quantity = 1
	require.NoError(t, repo.ConfirmHold(ctx, "alice", line, -3))

	items, err := repo.CartItems(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, 4, storedQuantity(t, "d-1"))
}

func TestOrderRepository_LowerHoldAfterRetire(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	deals := NewDealRepository(testDB)
	require.NoError(t, deals.Create(ctx, storedDeal("d-1")))
	repo := NewOrderRepository(testDB)

	line := domain.CartLine{DealID: "d-1", Title: "Pastry bag", Price: 6, Quantity: 4, ReservedAt: baseTime}
	require.NoError(t, repo.ConfirmHold(ctx, "alice", line, 4))
	require.NoError(t, deals.MarkRetired(ctx, []string{"d-1"}))

	line.Quantity = 1
	require.NoError(t, repo.ConfirmHold(ctx, "alice", line, -3))

	items, err := repo.CartItems(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, 1, storedQuantity(t, "d-1"))
}

func TestOrderRepository_ReleaseAll(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	deals := NewDealRepository(testDB)
	require.NoError(t, deals.Create(ctx, storedDeal("d-1")))
	require.NoError(t, deals.Create(ctx, storedDeal("d-2")))
	repo := NewOrderRepository(testDB)

	lines := []domain.CartLine{
		{DealID: "d-1", Title: "Pastry bag", Price: 6, Quantity: 2, ReservedAt: baseTime},
		{DealID: "d-2", Title: "Pastry bag", Price: 6, Quantity: 3, ReservedAt: baseTime},
	}
	for _, line := range lines {
		require.NoError(t, repo.ConfirmHold(ctx, "alice", line, line.Quantity))
	}
	require.NoError(t, deals.MarkRetired(ctx, []string{"d-2"}))

	require.NoError(t, repo.ReleaseAll(ctx, "alice", lines))

	items, err := repo.CartItems(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 5, storedQuantity(t, "d-1"))
	assert.Equal(t, 2, storedQuantity(t, "d-2"))
}

func TestOrderRepository_BacksLedgerCheckout(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	clk := clock.NewManual(baseTime)
	c := catalog.New(clk, zap.NewNop())

	deal := storedDeal("d-1")
	_, err := c.Publish(*deal)
	require.NoError(t, err)
	require.NoError(t, NewDealRepository(testDB).Create(ctx, deal))

	repo := NewOrderRepository(testDB)
	l := ledger.New("alice", c, repo, zap.NewNop())

	_, err = l.Reserve(ctx, "d-1", 4)
	require.NoError(t, err)
	assert.Equal(t, 1, storedQuantity(t, "d-1"))

	order, err := l.Checkout(ctx)
	require.NoError(t, err)

	items, err := repo.CartItems(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, items)

	orders, err := repo.ListByCustomer(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, order.ID, orders[0].ID)
	assert.Equal(t, order.PickupCode, orders[0].PickupCode)
	assert.Equal(t, 24.0, orders[0].TotalAmount)
	assert.Equal(t, domain.OrderStatusPending, orders[0].Status)
	require.Len(t, orders[0].Lines, 1)
	assert.Equal(t, 4, orders[0].Lines[0].Quantity)
	assert.Equal(t, 1, storedQuantity(t, "d-1"))
}

func TestOrderRepository_DuplicatePickupCode(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewOrderRepository(testDB)

	order := domain.Order{
		ID:          "8f14e45f-ceea-467e-a6b2-7a7c6f0d8a01",
		CustomerID:  "alice",
		TotalAmount: 0,
		PickupCode:  "AB12C",
		Status:      domain.OrderStatusPending,
		CreatedAt:   baseTime,
	}
	require.NoError(t, repo.PlaceOrder(ctx, order))

	order.ID = "c9f0f895-fb98-4b91-9f7a-1b3e8d2c4e02"
	err := repo.PlaceOrder(ctx, order)
	assert.ErrorIs(t, err, ErrPickupCodeTaken)
	assert.ErrorIs(t, err, ledger.ErrPickupCodeTaken)
}

func TestOrderRepository_CustomersAndRestore(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	deals := NewDealRepository(testDB)
	require.NoError(t, deals.Create(ctx, storedDeal("d-1")))

	c := catalog.New(clock.NewManual(baseTime), zap.NewNop())
	_, err := c.Publish(*storedDeal("d-1"))
	require.NoError(t, err)

	repo := NewOrderRepository(testDB)
	alice := ledger.New("alice", c, repo, zap.NewNop())
	bob := ledger.New("bob", c, repo, zap.NewNop())

	_, err = alice.Reserve(ctx, "d-1", 2)
	require.NoError(t, err)
	_, err = bob.Reserve(ctx, "d-1", 1)
	require.NoError(t, err)
	_, err = bob.Checkout(ctx)
	require.NoError(t, err)

	customers, err := repo.Customers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, customers)

	// Reload into a fresh catalog as a restarted process would
	active, err := deals.ListActive(ctx, baseTime)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 2, active[0].Quantity)

	restarted := catalog.New(clock.NewManual(baseTime), zap.NewNop())
	_, err = restarted.Publish(active[0])
	require.NoError(t, err)

	lines, err := repo.CartItems(ctx, "alice")
	require.NoError(t, err)
	orders, err := repo.ListByCustomer(ctx, "alice")
	require.NoError(t, err)
	restored := ledger.New("alice", restarted, repo, zap.NewNop())
	restored.Restore(lines, orders)

	require.NoError(t, restored.Cancel(ctx, "d-1"))
	deal, err := restarted.Get("d-1")
	require.NoError(t, err)
	assert.Equal(t, 4, deal.Quantity)
	assert.Equal(t, 4, storedQuantity(t, "d-1"))
}
