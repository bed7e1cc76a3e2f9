package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"zerosaver/internal/domain"
)

var ErrDealAlreadyExists = errors.New("deal with this id already exists")

// DealRepository defines the interface for deal data access
type DealRepository interface {
	Create(ctx context.Context, deal *domain.Deal) error
	FindByID(ctx context.Context, id string) (*domain.Deal, error)
	ListActive(ctx context.Context, now time.Time) ([]domain.Deal, error)
	MarkRetired(ctx context.Context, ids []string) error
	RetireStale(ctx context.Context, now time.Time) ([]string, error)
	AddQuantity(ctx context.Context, id string, delta int) error
}

type dealRepository struct {
	db *sql.DB
}

// NewDealRepository creates a new instance of DealRepository
func NewDealRepository(db *sql.DB) DealRepository {
	return &dealRepository{db: db}
}

const dealColumns = `id, vendor_id, vendor_name, title, description, image_url, category,
	diet_tags, tags, allergens, cold_chain, original_price, price, quantity, min_order_qty,
	distance_km, pickup_address, pickup_notes, pickup_start, pickup_end, best_before,
	expires_at, created_at`

// Create inserts a new deal using parameterized queries
func (r *dealRepository) Create(ctx context.Context, deal *domain.Deal) error {
	diet, tags, allergens, err := encodeLists(deal)
	if err != nil {
		return err
	}

	query := `INSERT INTO deals (` + dealColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23)`

	_, err = conn(ctx, r.db).ExecContext(
		ctx,
		query,
		deal.ID,
		deal.VendorID,
		deal.VendorName,
		deal.Title,
		deal.Description,
		deal.ImageURL,
		deal.Category,
		diet,
		tags,
		allergens,
		deal.ColdChain,
		deal.OriginalPrice,
		deal.Price,
		deal.Quantity,
		deal.MinOrderQty,
		deal.DistanceKm,
		deal.PickupAddress,
		deal.PickupNotes,
		nullTime(deal.PickupStart),
		nullTime(deal.PickupEnd),
		nullTime(deal.BestBefore),
		deal.ExpiresAt,
		deal.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDealAlreadyExists
		}
		return fmt.Errorf("failed to create deal: %w", err)
	}
	return nil
}

// FindByID retrieves a deal whether or not it has been retired
func (r *dealRepository) FindByID(ctx context.Context, id string) (*domain.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals WHERE id = $1`

	deal, err := scanDeal(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find deal: %w", err)
	}
	return &deal, nil
}

// ListActive returns the unretired deals that still have stock and have not
// expired at now, oldest first.
func (r *dealRepository) ListActive(ctx context.Context, now time.Time) ([]domain.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals
		WHERE retired_at IS NULL AND quantity > 0 AND expires_at >= $1
		ORDER BY created_at, id`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list active deals: %w", err)
	}
	defer rows.Close()

	deals := []domain.Deal{}
	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deal: %w", err)
		}
		deals = append(deals, deal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deals: %w", err)
	}
	return deals, nil
}

// MarkRetired stamps the given deals as retired. Unknown ids are ignored.
func (r *dealRepository) MarkRetired(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := `UPDATE deals SET retired_at = NOW() WHERE id = ANY($1) AND retired_at IS NULL`
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, ids); err != nil {
		return fmt.Errorf("failed to retire deals: %w", err)
	}
	return nil
}

// RetireStale retires the unretired deals that are sold out or expired at now
// and returns their ids.
func (r *dealRepository) RetireStale(ctx context.Context, now time.Time) ([]string, error) {
	query := `UPDATE deals SET retired_at = NOW()
		WHERE retired_at IS NULL AND (quantity = 0 OR expires_at < $1)
		RETURNING id`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to retire stale deals: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan deal id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddQuantity adds delta to the stored stock of an unretired deal
func (r *dealRepository) AddQuantity(ctx context.Context, id string, delta int) error {
	query := `UPDATE deals SET quantity = quantity + $2 WHERE id = $1 AND retired_at IS NULL`

	result, err := conn(ctx, r.db).ExecContext(ctx, query, id, delta)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: delta %d", domain.ErrInsufficientStock, delta)
		}
		return fmt.Errorf("failed to update deal quantity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeal(row rowScanner) (domain.Deal, error) {
	var (
		d                      domain.Deal
		diet, tags, allergens  []byte
		pickupStart, pickupEnd sql.NullTime
		bestBefore             sql.NullTime
	)

	err := row.Scan(
		&d.ID,
		&d.VendorID,
		&d.VendorName,
		&d.Title,
		&d.Description,
		&d.ImageURL,
		&d.Category,
		&diet,
		&tags,
		&allergens,
		&d.ColdChain,
		&d.OriginalPrice,
		&d.Price,
		&d.Quantity,
		&d.MinOrderQty,
		&d.DistanceKm,
		&d.PickupAddress,
		&d.PickupNotes,
		&pickupStart,
		&pickupEnd,
		&bestBefore,
		&d.ExpiresAt,
		&d.CreatedAt,
	)
	if err != nil {
		return domain.Deal{}, err
	}

	for _, list := range []struct {
		raw []byte
		dst *[]string
	}{
		{diet, &d.DietTags},
		{tags, &d.Tags},
		{allergens, &d.Allergens},
	} {
		if err := json.Unmarshal(list.raw, list.dst); err != nil {
			return domain.Deal{}, fmt.Errorf("failed to decode deal %s lists: %w", d.ID, err)
		}
	}

	d.PickupStart = pickupStart.Time
	d.PickupEnd = pickupEnd.Time
	d.BestBefore = bestBefore.Time
	d.ExpiresAt = d.ExpiresAt.UTC()
	d.CreatedAt = d.CreatedAt.UTC()
	return d, nil
}

func encodeLists(d *domain.Deal) (diet, tags, allergens string, err error) {
	encode := func(values []string) (string, error) {
		if values == nil {
			values = []string{}
		}
		b, err := json.Marshal(values)
		return string(b), err
	}

	if diet, err = encode(d.DietTags); err != nil {
		return "", "", "", fmt.Errorf("failed to encode diet tags: %w", err)
	}
	if tags, err = encode(d.Tags); err != nil {
		return "", "", "", fmt.Errorf("failed to encode tags: %w", err)
	}
	if allergens, err = encode(d.Allergens); err != nil {
		return "", "", "", fmt.Errorf("failed to encode allergens: %w", err)
	}
	return diet, tags, allergens, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
