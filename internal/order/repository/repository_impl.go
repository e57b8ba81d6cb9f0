package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rooflens/internal/measurement"
	orderdomain "github.com/smallbiznis/rooflens/internal/order/domain"
	"gorm.io/gorm"
)

type orderRepo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) orderdomain.Repository {
	return &orderRepo{db: db}
}

func (r *orderRepo) Create(ctx context.Context, order *orderdomain.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *orderRepo) GetByID(ctx context.Context, id snowflake.ID) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, orderdomain.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *orderRepo) GetByExternalID(ctx context.Context, externalID string) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := r.db.WithContext(ctx).First(&order, "external_order_id = ?", externalID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, orderdomain.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// FindLatestByAddressHash returns the newest order for an address hash, or
// nil when none exists. Used by the estimate cache, so not-found is not an
// error here.
func (r *orderRepo) FindLatestByAddressHash(ctx context.Context, hash string) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := r.db.WithContext(ctx).
		Where("normalized_address_hash = ?", hash).
		Order("created_at DESC").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *orderRepo) ListRecent(ctx context.Context, limit int) ([]orderdomain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	var orders []orderdomain.Order
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepo) FindPending(ctx context.Context, limit int) ([]orderdomain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var orders []orderdomain.Order
	err := r.db.WithContext(ctx).
		Where("status = ?", measurement.StatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// LockByID re-reads an order inside tx with a row lock, so concurrent
// reconcile passes serialize per order. SQLite has no FOR UPDATE; its writer
// lock covers the same ground in tests.
func (r *orderRepo) LockByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*orderdomain.Order, error) {
	query := `SELECT * FROM orders WHERE id = ?`
	if !strings.EqualFold(tx.Dialector.Name(), "sqlite") {
		query += " FOR UPDATE"
	}

	var order orderdomain.Order
	err := tx.WithContext(ctx).Raw(query, id).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, orderdomain.ErrOrderNotFound
	}
	return &order, nil
}

func (r *orderRepo) Update(ctx context.Context, tx *gorm.DB, order *orderdomain.Order) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Save(order).Error
}
