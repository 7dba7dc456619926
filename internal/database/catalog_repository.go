package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fahad0samara/commerce-forecast-go/internal/models"
)

// CatalogRepository resolves product and warehouse names for API responses.
type CatalogRepository struct {
	pool DatabasePool
}

func NewCatalogRepository(pool DatabasePool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetProduct returns the product with the given id. A missing product is (nil, false, nil).
func (r *CatalogRepository) GetProduct(ctx context.Context, id int64) (*models.Product, bool, error) {
	var p models.Product
	err := r.pool.QueryRow(ctx, "SELECT id, name FROM products WHERE id = $1", id).Scan(&p.ID, &p.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get product %d: %w", id, err)
	}
	return &p, true, nil
}

// GetWarehouse returns the warehouse with the given id. A missing warehouse is (nil, false, nil).
func (r *CatalogRepository) GetWarehouse(ctx context.Context, id int64) (*models.Warehouse, bool, error) {
	var w models.Warehouse
	err := r.pool.QueryRow(ctx, "SELECT id, name FROM warehouses WHERE id = $1", id).Scan(&w.ID, &w.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get warehouse %d: %w", id, err)
	}
	return &w, true, nil
}

// NotificationRepository records delivered alerts.
type NotificationRepository struct {
	pool DatabasePool
}

func NewNotificationRepository(pool DatabasePool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// LogNotification writes one delivery to alert_notifications.
func (r *NotificationRepository) LogNotification(ctx context.Context, kind models.AlertKind, recipient, content string, sentAt time.Time) error {
	query := `
		INSERT INTO alert_notifications (alert_kind, recipient, content, sent_at, created_at)
		VALUES ($1, $2, $3, $4, $4)
	`
	if _, err := r.pool.Exec(ctx, query, string(kind), recipient, content, sentAt); err != nil {
		return fmt.Errorf("failed to log notification: %w", err)
	}
	return nil
}
