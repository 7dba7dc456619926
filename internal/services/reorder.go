package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fahad0samara/commerce-forecast-go/internal/models"
)

const (
	reorderLookaheadDays = 7
	safetyStockDays      = 2
	reorderSupplyDays    = 7
)

// ReorderStore reads upcoming forecasts and stores the derived reorder policy.
type ReorderStore interface {
	UpcomingForecasts(ctx context.Context, scope models.Scope, modelID string, from time.Time, limit int) ([]models.ForecastRecord, error)
	UpsertReorderPoint(ctx context.Context, rp models.ReorderPoint) error
}

// ReorderPointService derives safety stock and reorder quantity from the next week's forecast.
type ReorderPointService struct {
	store  ReorderStore
	logger *logrus.Logger
	now    func() time.Time
}

// NewReorderPointService creates a reorder point service.
func NewReorderPointService(store ReorderStore, logger *logrus.Logger) *ReorderPointService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ReorderPointService{store: store, logger: logger, now: time.Now}
}

// Update sets safety stock to two days and reorder quantity to a week of the peak daily
// forecast of model modelID over the next seven days. ok is false when that model has no
// upcoming forecasts for the scope.
func (s *ReorderPointService) Update(ctx context.Context, scope models.Scope, modelID string) (rp *models.ReorderPoint, ok bool, err error) {
	upcoming, err := s.store.UpcomingForecasts(ctx, scope, modelID, models.Day(s.now()), reorderLookaheadDays)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load upcoming forecasts: %w", err)
	}
	if len(upcoming) == 0 {
		return nil, false, nil
	}

	peak := 0
	for _, r := range upcoming {
		if r.ForecastedQuantity > peak {
			peak = r.ForecastedQuantity
		}
	}

	rp = &models.ReorderPoint{
		Scope:           scope,
		SafetyStock:     peak * safetyStockDays,
		ReorderQuantity: peak * reorderSupplyDays,
		UpdatedAt:       s.now(),
	}
	if err := s.store.UpsertReorderPoint(ctx, *rp); err != nil {
		return nil, false, fmt.Errorf("failed to store reorder point: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"product_id":       scope.ProductID,
		"warehouse_id":     scope.WarehouseID,
		"model_id":         modelID,
		"safety_stock":     rp.SafetyStock,
		"reorder_quantity": rp.ReorderQuantity,
	}).Debug("Reorder point updated")
	return rp, true, nil
}
