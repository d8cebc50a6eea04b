package invoice

import (
	"context"

	"restaurant-floor/internal/apperr"
	"restaurant-floor/internal/logger"
	"restaurant-floor/internal/models"
	"restaurant-floor/internal/storage"
)

// CreatePromotion adds a promotion to the catalog
func (s *Service) CreatePromotion(ctx context.Context, req *models.CreatePromotionRequest) (*models.Promotion, error) {
	promo, err := req.Validate()
	if err != nil {
		return nil, err
	}
	if err := s.store.CreatePromotion(ctx, promo); err != nil {
		return nil, err
	}

	s.logger.Info("promotion_created", "Promotion created", logger.RequestID(ctx), map[string]interface{}{
		"promotion_id": promo.ID,
		"code":         promo.Code,
		"type":         promo.Type,
	})
	return promo, nil
}

// ListPromotions returns the catalog in insertion order
func (s *Service) ListPromotions(ctx context.Context) ([]models.Promotion, error) {
	return s.store.ListPromotions(ctx)
}

func (s *Service) PointsBalance(ctx context.Context, customerID int64) (*models.PointsBalance, error) {
	if customerID < 1 {
		return nil, apperr.Validation("customer_id must be positive")
	}
	balance, err := s.store.PointsBalance(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return &models.PointsBalance{CustomerID: customerID, Balance: balance}, nil
}

// GrantPoints credits points outside of a settlement, e.g. a goodwill
// adjustment or seeding an account.
func (s *Service) GrantPoints(ctx context.Context, customerID int64, req *models.GrantPointsRequest) (*models.PointsBalance, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		return repo.AddPoints(ctx, models.PointsTransaction{
			CustomerID: customerID,
			Delta:      req.Points,
			Reason:     models.PointsReasonGranted,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("points_granted", "Loyalty points granted", logger.RequestID(ctx), map[string]interface{}{
		"customer_id": customerID,
		"points":      req.Points,
	})
	return s.PointsBalance(ctx, customerID)
}
