package table

import (
	"context"

	"restaurant-floor/internal/apperr"
	"restaurant-floor/internal/logger"
	"restaurant-floor/internal/messaging"
	"restaurant-floor/internal/models"
	"restaurant-floor/internal/storage"
)

// Service is the table registry
type Service struct {
	store  storage.Store
	events messaging.EventPublisher
	logger *logger.Logger
}

// NewService creates a new table service
func NewService(store storage.Store, events messaging.EventPublisher, log *logger.Logger) *Service {
	return &Service{
		store:  store,
		events: events,
		logger: log,
	}
}

// Create provisions a free table
func (s *Service) Create(ctx context.Context, req *models.CreateTableRequest) (*models.Table, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	t := &models.Table{
		Number:     req.Number,
		Capacity:   req.Capacity,
		LocationID: req.LocationID,
		Floor:      req.Floor,
		Status:     models.TableFree,
	}
	if err := s.store.CreateTable(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("table_created", "Table provisioned", logger.RequestID(ctx), map[string]interface{}{
		"table_id": t.ID,
		"number":   t.Number,
	})
	return t, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Table, error) {
	return s.store.GetTable(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]models.Table, error) {
	return s.store.ListTables(ctx)
}

// UpdateStatus applies a status transition under the table's lock
func (s *Service) UpdateStatus(ctx context.Context, id int64, req *models.UpdateTableStatusRequest) (*models.Table, error) {
	next, err := req.Validate()
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, id, next, StatusChange{
		Reason:          req.Reason,
		StaffID:         req.StaffID,
		ReservationCode: req.ReservationCode,
	})
}

// Reserve takes a free table and holds it for reservationCode
func (s *Service) Reserve(ctx context.Context, id int64, req *models.ReserveTableRequest) (*models.Table, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, models.TableReserved, StatusChange{ReservationCode: &req.ReservationCode})
}

func (s *Service) transition(ctx context.Context, id int64, next models.TableStatus, change StatusChange) (*models.Table, error) {
	var updated *models.Table
	var from models.TableStatus

	err := s.store.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		t, err := repo.LockTable(ctx, id)
		if err != nil {
			return err
		}
		from = t.Status
		if err := Apply(t, next, change); err != nil {
			return err
		}
		if err := repo.UpdateTable(ctx, t); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	requestID := logger.RequestID(ctx)
	s.logger.Info("table_status_changed", "Table status changed", requestID, map[string]interface{}{
		"table_id":   updated.ID,
		"old_status": from,
		"new_status": updated.Status,
	})
	if err := s.events.PublishEvent(ctx, models.NewTableEvent(updated, from, change.StaffID)); err != nil {
		s.logger.Error("event_publish_failed", "Failed to publish table event", requestID, err, nil)
	}
	return updated, nil
}

// Delete removes a table that is not in use or held
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		t, err := repo.LockTable(ctx, id)
		if err != nil {
			return err
		}
		if t.Status == models.TableOccupied || t.Status == models.TableReserved {
			return apperr.Conflict("table %d is %s and cannot be deleted", t.Number, t.Status)
		}
		return repo.DeleteTable(ctx, id)
	})
}
