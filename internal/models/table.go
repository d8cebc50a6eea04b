package models

import (
	"strings"
	"time"

	"restaurant-floor/internal/apperr"
)

// TableStatus represents the lifecycle status of a physical table
type TableStatus string

const (
	TableFree     TableStatus = "free"
	TableOccupied TableStatus = "occupied"
	TableReserved TableStatus = "reserved"
	TableDirty    TableStatus = "dirty"
	TableBroken   TableStatus = "broken"
)

// Valid reports whether s is a known table status
func (s TableStatus) Valid() bool {
	switch s {
	case TableFree, TableOccupied, TableReserved, TableDirty, TableBroken:
		return true
	}
	return false
}

// Table represents a seating unit on the floor
type Table struct {
	ID           int64       `json:"id"`
	Number       int         `json:"number"`
	Capacity     int         `json:"capacity"`
	LocationID   int64       `json:"location_id"`
	Floor        int         `json:"floor"`
	Status       TableStatus `json:"status"`
	BrokenReason *string     `json:"broken_reason,omitempty"`
	BrokenBy     *int64      `json:"broken_by,omitempty"`
	// ReservationCode is the check-in secret and is never echoed back.
	ReservationCode *string   `json:"-"`
	ActiveOrderID   *int64    `json:"active_order_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CreateTableRequest represents the request to provision a table
type CreateTableRequest struct {
	Number     int   `json:"number"`
	Capacity   int   `json:"capacity"`
	LocationID int64 `json:"location_id"`
	Floor      int   `json:"floor"`
}

// UpdateTableStatusRequest represents PATCH /tables/{id}/status
type UpdateTableStatusRequest struct {
	Status          string  `json:"status"`
	Reason          *string `json:"reason,omitempty"`
	StaffID         *int64  `json:"staff_id,omitempty"`
	ReservationCode *string `json:"reservation_code,omitempty"`
}

// ReserveTableRequest represents POST /tables/{id}/reservation
type ReserveTableRequest struct {
	ReservationCode string `json:"reservation_code"`
}

// Validate validates the create table request
func (req *CreateTableRequest) Validate() error {
	if req.Number < 1 {
		return apperr.Validation("number must be positive")
	}
	if req.Capacity < 1 || req.Capacity > 50 {
		return apperr.Validation("capacity must be between 1 and 50")
	}
	if req.LocationID < 1 {
		return apperr.Validation("location_id is required")
	}
	if req.Floor < 0 {
		return apperr.Validation("floor must not be negative")
	}
	return nil
}

// Validate validates the status update request shape. Transition rules live
// in the table service.
func (req *UpdateTableStatusRequest) Validate() (TableStatus, error) {
	status := TableStatus(req.Status)
	if !status.Valid() {
		return "", apperr.Validation("status must be one of: free, occupied, reserved, dirty, broken")
	}
	if req.Reason != nil && len(*req.Reason) > 255 {
		return "", apperr.Validation("reason must not exceed 255 characters")
	}
	return status, nil
}

// Validate validates the reservation request
func (req *ReserveTableRequest) Validate() error {
	code := strings.TrimSpace(req.ReservationCode)
	if code == "" {
		return apperr.Validation("reservation_code is required")
	}
	if len(code) > 64 {
		return apperr.Validation("reservation_code must not exceed 64 characters")
	}
	return nil
}
