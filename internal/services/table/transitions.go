package table

import (
	"strings"

	"restaurant-floor/internal/apperr"
	"restaurant-floor/internal/models"
)

// StatusChange carries the optional inputs of a status update
type StatusChange struct {
	Reason          *string
	StaffID         *int64
	ReservationCode *string
}

// Apply moves t to next if the transition is allowed, updating the
// fields that go with the new status. t is left untouched on error.
func Apply(t *models.Table, next models.TableStatus, change StatusChange) error {
	from := t.Status

	switch {
	case from == models.TableOccupied && next == models.TableBroken:
		return apperr.InvalidTransition("table %d is in use and cannot be reported broken", t.Number)

	case from == models.TableOccupied && next == models.TableDirty:
		if t.ActiveOrderID != nil {
			return apperr.Conflict("table %d still has active order %d", t.Number, *t.ActiveOrderID)
		}
		t.Status = next

	case from == models.TableDirty && next == models.TableFree:
		t.Status = next

	case from == models.TableReserved && next == models.TableOccupied:
		if change.ReservationCode == nil || t.ReservationCode == nil || *change.ReservationCode != *t.ReservationCode {
			return apperr.Validation("reservation code does not match table %d", t.Number)
		}
		t.Status = next
		t.ReservationCode = nil

	case from == models.TableFree && next == models.TableReserved:
		code := ""
		if change.ReservationCode != nil {
			code = strings.TrimSpace(*change.ReservationCode)
		}
		if code == "" {
			return apperr.Validation("reservation_code is required to reserve a table")
		}
		t.Status = next
		t.ReservationCode = &code

	case next == models.TableBroken && (from == models.TableFree || from == models.TableDirty || from == models.TableReserved):
		if change.Reason == nil || strings.TrimSpace(*change.Reason) == "" {
			return apperr.Validation("reason is required to report a table broken")
		}
		reason := strings.TrimSpace(*change.Reason)
		t.Status = next
		t.BrokenReason = &reason
		t.BrokenBy = change.StaffID
		t.ReservationCode = nil

	case from == models.TableBroken && next == models.TableFree:
		t.Status = next
		t.BrokenReason = nil
		t.BrokenBy = nil

	case from == models.TableFree && next == models.TableOccupied:
		return apperr.InvalidTransition("table %d becomes occupied when an order is created for it", t.Number)

	default:
		return apperr.InvalidTransition("table %d cannot go from %s to %s", t.Number, from, next)
	}

	return nil
}

// Occupy binds a new order to t. A free table becomes occupied; a table
// that was checked in from a reservation takes its first order.
func Occupy(t *models.Table, orderID int64) error {
	switch t.Status {
	case models.TableFree:
		t.Status = models.TableOccupied
	case models.TableOccupied:
		if t.ActiveOrderID != nil {
			return apperr.Conflict("table %d already has active order %d", t.Number, *t.ActiveOrderID)
		}
	default:
		return apperr.InvalidTransition("table %d is %s and cannot take an order", t.Number, t.Status)
	}
	t.ActiveOrderID = &orderID
	return nil
}

// Release ends the table's session for orderID: the order was settled or
// cancelled and the table needs cleaning.
func Release(t *models.Table, orderID int64) error {
	if t.Status != models.TableOccupied || t.ActiveOrderID == nil || *t.ActiveOrderID != orderID {
		return apperr.Conflict("table %d is not serving order %d", t.Number, orderID)
	}
	t.ActiveOrderID = nil
	t.Status = models.TableDirty
	return nil
}
