package models

import (
	"encoding/json"
	"fmt"
	"time"

	"restaurant-floor/internal/apperr"
)

// OrderType represents the type of an order
type OrderType string

const (
	DineIn   OrderType = "dine_in"
	Takeaway OrderType = "takeaway"
)

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPreparing OrderStatus = "preparing"
	OrderServed    OrderStatus = "served"
	OrderCancelled OrderStatus = "cancelled"
)

// Closed reports whether no more lines may be added to an order in status s
func (s OrderStatus) Closed() bool {
	return s == OrderServed || s == OrderCancelled
}

// LineStatus represents the preparation status of a single order line
type LineStatus string

const (
	LinePending   LineStatus = "pending"
	LinePreparing LineStatus = "preparing"
	LineServed    LineStatus = "served"
	LineCancelled LineStatus = "cancelled"
)

// Valid reports whether s is a known line status
func (s LineStatus) Valid() bool {
	switch s {
	case LinePending, LinePreparing, LineServed, LineCancelled:
		return true
	}
	return false
}

// Terminal reports whether s accepts no further changes
func (s LineStatus) Terminal() bool {
	return s == LineServed || s == LineCancelled
}

// CanAdvanceTo reports whether moving from s to next is a forward move.
// Cancellation is allowed from any non-terminal status.
func (s LineStatus) CanAdvanceTo(next LineStatus) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case LineCancelled, LineServed:
		return true
	case LinePreparing:
		return s == LinePending
	}
	return false
}

// Order represents a dine-in or takeaway order
type Order struct {
	ID         int64         `json:"id"`
	Number     string        `json:"order_number"`
	Type       OrderType     `json:"order_type"`
	TableID    *int64        `json:"table_id,omitempty"`
	CustomerID *int64        `json:"customer_id,omitempty"`
	StaffID    int64         `json:"staff_id"`
	Status     OrderStatus   `json:"status"`
	Details    []OrderDetail `json:"details"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Subtotal sums line totals over non-cancelled lines
func (o *Order) Subtotal() int64 {
	var total int64
	for _, d := range o.Details {
		if d.Status == LineCancelled {
			continue
		}
		total += d.LineTotal()
	}
	return total
}

// UnservedLineIDs returns the ids of non-cancelled lines that are not served
func (o *Order) UnservedLineIDs() []int64 {
	var ids []int64
	for _, d := range o.Details {
		if d.Status != LineCancelled && d.Status != LineServed {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// Detail returns the line with the given id
func (o *Order) Detail(id int64) (*OrderDetail, bool) {
	for i := range o.Details {
		if o.Details[i].ID == id {
			return &o.Details[i], true
		}
	}
	return nil, false
}

// OrderDetail represents one dish and quantity within an order
type OrderDetail struct {
	ID                  int64      `json:"id"`
	OrderID             int64      `json:"order_id"`
	DishID              int64      `json:"dish_id"`
	Quantity            int        `json:"quantity"`
	UnitPrice           int64      `json:"unit_price"`
	SpecialInstructions *string    `json:"notes,omitempty"`
	Status              LineStatus `json:"status"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// LineTotal is always derived from quantity and unit price
func (d OrderDetail) LineTotal() int64 {
	return int64(d.Quantity) * d.UnitPrice
}

// MarshalJSON adds the derived line_total field
func (d OrderDetail) MarshalJSON() ([]byte, error) {
	type detail OrderDetail
	return json.Marshal(struct {
		detail
		LineTotal int64 `json:"line_total"`
	}{detail(d), d.LineTotal()})
}

// OrderStatusHistory represents an entry in the order status log
type OrderStatusHistory struct {
	Status    OrderStatus `json:"status"`
	ChangedBy *int64      `json:"changed_by,omitempty"`
	ChangedAt time.Time   `json:"timestamp"`
	Notes     *string     `json:"notes,omitempty"`
}

// CreateOrderRequest represents the request to create a new order
type CreateOrderRequest struct {
	OrderType  string `json:"order_type"`
	TableID    *int64 `json:"table_id,omitempty"`
	CustomerID *int64 `json:"customer_id,omitempty"`
	StaffID    int64  `json:"staff_id"`
}

// AddDetailRequest represents POST /orders/{id}/details
type AddDetailRequest struct {
	DishID    int64   `json:"dish_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice int64   `json:"unit_price"`
	Notes     *string `json:"notes,omitempty"`
}

// UpdateQuantityRequest represents PATCH .../details/{detailId}/quantity.
// The expected fields carry what the caller last observed.
type UpdateQuantityRequest struct {
	Quantity         int     `json:"quantity"`
	ExpectedQuantity *int    `json:"expected_quantity,omitempty"`
	ExpectedStatus   *string `json:"expected_status,omitempty"`
}

// UpdateLineStatusRequest represents PATCH .../details/{detailId}/status
type UpdateLineStatusRequest struct {
	Status           string  `json:"status"`
	ExpectedStatus   *string `json:"expected_status,omitempty"`
	ExpectedQuantity *int    `json:"expected_quantity,omitempty"`
}

// UpdateNotesRequest represents PATCH .../details/{detailId}/notes
type UpdateNotesRequest struct {
	Notes *string `json:"notes"`
}

// UpdateOrderStatusRequest represents PATCH /orders/{id}/status
type UpdateOrderStatusRequest struct {
	Status  string  `json:"status"`
	StaffID *int64  `json:"staff_id,omitempty"`
	Reason  *string `json:"reason,omitempty"`
}

// MaxLineQuantity caps the units a single line may carry
const MaxLineQuantity = 99

// LineExpectation is the state a caller believes a line is in
type LineExpectation struct {
	Status   *LineStatus
	Quantity *int
}

// Validate validates the create order request
func (req *CreateOrderRequest) Validate() (OrderType, error) {
	orderType, err := validateOrderType(req.OrderType)
	if err != nil {
		return "", err
	}
	if err := validateTableBinding(orderType, req.TableID); err != nil {
		return "", err
	}
	if req.StaffID < 1 {
		return "", apperr.Validation("staff_id is required")
	}
	if req.CustomerID != nil && *req.CustomerID < 1 {
		return "", apperr.Validation("customer_id must be positive")
	}
	return orderType, nil
}

// Validate validates the add detail request
func (req *AddDetailRequest) Validate() error {
	if req.DishID < 1 {
		return apperr.Validation("dish_id is required")
	}
	if req.Quantity < 1 || req.Quantity > MaxLineQuantity {
		return apperr.Validation("quantity must be between 1 and %d", MaxLineQuantity)
	}
	if req.UnitPrice < 0 {
		return apperr.Validation("unit_price must not be negative")
	}
	return validateNotes(req.Notes)
}

// Expectation converts the optional expected fields
func (req *UpdateQuantityRequest) Expectation() (LineExpectation, error) {
	return buildExpectation(req.ExpectedStatus, req.ExpectedQuantity)
}

// Validate validates the line status request
func (req *UpdateLineStatusRequest) Validate() (LineStatus, LineExpectation, error) {
	status := LineStatus(req.Status)
	if !status.Valid() {
		return "", LineExpectation{}, apperr.Validation("status must be one of: pending, preparing, served, cancelled")
	}
	exp, err := buildExpectation(req.ExpectedStatus, req.ExpectedQuantity)
	return status, exp, err
}

// Validate validates the notes request
func (req *UpdateNotesRequest) Validate() error {
	return validateNotes(req.Notes)
}

// Validate validates the order status request
func (req *UpdateOrderStatusRequest) Validate() (OrderStatus, error) {
	switch s := OrderStatus(req.Status); s {
	case OrderServed, OrderCancelled:
		return s, nil
	case OrderPending, OrderPreparing:
		return "", apperr.InvalidTransition("order status %s is derived from its lines", s)
	}
	return "", apperr.Validation("status must be one of: served, cancelled")
}

// GenerateOrderNumber generates a unique order number in format ORD_YYYYMMDD_NNN
func GenerateOrderNumber(date time.Time, sequence int) string {
	dateStr := date.Format("20060102")
	return fmt.Sprintf("ORD_%s_%03d", dateStr, sequence)
}

// OrderNumberPrefix is the LIKE pattern matching all numbers issued on date
func OrderNumberPrefix(date time.Time) string {
	return fmt.Sprintf("ORD_%s_%%", date.Format("20060102"))
}

// validateOrderType validates the order type field
func validateOrderType(orderType string) (OrderType, error) {
	switch OrderType(orderType) {
	case DineIn, Takeaway:
		return OrderType(orderType), nil
	default:
		return "", apperr.Validation("order_type must be one of: dine_in, takeaway")
	}
}

// validateTableBinding checks table_id is present iff the order is dine-in
func validateTableBinding(orderType OrderType, tableID *int64) error {
	switch orderType {
	case DineIn:
		if tableID == nil {
			return apperr.Validation("table_id is required for dine_in orders")
		}
		if *tableID < 1 {
			return apperr.Validation("table_id must be positive")
		}
	case Takeaway:
		if tableID != nil {
			return apperr.Validation("table_id must not be present for takeaway orders")
		}
	}
	return nil
}

func validateNotes(notes *string) error {
	if notes != nil && len(*notes) > 500 {
		return apperr.Validation("notes must not exceed 500 characters")
	}
	return nil
}

func buildExpectation(status *string, quantity *int) (LineExpectation, error) {
	var exp LineExpectation
	if status != nil {
		s := LineStatus(*status)
		if !s.Valid() {
			return exp, apperr.Validation("expected_status is not a line status")
		}
		exp.Status = &s
	}
	exp.Quantity = quantity
	return exp, nil
}
