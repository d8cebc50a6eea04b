package models

import (
	"fmt"
	"time"
)

// Routing keys for floor events published to the topic exchange
const (
	EventTableStatusChanged = "table.status_changed"
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderLineChanged   = "order.line_changed"
	EventInvoiceCreated     = "invoice.created"
	EventInvoicePaid        = "invoice.paid"
)

// FloorEvent is the envelope published for every state change on the floor
type FloorEvent struct {
	Type        string    `json:"type"`
	TableID     *int64    `json:"table_id,omitempty"`
	TableNumber *int      `json:"table_number,omitempty"`
	OrderID     *int64    `json:"order_id,omitempty"`
	OrderNumber string    `json:"order_number,omitempty"`
	LineID      *int64    `json:"line_id,omitempty"`
	InvoiceID   *int64    `json:"invoice_id,omitempty"`
	OldStatus   string    `json:"old_status,omitempty"`
	NewStatus   string    `json:"new_status,omitempty"`
	ChangedBy   *int64    `json:"changed_by,omitempty"`
	Amount      *int64    `json:"amount,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewTableEvent creates an event for a table status change
func NewTableEvent(t *Table, oldStatus TableStatus, changedBy *int64) *FloorEvent {
	id, number := t.ID, t.Number
	return &FloorEvent{
		Type:        EventTableStatusChanged,
		TableID:     &id,
		TableNumber: &number,
		OrderID:     t.ActiveOrderID,
		OldStatus:   string(oldStatus),
		NewStatus:   string(t.Status),
		ChangedBy:   changedBy,
		Timestamp:   time.Now().UTC(),
	}
}

// NewOrderEvent creates an order.created or order.status_changed event
func NewOrderEvent(eventType string, o *Order, oldStatus OrderStatus, changedBy *int64) *FloorEvent {
	id := o.ID
	return &FloorEvent{
		Type:        eventType,
		TableID:     o.TableID,
		OrderID:     &id,
		OrderNumber: o.Number,
		OldStatus:   string(oldStatus),
		NewStatus:   string(o.Status),
		ChangedBy:   changedBy,
		Timestamp:   time.Now().UTC(),
	}
}

// NewLineEvent creates an event for an order line change
func NewLineEvent(o *Order, d *OrderDetail, oldStatus LineStatus) *FloorEvent {
	orderID, lineID, total := o.ID, d.ID, d.LineTotal()
	return &FloorEvent{
		Type:        EventOrderLineChanged,
		TableID:     o.TableID,
		OrderID:     &orderID,
		OrderNumber: o.Number,
		LineID:      &lineID,
		OldStatus:   string(oldStatus),
		NewStatus:   string(d.Status),
		Amount:      &total,
		Timestamp:   time.Now().UTC(),
	}
}

// NewInvoiceEvent creates an invoice.created or invoice.paid event
func NewInvoiceEvent(eventType string, inv *Invoice, orderNumber string) *FloorEvent {
	invoiceID, orderID, total := inv.ID, inv.OrderID, inv.TotalAmount
	return &FloorEvent{
		Type:        eventType,
		OrderID:     &orderID,
		OrderNumber: orderNumber,
		InvoiceID:   &invoiceID,
		NewStatus:   string(inv.PaymentStatus),
		ChangedBy:   inv.ConfirmedBy,
		Amount:      &total,
		Timestamp:   time.Now().UTC(),
	}
}

// Subject returns a short human label for the entity an event is about
func (e *FloorEvent) Subject() string {
	switch {
	case e.InvoiceID != nil:
		return fmt.Sprintf("Invoice #%d", *e.InvoiceID)
	case e.LineID != nil:
		return fmt.Sprintf("Order %s line #%d", e.OrderNumber, *e.LineID)
	case e.OrderNumber != "":
		return fmt.Sprintf("Order %s", e.OrderNumber)
	case e.TableNumber != nil:
		return fmt.Sprintf("Table %d", *e.TableNumber)
	}
	return "Floor"
}
