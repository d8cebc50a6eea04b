package database

// Table queries
const (
	tableColumns = `id, number, capacity, location_id, floor, status, broken_reason, broken_by,
		reservation_code, active_order_id, created_at, updated_at`

	InsertTableSQL = `
		INSERT INTO floor_tables (number, capacity, location_id, floor, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	GetTableSQL = `SELECT ` + tableColumns + ` FROM floor_tables WHERE id = $1`

	LockTableSQL = GetTableSQL + ` FOR UPDATE`

	ListTablesSQL = `SELECT ` + tableColumns + ` FROM floor_tables ORDER BY id`

	UpdateTableSQL = `
		UPDATE floor_tables SET status = $2, broken_reason = $3, broken_by = $4,
			reservation_code = $5, active_order_id = $6, capacity = $7, floor = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	DeleteTableSQL = `DELETE FROM floor_tables WHERE id = $1`
)

// Order queries
const (
	orderColumns = `id, number, type, table_id, customer_id, staff_id, status, created_at, updated_at`

	LockOrderNumbersSQL = `SELECT pg_advisory_xact_lock(hashtext('orders.number'))`

	GetNextOrderNumberSQL = `
		SELECT COALESCE(MAX(CAST(SUBSTRING(number FROM 'ORD_[0-9]{8}_([0-9]+)') AS INTEGER)), 0) + 1
		FROM orders
		WHERE number LIKE $1`

	InsertOrderSQL = `
		INSERT INTO orders (number, type, table_id, customer_id, staff_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	GetOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	LockOrderSQL = GetOrderSQL + ` FOR UPDATE`

	ListOrdersSQL = `
		SELECT ` + orderColumns + ` FROM orders
		WHERE ($1::text IS NULL OR status = $1) AND ($2::bigint IS NULL OR table_id = $2)
		ORDER BY id`

	UpdateOrderStatusSQL = `
		UPDATE orders SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`

	OrderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	InsertOrderStatusLogSQL = `
		INSERT INTO order_status_log (order_id, status, changed_by, notes)
		VALUES ($1, $2, $3, $4)`

	GetOrderStatusHistorySQL = `
		SELECT status, changed_by, changed_at, notes
		FROM order_status_log
		WHERE order_id = $1
		ORDER BY changed_at ASC, id ASC`
)

// Order detail queries
const (
	detailColumns = `id, order_id, dish_id, quantity, unit_price, special_instructions, status, updated_at`

	InsertDetailSQL = `
		INSERT INTO order_details (order_id, dish_id, quantity, unit_price, special_instructions, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, updated_at`

	ListDetailsSQL = `SELECT ` + detailColumns + ` FROM order_details WHERE order_id = $1 ORDER BY id`

	ListDetailsForOrdersSQL = `SELECT ` + detailColumns + ` FROM order_details WHERE order_id = ANY($1) ORDER BY id`

	// UpdateDetailSQL only matches while the line is still in the state the
	// caller read.
	UpdateDetailSQL = `
		UPDATE order_details SET quantity = $3, special_instructions = $4, status = $5, updated_at = NOW()
		WHERE id = $1 AND order_id = $2 AND status = $6 AND quantity = $7
		RETURNING updated_at`

	DetailExistsSQL = `SELECT EXISTS (SELECT 1 FROM order_details WHERE id = $1 AND order_id = $2)`
)

// Invoice queries
const (
	invoiceColumns = `id, order_id, customer_id, subtotal, tax, discount_amount, total_amount, discount_source,
		payment_method, payment_status, applied_promotion_id, applied_points_used, customer_promotion_id,
		customer_points_requested, amount_received, change_due, loyalty_points_earned, confirmed_by, notes,
		created_at, paid_at`

	InsertInvoiceSQL = `
		INSERT INTO invoices (order_id, customer_id, subtotal, tax, discount_amount, total_amount, discount_source,
			payment_method, payment_status, applied_promotion_id, applied_points_used, customer_promotion_id,
			customer_points_requested, amount_received, change_due, loyalty_points_earned, confirmed_by, notes, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id, created_at`

	GetInvoiceSQL = `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`

	GetActiveInvoiceByOrderSQL = `
		SELECT ` + invoiceColumns + ` FROM invoices
		WHERE order_id = $1 AND payment_status <> 'cancelled'`

	UpdateInvoiceSQL = `
		UPDATE invoices SET customer_id = $2, subtotal = $3, tax = $4, discount_amount = $5, total_amount = $6,
			discount_source = $7, payment_method = $8, payment_status = $9, applied_promotion_id = $10,
			applied_points_used = $11, customer_promotion_id = $12, customer_points_requested = $13,
			amount_received = $14, change_due = $15, loyalty_points_earned = $16, confirmed_by = $17,
			notes = $18, paid_at = $19
		WHERE id = $1 AND payment_status = $20`

	InvoiceExistsSQL = `SELECT EXISTS (SELECT 1 FROM invoices WHERE id = $1)`
)

// Promotion queries
const (
	promotionColumns = `id, code, name, type, discount_value::text, minimum_order_amount, max_uses, current_uses, created_at`

	InsertPromotionSQL = `
		INSERT INTO promotions (code, name, type, discount_value, minimum_order_amount, max_uses)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
		RETURNING id, current_uses, created_at`

	GetPromotionSQL = `SELECT ` + promotionColumns + ` FROM promotions WHERE id = $1`

	GetPromotionByCodeSQL = `SELECT ` + promotionColumns + ` FROM promotions WHERE code = UPPER($1)`

	ListPromotionsSQL = `SELECT ` + promotionColumns + ` FROM promotions ORDER BY id`

	IncrementPromotionUsesSQL = `
		UPDATE promotions SET current_uses = current_uses + 1
		WHERE id = $1 AND (max_uses IS NULL OR current_uses < max_uses)`

	PromotionExistsSQL = `SELECT EXISTS (SELECT 1 FROM promotions WHERE id = $1)`
)

// Loyalty queries
const (
	GetPointsBalanceSQL = `SELECT COALESCE((SELECT balance FROM loyalty_accounts WHERE customer_id = $1), 0)`

	CreditPointsSQL = `
		INSERT INTO loyalty_accounts (customer_id, balance) VALUES ($1, $2)
		ON CONFLICT (customer_id) DO UPDATE
		SET balance = loyalty_accounts.balance + EXCLUDED.balance, updated_at = NOW()`

	// DebitPointsSQL takes a negative delta and matches nothing when the
	// balance would go below zero.
	DebitPointsSQL = `
		UPDATE loyalty_accounts SET balance = balance + $2, updated_at = NOW()
		WHERE customer_id = $1 AND balance + $2 >= 0`

	InsertPointsTransactionSQL = `
		INSERT INTO loyalty_transactions (customer_id, delta, reason, invoice_id)
		VALUES ($1, $2, $3, $4)`
)
