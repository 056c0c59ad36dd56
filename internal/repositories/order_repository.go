package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/riwaai/riwa-pos-backend/internal/models"

	"github.com/lib/pq" // for pq.Error
)

// OrderRepository defines the persistence surface for orders and their items.
// Status, payment and delivery fields are only mutable through the two
// precondition-checked update methods; created_at, tenant_id and the item
// collection are not reachable from that path.
type OrderRepository interface {
	CreateOrder(executor SQLExecutor, order *models.Order) error
	CreateOrderItem(executor SQLExecutor, item *models.OrderItem) error
	// CreateOrderWithItems inserts the order and all of its items in one
	// transaction: an order must never exist without at least one item.
	CreateOrderWithItems(order *models.Order, items []models.OrderItem) error
	GetOrderByID(orderID, tenantID string) (*models.Order, error)
	GetOrderAnyTenant(orderID string) (*models.Order, error)
	GetOrderItemsByOrderID(orderID string) ([]models.OrderItem, error)
	GetOrders(filters models.OrderFilters) ([]models.Order, int, error)
	ListActive(tenantID string) ([]models.Order, error)

	// UpdateOrderStatus applies fields only when the stored status still equals
	// expectedStatus; returns the number of rows affected so callers can detect
	// a lost race.
	UpdateOrderStatus(executor SQLExecutor, orderID, tenantID, expectedStatus string, fields models.OrderStatusUpdate) (int64, error)
	// UpdatePayment is the same discipline keyed on payment_status.
	UpdatePayment(executor SQLExecutor, orderID, tenantID, expectedPaymentStatus string, fields models.OrderStatusUpdate) (int64, error)
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new instance of OrderRepository.
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `id, tenant_id, branch_id, order_number, channel, order_type, status,
	payment_status, payment_method, payment_reference,
	subtotal, tax_amount, service_charge, discount_amount, delivery_fee, total_amount,
	customer_name, customer_phone, customer_email, notes,
	delivery_status, delivery_tracking_link,
	created_at, accepted_at, ready_at, dispatched_at, completed_at, cancelled_at, paid_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(s scanner) (*models.Order, error) {
	o := &models.Order{}
	err := s.Scan(
		&o.ID, &o.TenantID, &o.BranchID, &o.OrderNumber, &o.Channel, &o.OrderType, &o.Status,
		&o.PaymentStatus, &o.PaymentMethod, &o.PaymentReference,
		&o.Subtotal, &o.TaxAmount, &o.ServiceCharge, &o.DiscountAmount, &o.DeliveryFee, &o.TotalAmount,
		&o.CustomerName, &o.CustomerPhone, &o.CustomerEmail, &o.Notes,
		&o.DeliveryStatus, &o.DeliveryTracking,
		&o.CreatedAt, &o.AcceptedAt, &o.ReadyAt, &o.DispatchedAt, &o.CompletedAt, &o.CancelledAt, &o.PaidAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepository) CreateOrder(executor SQLExecutor, order *models.Order) error {
	query := `INSERT INTO orders
	            (id, tenant_id, branch_id, order_number, channel, order_type, status,
	             payment_status, payment_method,
	             subtotal, tax_amount, service_charge, discount_amount, delivery_fee, total_amount,
	             customer_name, customer_phone, customer_email, notes,
	             created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	_, err := executor.Exec(query,
		order.ID, order.TenantID, order.BranchID, order.OrderNumber, order.Channel, order.OrderType, order.Status,
		order.PaymentStatus, order.PaymentMethod,
		order.Subtotal, order.TaxAmount, order.ServiceCharge, order.DiscountAmount, order.DeliveryFee, order.TotalAmount,
		order.CustomerName, order.CustomerPhone, order.CustomerEmail, order.Notes,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: order %s", ErrDuplicateKey, order.ID)
		}
		return fmt.Errorf("%w: creating order: %v", ErrDatabaseError, err)
	}
	return nil
}

func (r *orderRepository) CreateOrderItem(executor SQLExecutor, item *models.OrderItem) error {
	query := `INSERT INTO order_items
	            (id, order_id, item_id, item_name_en, item_name_ar, quantity,
	             unit_price, total_price, modifiers, notes, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}

	var modifiers interface{}
	if len(item.Modifiers) > 0 {
		modifiers = []byte(item.Modifiers)
	}

	_, err := executor.Exec(query,
		item.ID, item.OrderID, item.ItemID, item.ItemNameEN, item.ItemNameAR, item.Quantity,
		item.UnitPrice, item.TotalPrice, modifiers, item.Notes, item.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return fmt.Errorf("%w: creating order item (constraint: %s): %v", ErrDatabaseError, pqErr.Constraint, err)
		}
		return fmt.Errorf("%w: creating order item: %v", ErrDatabaseError, err)
	}
	return nil
}

func (r *orderRepository) CreateOrderWithItems(order *models.Order, items []models.OrderItem) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: starting order transaction: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback()

	if err := r.CreateOrder(tx, order); err != nil {
		return err
	}
	for i := range items {
		if err := r.CreateOrderItem(tx, &items[i]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing order transaction: %v", ErrDatabaseError, err)
	}
	return nil
}

func (r *orderRepository) GetOrderByID(orderID, tenantID string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND tenant_id = $2`
	order, err := scanOrder(r.db.QueryRow(query, orderID, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting order %s: %v", ErrDatabaseError, orderID, err)
	}
	return order, nil
}

// GetOrderAnyTenant looks an order up by id alone. Reserved for webhook
// correlation, where the tenant is only known after the order is found.
func (r *orderRepository) GetOrderAnyTenant(orderID string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := scanOrder(r.db.QueryRow(query, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting order %s: %v", ErrDatabaseError, orderID, err)
	}
	return order, nil
}

func (r *orderRepository) GetOrderItemsByOrderID(orderID string) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	query := `SELECT id, order_id, item_id, item_name_en, item_name_ar, quantity,
	                 unit_price, total_price, modifiers, notes, created_at
	          FROM order_items
	          WHERE order_id = $1
	          ORDER BY created_at, id`

	rows, err := r.db.Query(query, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying order items for order %s: %v", ErrDatabaseError, orderID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		var modifiers []byte
		err := rows.Scan(
			&item.ID, &item.OrderID, &item.ItemID, &item.ItemNameEN, &item.ItemNameAR, &item.Quantity,
			&item.UnitPrice, &item.TotalPrice, &modifiers, &item.Notes, &item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning order item for order %s: %v", ErrDatabaseError, orderID, err)
		}
		if len(modifiers) > 0 {
			item.Modifiers = modifiers
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating order item rows for order %s: %v", ErrDatabaseError, orderID, err)
	}
	return items, nil
}

func (r *orderRepository) GetOrders(filters models.OrderFilters) ([]models.Order, int, error) {
	orders := []models.Order{}
	totalCount := 0

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + orderColumns + `, COUNT(*) OVER() AS total_count FROM orders`)

	conditions := []string{"tenant_id = $1"}
	args := []interface{}{filters.TenantID}
	argCounter := 2

	if filters.Status != nil && *filters.Status != "" && *filters.Status != "all" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argCounter))
		args = append(args, *filters.Status)
		argCounter++
	}
	if filters.Channel != nil && *filters.Channel != "" && *filters.Channel != "all" {
		conditions = append(conditions, fmt.Sprintf("channel = $%d", argCounter))
		args = append(args, *filters.Channel)
		argCounter++
	}
	if filters.From != nil && *filters.From != "" {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argCounter))
		args = append(args, *filters.From)
		argCounter++
	}
	if filters.To != nil && *filters.To != "" {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argCounter))
		args = append(args, *filters.To)
		argCounter++
	}

	queryBuilder.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	queryBuilder.WriteString(" ORDER BY created_at DESC")

	if filters.PageSize > 0 {
		queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d", argCounter))
		args = append(args, filters.PageSize)
		argCounter++
		if filters.Page > 1 {
			queryBuilder.WriteString(fmt.Sprintf(" OFFSET $%d", argCounter))
			args = append(args, (filters.Page-1)*filters.PageSize)
		}
	}

	rows, err := r.db.Query(queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: querying orders: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		o := models.Order{}
		err := rows.Scan(
			&o.ID, &o.TenantID, &o.BranchID, &o.OrderNumber, &o.Channel, &o.OrderType, &o.Status,
			&o.PaymentStatus, &o.PaymentMethod, &o.PaymentReference,
			&o.Subtotal, &o.TaxAmount, &o.ServiceCharge, &o.DiscountAmount, &o.DeliveryFee, &o.TotalAmount,
			&o.CustomerName, &o.CustomerPhone, &o.CustomerEmail, &o.Notes,
			&o.DeliveryStatus, &o.DeliveryTracking,
			&o.CreatedAt, &o.AcceptedAt, &o.ReadyAt, &o.DispatchedAt, &o.CompletedAt, &o.CancelledAt, &o.PaidAt, &o.UpdatedAt,
			&totalCount,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: scanning order: %v", ErrDatabaseError, err)
		}
		orders = append(orders, o)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating order rows: %v", ErrDatabaseError, err)
	}
	return orders, totalCount, nil
}

// ListActive is the kitchen display feed: everything not yet completed or
// cancelled, newest first.
func (r *orderRepository) ListActive(tenantID string) ([]models.Order, error) {
	orders := []models.Order{}
	query := `SELECT ` + orderColumns + ` FROM orders
	          WHERE tenant_id = $1 AND status NOT IN ($2, $3)
	          ORDER BY created_at DESC`

	rows, err := r.db.Query(query, tenantID, models.StatusCompleted, models.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("%w: querying active orders: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning active order: %v", ErrDatabaseError, err)
		}
		orders = append(orders, *order)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating active order rows: %v", ErrDatabaseError, err)
	}
	return orders, nil
}

// buildUpdate turns the non-nil fields of an OrderStatusUpdate into SET
// clauses. The whitelist is the struct itself: nothing else can be written.
func buildUpdate(fields models.OrderStatusUpdate, argOffset int) (string, []interface{}) {
	var sets []string
	var args []interface{}
	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argOffset+len(args)))
		args = append(args, value)
	}

	if fields.Status != nil {
		add("status", *fields.Status)
	}
	if fields.PaymentStatus != nil {
		add("payment_status", *fields.PaymentStatus)
	}
	if fields.PaymentMethod != nil {
		add("payment_method", *fields.PaymentMethod)
	}
	if fields.PaymentReference != nil {
		add("payment_reference", *fields.PaymentReference)
	}
	if fields.DeliveryStatus != nil {
		add("delivery_status", *fields.DeliveryStatus)
	}
	if fields.DeliveryTracking != nil {
		add("delivery_tracking_link", *fields.DeliveryTracking)
	}
	if fields.AcceptedAt != nil {
		add("accepted_at", *fields.AcceptedAt)
	}
	if fields.ReadyAt != nil {
		add("ready_at", *fields.ReadyAt)
	}
	if fields.DispatchedAt != nil {
		add("dispatched_at", *fields.DispatchedAt)
	}
	if fields.CompletedAt != nil {
		add("completed_at", *fields.CompletedAt)
	}
	if fields.CancelledAt != nil {
		add("cancelled_at", *fields.CancelledAt)
	}
	if fields.PaidAt != nil {
		add("paid_at", *fields.PaidAt)
	}
	if fields.UpdatedAt.IsZero() {
		fields.UpdatedAt = time.Now()
	}
	add("updated_at", fields.UpdatedAt)

	return strings.Join(sets, ", "), args
}

func (r *orderRepository) UpdateOrderStatus(executor SQLExecutor, orderID, tenantID, expectedStatus string, fields models.OrderStatusUpdate) (int64, error) {
	setClause, args := buildUpdate(fields, 4)
	query := fmt.Sprintf(`UPDATE orders SET %s WHERE id = $1 AND tenant_id = $2 AND status = $3`, setClause)
	args = append([]interface{}{orderID, tenantID, expectedStatus}, args...)

	result, err := executor.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: updating order status for %s: %v", ErrDatabaseError, orderID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected for order status update %s: %v", ErrDatabaseError, orderID, err)
	}
	return rowsAffected, nil
}

func (r *orderRepository) UpdatePayment(executor SQLExecutor, orderID, tenantID, expectedPaymentStatus string, fields models.OrderStatusUpdate) (int64, error) {
	setClause, args := buildUpdate(fields, 4)
	query := fmt.Sprintf(`UPDATE orders SET %s WHERE id = $1 AND tenant_id = $2 AND payment_status = $3`, setClause)
	args = append([]interface{}{orderID, tenantID, expectedPaymentStatus}, args...)

	result, err := executor.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: updating payment for order %s: %v", ErrDatabaseError, orderID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected for payment update %s: %v", ErrDatabaseError, orderID, err)
	}
	return rowsAffected, nil
}
