package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
// Идемпотентность материализации держится на UNIQUE(intent_id): гонка
// вставок даёт ровно одного победителя, остальные получают ErrOrderExists.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, intent_id, merchant_order_id,
			customer_name, customer_email, customer_phone,
			ship_address, ship_city, ship_state, ship_postal_code, ship_phone,
			currency, subtotal_minor, shipping_fee_minor, tax_minor, discount_minor, total_minor,
			status, payment_provider, gateway_transaction_id,
			carrier_name, carrier_order_id, tracking_number,
			shipping_push_status, shipping_push_error, email_status,
			version, created_at, updated_at
		) VALUES (
			$1,$2,$3,
			$4,$5,$6,
			$7,$8,$9,$10,$11,
			$12,$13,$14,$15,$16,$17,
			$18,$19,$20,
			$21,$22,$23,
			$24,$25,$26,
			$27,$28,$29
		)
	`,
		order.ID, order.IntentID, order.MerchantOrderID,
		order.Customer.Name, order.Customer.Email, order.Customer.Phone,
		order.Shipping.Address, order.Shipping.City, order.Shipping.State, order.Shipping.PostalCode, order.Shipping.Phone,
		order.Currency, order.Totals.SubtotalMinor, order.Totals.ShippingFeeMinor, order.Totals.TaxMinor, order.Totals.DiscountMinor, order.Totals.TotalMinor,
		string(order.Status), order.PaymentProvider, order.GatewayTransactionID,
		order.Delivery.CarrierName, order.Delivery.CarrierOrderID, order.Delivery.TrackingNumber,
		pushStatusOrDefault(order.Delivery.PushStatus), order.Delivery.PushError, emailStatusOrDefault(order.EmailStatus),
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderExists
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, product_id, display_name, variant_selector, qty, unit_price_minor, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			item.ID, order.ID, item.ProductID, item.DisplayName, item.VariantSelector,
			item.Qty, item.UnitPriceMinor, item.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}

	return nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.getBy(ctx, "id", id)
}

func (r *orderRepository) GetByIntentID(intentID string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.getBy(ctx, "intent_id", intentID)
}

func (r *orderRepository) getBy(ctx context.Context, column, value string) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)

	query := fmt.Sprintf(`
		SELECT id, intent_id, merchant_order_id,
		       customer_name, customer_email, customer_phone,
		       ship_address, ship_city, ship_state, ship_postal_code, ship_phone,
		       currency, subtotal_minor, shipping_fee_minor, tax_minor, discount_minor, total_minor,
		       status, payment_provider, gateway_transaction_id,
		       carrier_name, carrier_order_id, tracking_number,
		       shipping_push_status, shipping_push_error, email_status,
		       version, created_at, updated_at
		FROM orders
		WHERE %s = $1
	`, column)

	err := r.db.QueryRowContext(ctx, query, value).Scan(
		&order.ID, &order.IntentID, &order.MerchantOrderID,
		&order.Customer.Name, &order.Customer.Email, &order.Customer.Phone,
		&order.Shipping.Address, &order.Shipping.City, &order.Shipping.State, &order.Shipping.PostalCode, &order.Shipping.Phone,
		&order.Currency, &order.Totals.SubtotalMinor, &order.Totals.ShippingFeeMinor, &order.Totals.TaxMinor, &order.Totals.DiscountMinor, &order.Totals.TotalMinor,
		&status, &order.PaymentProvider, &order.GatewayTransactionID,
		&order.Delivery.CarrierName, &order.Delivery.CarrierOrderID, &order.Delivery.TrackingNumber,
		&order.Delivery.PushStatus, &order.Delivery.PushError, &order.EmailStatus,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	order.Status = domain.OrderStatus(status)

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) UpdatePaymentInfo(orderID, transactionID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET gateway_transaction_id = CASE WHEN $2 = '' THEN gateway_transaction_id ELSE $2 END,
		    version = version + 1,
		    updated_at = $3
		WHERE id = $1
	`, orderID, transactionID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update order payment info: %w", err)
	}

	return requireAffected(res, domain.ErrOrderNotFound)
}

func (r *orderRepository) SetDelivery(orderID string, info domain.ShippingInfo) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET carrier_name = $2,
		    carrier_order_id = $3,
		    tracking_number = $4,
		    shipping_push_status = $5,
		    shipping_push_error = $6,
		    version = version + 1,
		    updated_at = $7
		WHERE id = $1
	`,
		orderID, info.CarrierName, info.CarrierOrderID, info.TrackingNumber,
		info.PushStatus, info.PushError, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update order delivery: %w", err)
	}

	return requireAffected(res, domain.ErrOrderNotFound)
}

func (r *orderRepository) SetEmailStatus(orderID, status string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET email_status = $2,
		    version = version + 1,
		    updated_at = $3
		WHERE id = $1
	`, orderID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update order email status: %w", err)
	}

	return requireAffected(res, domain.ErrOrderNotFound)
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, display_name, variant_selector, qty, unit_price_minor, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.ProductID, &item.DisplayName, &item.VariantSelector,
			&item.Qty, &item.UnitPriceMinor, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func pushStatusOrDefault(status string) string {
	if status == "" {
		return domain.ShippingPushPending
	}
	return status
}

func emailStatusOrDefault(status string) string {
	if status == "" {
		return domain.EmailPending
	}
	return status
}

func requireAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
