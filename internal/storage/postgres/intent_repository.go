package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type intentRepository struct {
	db *sql.DB
}

// NewIntentRepository создаёт PostgreSQL-реализацию IntentRepository.
// Все условные обновления (статус, merchant order id, stock_adjusted)
// выполняются одним conditional UPDATE: гонку разрешает сама БД.
func NewIntentRepository(store *Store) domain.IntentRepository {
	return &intentRepository{db: store.DB()}
}

func (r *intentRepository) Create(intent domain.PaymentIntent) error {
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
		INSERT INTO payment_intents (
			id, merchant_order_id, provider, currency, coupon_code,
			customer_name, customer_email, customer_phone,
			ship_address, ship_city, ship_state, ship_postal_code, ship_phone,
			subtotal_minor, shipping_fee_minor, tax_minor, discount_minor, total_minor,
			status, stock_adjusted, needs_reconciliation, reconciliation_note,
			gateway_order_id, gateway_transaction_id, gateway_payload,
			paid_at, version, created_at, updated_at
		) VALUES (
			$1,$2,$3,$4,$5,
			$6,$7,$8,
			$9,$10,$11,$12,$13,
			$14,$15,$16,$17,$18,
			$19,$20,$21,$22,
			$23,$24,$25,
			$26,$27,$28,$29
		)
	`,
		intent.ID, nullIfEmpty(intent.MerchantOrderID), intent.Provider, intent.Currency, intent.CouponCode,
		intent.Customer.Name, intent.Customer.Email, intent.Customer.Phone,
		intent.Shipping.Address, intent.Shipping.City, intent.Shipping.State, intent.Shipping.PostalCode, intent.Shipping.Phone,
		intent.Totals.SubtotalMinor, intent.Totals.ShippingFeeMinor, intent.Totals.TaxMinor, intent.Totals.DiscountMinor, intent.Totals.TotalMinor,
		string(intent.Status), intent.StockAdjusted, intent.NeedsReconciliation, intent.ReconciliationNote,
		intent.GatewayOrderID, intent.GatewayTransactionID, intent.GatewayPayload,
		nullableTime(intent.PaidAt), intent.Version, intent.CreatedAt, intent.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrIntentVersionConflict
		}
		return fmt.Errorf("insert payment intent: %w", err)
	}

	for _, line := range intent.Items {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO intent_items (
				intent_id, product_id, variant_selector, qty, display_name, unit_price_minor
			) VALUES ($1,$2,$3,$4,$5,$6)
		`,
			intent.ID, line.ProductID, line.VariantSelector, line.Qty, line.DisplayName, line.UnitPriceMinor,
		); err != nil {
			return fmt.Errorf("insert intent item: %w", err)
		}
	}

	for _, attempt := range intent.Attempts {
		if err = insertAttemptTx(ctx, tx, intent.ID, attempt); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create intent: %w", err)
	}

	return nil
}

func (r *intentRepository) Get(id string) (domain.PaymentIntent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.getBy(ctx, "id", id)
}

func (r *intentRepository) GetByMerchantOrderID(merchantOrderID string) (domain.PaymentIntent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.getBy(ctx, "merchant_order_id", merchantOrderID)
}

func (r *intentRepository) getBy(ctx context.Context, column, value string) (domain.PaymentIntent, error) {
	var (
		intent          domain.PaymentIntent
		merchantOrderID sql.NullString
		status          string
		paidAt          sql.NullTime
	)

	query := fmt.Sprintf(`
		SELECT id, merchant_order_id, provider, currency, coupon_code,
		       customer_name, customer_email, customer_phone,
		       ship_address, ship_city, ship_state, ship_postal_code, ship_phone,
		       subtotal_minor, shipping_fee_minor, tax_minor, discount_minor, total_minor,
		       status, stock_adjusted, needs_reconciliation, reconciliation_note,
		       gateway_order_id, gateway_transaction_id, gateway_payload,
		       paid_at, version, created_at, updated_at
		FROM payment_intents
		WHERE %s = $1
	`, column)

	err := r.db.QueryRowContext(ctx, query, value).Scan(
		&intent.ID, &merchantOrderID, &intent.Provider, &intent.Currency, &intent.CouponCode,
		&intent.Customer.Name, &intent.Customer.Email, &intent.Customer.Phone,
		&intent.Shipping.Address, &intent.Shipping.City, &intent.Shipping.State, &intent.Shipping.PostalCode, &intent.Shipping.Phone,
		&intent.Totals.SubtotalMinor, &intent.Totals.ShippingFeeMinor, &intent.Totals.TaxMinor, &intent.Totals.DiscountMinor, &intent.Totals.TotalMinor,
		&status, &intent.StockAdjusted, &intent.NeedsReconciliation, &intent.ReconciliationNote,
		&intent.GatewayOrderID, &intent.GatewayTransactionID, &intent.GatewayPayload,
		&paidAt, &intent.Version, &intent.CreatedAt, &intent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PaymentIntent{}, domain.ErrIntentNotFound
		}
		return domain.PaymentIntent{}, fmt.Errorf("select payment intent: %w", err)
	}

	intent.Status = domain.IntentStatus(status)
	if merchantOrderID.Valid {
		intent.MerchantOrderID = merchantOrderID.String
	}
	if paidAt.Valid {
		ts := paidAt.Time.UTC()
		intent.PaidAt = &ts
	}

	items, err := r.loadItems(ctx, intent.ID)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	intent.Items = items

	attempts, err := r.loadAttempts(ctx, intent.ID)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	intent.Attempts = attempts

	return intent, nil
}

func (r *intentRepository) AssignMerchantOrderID(id, merchantOrderID string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_intents
		SET merchant_order_id = $2,
		    version = version + 1,
		    updated_at = $3
		WHERE id = $1
		  AND merchant_order_id IS NULL
	`, id, merchantOrderID, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("assign merchant order id: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return merchantOrderID, nil
	}

	// Проигравший гонку получает уже присвоенный идентификатор.
	var existing sql.NullString
	err = r.db.QueryRowContext(ctx, `
		SELECT merchant_order_id FROM payment_intents WHERE id = $1
	`, id).Scan(&existing)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrIntentNotFound
		}
		return "", fmt.Errorf("select merchant order id: %w", err)
	}
	if !existing.Valid || existing.String == "" {
		return "", domain.ErrMerchantOrderIDAssigned
	}

	return existing.String, nil
}

func (r *intentRepository) AppendAttempt(id string, attempt domain.Attempt) error {
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

	res, err := tx.ExecContext(ctx, `
		UPDATE payment_intents
		SET version = version + 1,
		    updated_at = $2
		WHERE id = $1
	`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("touch intent for attempt: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrIntentNotFound
	}

	if err = insertAttemptTx(ctx, tx, id, attempt); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit append attempt: %w", err)
	}

	return nil
}

func (r *intentRepository) UpdateStatus(id string, to domain.IntentStatus, paidAt *time.Time) error {
	sources := domain.TransitionSources(to)
	if len(sources) == 0 {
		return domain.ErrIntentStateConflict
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var paidArg any
	if to == domain.IntentStatusPaid && paidAt != nil {
		paidArg = paidAt.UTC()
	}

	args := []any{id, string(to), paidArg, time.Now().UTC()}
	placeholders := make([]string, 0, len(sources))
	for _, from := range sources {
		args = append(args, string(from))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	query := fmt.Sprintf(`
		UPDATE payment_intents
		SET status = $2,
		    paid_at = COALESCE($3, paid_at),
		    version = version + 1,
		    updated_at = $4
		WHERE id = $1
		  AND status IN (%s)
	`, strings.Join(placeholders, ","))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update intent status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.intentExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrIntentNotFound
		}
		return domain.ErrIntentStateConflict
	}

	return nil
}

func (r *intentRepository) SetGatewayState(id, gatewayOrderID, transactionID string, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_intents
		SET gateway_order_id = CASE WHEN $2 = '' THEN gateway_order_id ELSE $2 END,
		    gateway_transaction_id = CASE WHEN $3 = '' THEN gateway_transaction_id ELSE $3 END,
		    gateway_payload = COALESCE($4, gateway_payload),
		    version = version + 1,
		    updated_at = $5
		WHERE id = $1
	`, id, gatewayOrderID, transactionID, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set gateway state: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrIntentNotFound
	}

	return nil
}

func (r *intentRepository) TryMarkStockAdjusted(id string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_intents
		SET stock_adjusted = TRUE,
		    version = version + 1,
		    updated_at = $2
		WHERE id = $1
		  AND stock_adjusted = FALSE
	`, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark stock adjusted: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return true, nil
	}

	exists, err := r.intentExists(ctx, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, domain.ErrIntentNotFound
	}

	return false, nil
}

func (r *intentRepository) MarkReconciliation(id, note string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_intents
		SET needs_reconciliation = TRUE,
		    reconciliation_note = $2,
		    version = version + 1,
		    updated_at = $3
		WHERE id = $1
	`, id, note, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark reconciliation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrIntentNotFound
	}

	return nil
}

func (r *intentRepository) loadItems(ctx context.Context, intentID string) ([]domain.OrderLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, variant_selector, qty, display_name, unit_price_minor
		FROM intent_items
		WHERE intent_id = $1
		ORDER BY seq ASC
	`, intentID)
	if err != nil {
		return nil, fmt.Errorf("load intent items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderLine, 0)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ProductID, &line.VariantSelector, &line.Qty, &line.DisplayName, &line.UnitPriceMinor); err != nil {
			return nil, fmt.Errorf("scan intent item: %w", err)
		}
		items = append(items, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intent items: %w", err)
	}

	return items, nil
}

func (r *intentRepository) loadAttempts(ctx context.Context, intentID string) ([]domain.Attempt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, provider, amount_minor, status, provider_response, created_at
		FROM intent_attempts
		WHERE intent_id = $1
		ORDER BY seq ASC
	`, intentID)
	if err != nil {
		return nil, fmt.Errorf("load intent attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]domain.Attempt, 0)
	for rows.Next() {
		var (
			attempt domain.Attempt
			status  string
		)
		if err := rows.Scan(&attempt.ID, &attempt.Provider, &attempt.AmountMinor, &status, &attempt.ProviderResponse, &attempt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan intent attempt: %w", err)
		}
		attempt.Status = domain.AttemptStatus(status)
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intent attempts: %w", err)
	}

	return attempts, nil
}

func (r *intentRepository) intentExists(ctx context.Context, id string) (bool, error) {
	var found string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM payment_intents WHERE id = $1`, id).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check intent exists: %w", err)
}

func insertAttemptTx(ctx context.Context, tx *sql.Tx, intentID string, attempt domain.Attempt) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO intent_attempts (
			id, intent_id, provider, amount_minor, status, provider_response, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		attempt.ID, intentID, attempt.Provider, attempt.AmountMinor,
		string(attempt.Status), attempt.ProviderResponse, attempt.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert intent attempt: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

var _ domain.IntentRepository = (*intentRepository)(nil)
