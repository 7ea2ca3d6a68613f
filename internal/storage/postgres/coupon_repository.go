package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type couponRepository struct {
	db *sql.DB
}

// NewCouponRepository создаёт PostgreSQL-реализацию CouponRepository.
func NewCouponRepository(store *Store) domain.CouponRepository {
	return &couponRepository{db: store.DB()}
}

// Get возвращает правило купона или ErrCouponNotFound. Код нечувствителен
// к регистру.
func (r *couponRepository) Get(code string) (domain.Coupon, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		coupon    domain.Coupon
		kind      string
		expiresAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT code, kind, value, min_subtotal_minor, expires_at, active
		FROM coupons
		WHERE code = $1
	`, normalizeCouponCode(code)).Scan(
		&coupon.Code, &kind, &coupon.Value, &coupon.MinSubtotalMinor, &expiresAt, &coupon.Active,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Coupon{}, domain.ErrCouponNotFound
		}
		return domain.Coupon{}, fmt.Errorf("select coupon: %w", err)
	}

	coupon.Kind = domain.CouponKind(kind)
	if expiresAt.Valid {
		coupon.ExpiresAt = expiresAt.Time.UTC()
	}

	return coupon, nil
}

func (r *couponRepository) Upsert(coupon domain.Coupon) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var expiresAt any
	if !coupon.ExpiresAt.IsZero() {
		expiresAt = coupon.ExpiresAt.UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO coupons (code, kind, value, min_subtotal_minor, expires_at, active)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (code) DO UPDATE
		SET kind = EXCLUDED.kind,
		    value = EXCLUDED.value,
		    min_subtotal_minor = EXCLUDED.min_subtotal_minor,
		    expires_at = EXCLUDED.expires_at,
		    active = EXCLUDED.active
	`,
		normalizeCouponCode(coupon.Code), string(coupon.Kind), coupon.Value,
		coupon.MinSubtotalMinor, expiresAt, coupon.Active,
	)
	if err != nil {
		return fmt.Errorf("upsert coupon: %w", err)
	}

	return nil
}

func normalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

var _ domain.CouponRepository = (*couponRepository)(nil)
