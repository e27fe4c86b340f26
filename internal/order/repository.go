package order

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")
	ErrProductInactive = errors.New("product is not for sale")
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// --- products ---

func (r *Repository) FindProduct(ctx context.Context, id int) (*Product, error) {
	p := &Product{}
	err := r.db.GetContext(ctx, p, `SELECT * FROM products WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *Repository) ListActiveProducts(ctx context.Context) ([]Product, error) {
	var ps []Product
	err := r.db.SelectContext(ctx, &ps,
		`SELECT * FROM products WHERE is_active = TRUE ORDER BY price_rub, id`)
	if err != nil {
		return nil, err
	}
	return ps, nil
}

func (r *Repository) CreateProduct(ctx context.Context, p *Product) (*Product, error) {
	created := &Product{}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO products (name, description, price_rub, is_active, grant_kind,
		                       membership_kind, membership_scope, membership_visits,
		                       membership_days, wallet_topup_rub, bonus_eligible)
		 VALUES ($1, $2, $3, TRUE, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING *`,
		p.Name, p.Description, p.PriceRub, p.GrantKind,
		p.MembershipKind, p.MembershipScope, p.MembershipVisits,
		p.MembershipDays, p.WalletTopupRub, p.BonusEligible,
	).StructScan(created)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// --- orders ---

func (r *Repository) CreateOrderTx(ctx context.Context, tx *sqlx.Tx, userID *int, totalRub int) (*Order, error) {
	o := &Order{}
	err := tx.QueryRowxContext(ctx,
		`INSERT INTO orders (user_id, total_rub)
		 VALUES ($1, $2)
		 RETURNING *`,
		userID, totalRub,
	).StructScan(o)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repository) AddItemTx(ctx context.Context, tx *sqlx.Tx, item *Item) (*Item, error) {
	created := &Item{}
	err := tx.QueryRowxContext(ctx,
		`INSERT INTO order_items (order_id, product_id, product_name, unit_price_rub, qty)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING *`,
		item.OrderID, item.ProductID, item.ProductName, item.UnitPriceRub, item.Qty,
	).StructScan(created)
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *Repository) FindOrder(ctx context.Context, id int) (*Order, error) {
	o := &Order{}
	err := r.db.GetContext(ctx, o, `SELECT * FROM orders WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return o, nil
}

func (r *Repository) LockOrder(ctx context.Context, tx *sqlx.Tx, id int) (*Order, error) {
	o := &Order{}
	err := tx.QueryRowxContext(ctx,
		`SELECT * FROM orders WHERE id = $1 FOR UPDATE`, id,
	).StructScan(o)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return o, nil
}

func (r *Repository) ListItems(ctx context.Context, q sqlx.QueryerContext, orderID int) ([]Item, error) {
	var items []Item
	err := sqlx.SelectContext(ctx, q, &items,
		`SELECT * FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *Repository) ListUserOrders(ctx context.Context, userID int) ([]Order, error) {
	var os []Order
	err := r.db.SelectContext(ctx, &os,
		`SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return os, nil
}

func (r *Repository) SetStatus(ctx context.Context, id int, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $1 WHERE id = $2`, status, id)
	return err
}

func (r *Repository) SetGatewayInfo(ctx context.Context, id int, status, tbPaymentID, tbStatus string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1, tb_payment_id = $2, tb_status = $3
		 WHERE id = $4`,
		status, tbPaymentID, tbStatus, id,
	)
	return err
}

func (r *Repository) MarkPaidTx(ctx context.Context, tx *sqlx.Tx, id int, tbStatus string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders
		 SET status = 'paid', tb_status = $1, fulfilled_at = NOW()
		 WHERE id = $2`,
		tbStatus, id,
	)
	return err
}

func (r *Repository) MarkCanceledTx(ctx context.Context, tx *sqlx.Tx, id int, tbStatus string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders
		 SET status = 'canceled', tb_status = $1
		 WHERE id = $2`,
		tbStatus, id,
	)
	return err
}

// --- membership grants ---

func (r *Repository) AddGrantTx(ctx context.Context, tx *sqlx.Tx, orderItemID, membershipID int) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO membership_grants (order_item_id, membership_id)
		 VALUES ($1, $2)`,
		orderItemID, membershipID,
	)
	return err
}

// ListGrants возвращает абонементы, выданные по заказу, через явную связь
// grant -> order_item. Никаких догадок по датам и названиям при отзыве.
func (r *Repository) ListGrants(ctx context.Context, q sqlx.QueryerContext, orderID int) ([]Grant, error) {
	var gs []Grant
	err := sqlx.SelectContext(ctx, q, &gs,
		`SELECT g.* FROM membership_grants g
		 JOIN order_items i ON i.id = g.order_item_id
		 WHERE i.order_id = $1`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	return gs, nil
}
