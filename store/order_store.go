package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/prodbymtr/storefront/models"
)

// MaxListLimit caps ListRecent.
const MaxListLimit = 50

var ErrOrderNotFound = errors.New("pedido no encontrado")

type PoolOptions struct {
	MaxOpenConns int
	MaxIdleTime  time.Duration
}

// Open opens a lib/pq pool. The connection is not checked; call Ping.
func Open(dsn string, opts PoolOptions) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.MaxIdleTime)
	}
	return db, nil
}

type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

const orderColumns = `id, producto_id, producto_nombre, precio_pagado, stripe_session_id, status,
	cliente_email, descarga_enviada, creado_en, actualizado_en`

func (s *OrderStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS pedidos (
			id SERIAL PRIMARY KEY,
			producto_id TEXT NOT NULL,
			producto_nombre TEXT NOT NULL,
			precio_pagado NUMERIC(10,2) NOT NULL,
			stripe_session_id TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','completed')),
			cliente_email TEXT,
			descarga_enviada BOOLEAN NOT NULL DEFAULT false,
			creado_en TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			actualizado_en TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return &models.StorageError{Op: "ensure schema", Err: err}
	}
	return nil
}

// CreatePending inserts a pending order and fills in its generated fields.
func (s *OrderStore) CreatePending(ctx context.Context, order *models.Order) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO pedidos (producto_id, producto_nombre, precio_pagado, stripe_session_id, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING id, creado_en, actualizado_en`,
		order.ProductID, order.ProductName, order.PricePaid, order.SessionID,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return &models.StorageError{Op: "insert order", Err: err}
	}
	order.Status = models.StatusPending
	return nil
}

func (s *OrderStore) FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM pedidos WHERE stripe_session_id = $1 ORDER BY id LIMIT 1`,
		sessionID)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, &models.StorageError{Op: "find order", Err: err}
	}
	return order, nil
}

// MarkCompleted moves the order to completed and claims fulfillment. It
// reports claimed=false when fulfillment was already claimed, so a replayed
// event does not send mail twice.
func (s *OrderStore) MarkCompleted(ctx context.Context, sessionID, email string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pedidos
		SET status = 'completed',
			cliente_email = $1,
			descarga_enviada = true,
			actualizado_en = NOW()
		WHERE stripe_session_id = $2 AND descarga_enviada = false`,
		email, sessionID)
	if err != nil {
		return false, &models.StorageError{Op: "complete order", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &models.StorageError{Op: "complete order", Err: err}
	}
	return n > 0, nil
}

func (s *OrderStore) ListRecent(ctx context.Context, limit int) ([]models.Order, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM pedidos ORDER BY creado_en DESC LIMIT $1`, limit)
	if err != nil {
		return nil, &models.StorageError{Op: "list orders", Err: err}
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, &models.StorageError{Op: "list orders", Err: err}
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StorageError{Op: "list orders", Err: err}
	}
	return orders, nil
}

func (s *OrderStore) SalesSummary(ctx context.Context) (*models.SalesSummary, error) {
	summary := &models.SalesSummary{ByProduct: []models.ProductSales{}}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COALESCE(SUM(precio_pagado) FILTER (WHERE status = 'completed'), 0)
		FROM pedidos`,
	).Scan(&summary.TotalOrders, &summary.Completed, &summary.Pending, &summary.Revenue)
	if err != nil {
		return nil, &models.StorageError{Op: "sales totals", Err: err}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT producto_id, producto_nombre, COUNT(*), COALESCE(SUM(precio_pagado), 0)
		FROM pedidos
		WHERE status = 'completed'
		GROUP BY producto_id, producto_nombre
		ORDER BY 4 DESC`)
	if err != nil {
		return nil, &models.StorageError{Op: "sales by product", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var ps models.ProductSales
		if err := rows.Scan(&ps.ProductID, &ps.ProductName, &ps.Sales, &ps.Revenue); err != nil {
			return nil, &models.StorageError{Op: "sales by product", Err: err}
		}
		summary.ByProduct = append(summary.ByProduct, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StorageError{Op: "sales by product", Err: err}
	}
	return summary, nil
}

// Ping runs a trivial round trip through the pool.
func (s *OrderStore) Ping(ctx context.Context) error {
	var now time.Time
	if err := s.db.QueryRowContext(ctx, `SELECT NOW()`).Scan(&now); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*models.Order, error) {
	var (
		order  models.Order
		status string
		email  sql.NullString
	)
	err := row.Scan(&order.ID, &order.ProductID, &order.ProductName, &order.PricePaid, &order.SessionID,
		&status, &email, &order.DownloadSent, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	order.Status = models.OrderStatus(status)
	order.CustomerEmail = email.String
	return &order, nil
}
