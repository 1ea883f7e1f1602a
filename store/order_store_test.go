package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodbymtr/storefront/models"
)

var orderRowColumns = []string{"id", "producto_id", "producto_nombre", "precio_pagado", "stripe_session_id",
	"status", "cliente_email", "descarga_enviada", "creado_en", "actualizado_en"}

func newMockStore(t *testing.T) (*OrderStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewOrderStore(db), mock
}

func TestCreatePending(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("^INSERT INTO pedidos").
		WithArgs("drumkit-essential", "DRUMKIT ESSENTIAL", 25.0, "cs_test_1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "creado_en", "actualizado_en"}).AddRow(7, created, created))

	order := &models.Order{ProductID: "drumkit-essential", ProductName: "DRUMKIT ESSENTIAL", PricePaid: 25.0, SessionID: "cs_test_1"}
	require.NoError(t, s.CreatePending(context.Background(), order))

	assert.Equal(t, 7, order.ID)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.Equal(t, created, order.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePendingStorageError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("^INSERT INTO pedidos").WillReturnError(errors.New("connection refused"))

	err := s.CreatePending(context.Background(), &models.Order{SessionID: "cs_test_1"})
	var storageErr *models.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "insert order", storageErr.Op)
}

func TestFindBySessionID(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("^SELECT (.+) FROM pedidos WHERE stripe_session_id").
		WithArgs("cs_test_1").
		WillReturnRows(sqlmock.NewRows(orderRowColumns).
			AddRow(1, "vocal-template", "VOCAL CHAIN TEMPLATE", 17.0, "cs_test_1", "pending", nil, false, now, now))

	order, err := s.FindBySessionID(context.Background(), "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, "vocal-template", order.ProductID)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.Empty(t, order.CustomerEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindBySessionIDNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("^SELECT (.+) FROM pedidos").WithArgs("cs_missing").WillReturnRows(sqlmock.NewRows(orderRowColumns))

	_, err := s.FindBySessionID(context.Background(), "cs_missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestMarkCompleted(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("^UPDATE pedidos").
		WithArgs("buyer@example.com", "cs_test_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("^UPDATE pedidos").
		WithArgs("buyer@example.com", "cs_test_1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := s.MarkCompleted(context.Background(), "cs_test_1", "buyer@example.com")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = s.MarkCompleted(context.Background(), "cs_test_1", "buyer@example.com")
	require.NoError(t, err)
	assert.False(t, claimed, "second completion must not claim fulfillment again")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecentCapsLimit(t *testing.T) {
	s, mock := newMockStore(t)
	newer := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	mock.ExpectQuery("^SELECT (.+) FROM pedidos ORDER BY creado_en DESC LIMIT").
		WithArgs(MaxListLimit).
		WillReturnRows(sqlmock.NewRows(orderRowColumns).
			AddRow(2, "cumbia-420", "CUMBIA 420 - DRUMKIT", 18.0, "cs_2", "completed", "a@example.com", true, newer, newer).
			AddRow(1, "cumbia-420", "CUMBIA 420 - DRUMKIT", 18.0, "cs_1", "pending", nil, false, older, older))

	orders, err := s.ListRecent(context.Background(), 500)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "cs_2", orders[0].SessionID)
	assert.Equal(t, "a@example.com", orders[0].CustomerEmail)
	assert.True(t, orders[0].CreatedAt.After(orders[1].CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSalesSummary(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("^SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"total", "completed", "pending", "revenue"}).AddRow(3, 2, 1, 50.0))
	mock.ExpectQuery("^SELECT producto_id, producto_nombre, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"producto_id", "producto_nombre", "count", "sum"}).
			AddRow("drumkit-essential", "DRUMKIT ESSENTIAL", 2, 50.0))

	summary, err := s.SalesSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalOrders)
	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 1, summary.Pending)
	assert.Equal(t, 50.0, summary.Revenue)
	require.Len(t, summary.ByProduct, 1)
	assert.Equal(t, 2, summary.ByProduct[0].Sales)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("^SELECT NOW").WillReturnRows(sqlmock.NewRows([]string{"now"}).AddRow(time.Now()))
	mock.ExpectQuery("^SELECT NOW").WillReturnError(errors.New("timeout"))

	assert.NoError(t, s.Ping(context.Background()))
	assert.Error(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS pedidos").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
