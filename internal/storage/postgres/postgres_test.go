package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/flowerbot/internal/model"
	"github.com/m3rciful/flowerbot/internal/storage"
)

var orderCols = []string{"id", "user_id", "city_id", "city_name", "checkout_key", "phone", "area", "comment", "total", "status", "status_note", "created_at", "updated_at"}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func sampleOrder() model.Order {
	o := model.Order{
		UserID:      7,
		CityID:      1,
		CityName:    "Kyiv",
		CheckoutKey: "key-1",
		Area:        "Podil",
		Status:      model.OrderPending,
		Items: []model.LineItem{
			{ProductID: 10, ProductName: "Roses", ProductVersion: 1, UnitPrice: 1500, Quantity: 2},
		},
	}
	o.Total = o.ComputeTotal()
	return o
}

func TestCommitInsertsOrderAndSession(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()
	order := sampleOrder()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO orders").
		WithArgs(int64(7), int64(1), "Kyiv", "key-1", "", "Podil", "", int64(3000), "pending", "").
		WillReturnRows(sqlmock.NewRows(orderCols).
			AddRow(int64(42), int64(7), int64(1), "Kyiv", "key-1", "", "Podil", "", int64(3000), "pending", "", now, now))
	mock.ExpectExec("INSERT INTO order_items").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sess := model.NewSession(7)
	sess.State = model.StateOrderPlaced
	res, err := store.Commit(context.Background(), storage.Commit{Session: sess, Order: &order})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if res.Replayed {
		t.Fatalf("fresh insert reported as replay")
	}
	if res.Order == nil || res.Order.ID != 42 || len(res.Order.Items) != 1 || res.Order.Area != "Podil" {
		t.Fatalf("unexpected order: %+v", res.Order)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCommitReplaysExistingCheckoutKey(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()
	order := sampleOrder()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO orders").WillReturnRows(sqlmock.NewRows(orderCols))
	mock.ExpectQuery("FROM orders WHERE checkout_key").
		WithArgs("key-1").
		WillReturnRows(sqlmock.NewRows(orderCols).
			AddRow(int64(41), int64(7), int64(1), "Kyiv", "key-1", "", "", "", int64(3000), "pending", "", now, now))
	mock.ExpectQuery("FROM order_items").
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "position", "product_id", "product_name", "product_version", "unit_price", "quantity"}).
			AddRow(int64(41), 1, int64(10), "Roses", 1, int64(1500), 2))
	mock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := store.Commit(context.Background(), storage.Commit{Session: model.NewSession(7), Order: &order})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !res.Replayed || res.Order.ID != 41 {
		t.Fatalf("expected replay of order 41, got %+v replayed=%v", res.Order, res.Replayed)
	}
	if len(res.Order.Items) != 1 || res.Order.Items[0].Quantity != 2 {
		t.Fatalf("items not loaded: %+v", res.Order.Items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCommitRollsBackOnSessionFailure(t *testing.T) {
	store, mock := newMock(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO sessions").WillReturnError(boom)
	mock.ExpectRollback()

	_, err := store.Commit(context.Background(), storage.Commit{Session: model.NewSession(7)})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCommitDropSession(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO feedback").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "order_id", "text", "created_at"}).
			AddRow(int64(3), int64(7), nil, "lovely", time.Now()))
	mock.ExpectExec("DELETE FROM sessions").WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := store.Commit(context.Background(), storage.Commit{
		Session:     model.NewSession(7),
		DropSession: true,
		Feedback:    &model.Feedback{UserID: 7, Text: "lovely"},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if res.Feedback == nil || res.Feedback.ID != 3 || res.Feedback.OrderID != 0 {
		t.Fatalf("unexpected feedback: %+v", res.Feedback)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSessionGetMissingIsIdle(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("FROM sessions WHERE user_id").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	sess, err := store.Sessions().Get(context.Background(), 9)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.State != model.StateIdle || sess.UserID != 9 {
		t.Fatalf("expected idle session, got %+v", sess)
	}
}

func TestSessionGetDecodesCart(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery("FROM sessions WHERE user_id").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "state", "city_id", "cart", "checkout_key", "phone", "area", "comment", "last_order_id", "updated_at"}).
			AddRow(int64(9), "awaiting_confirmation", int64(2), []byte(`[{"product_id":5,"quantity":3,"version":4}]`), "k", "", "Podil", "", int64(0), now))

	sess, err := store.Sessions().Get(context.Background(), 9)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.State != model.StateAwaitingConfirmation || len(sess.Cart) != 1 || sess.Cart[0].Quantity != 3 {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if sess.Cart[0].Version != 4 || sess.Area != "Podil" {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestUpdateStatusConflict(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery("UPDATE orders SET status").
		WithArgs(int64(5), "pending", "confirmed", "").
		WillReturnRows(sqlmock.NewRows(orderCols))
	mock.ExpectQuery("FROM orders WHERE id").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(orderCols).
			AddRow(int64(5), int64(7), int64(1), "Kyiv", "k", "", "", "", int64(100), "cancelled", "", now, now))
	mock.ExpectQuery("FROM order_items").
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "position", "product_id", "product_name", "product_version", "unit_price", "quantity"}))

	_, err := store.Orders().UpdateStatus(context.Background(), 5, model.OrderPending, model.OrderConfirmed, "")
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestGetCityNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("FROM cities").WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	_, err := store.Catalog().GetCity(context.Background(), 99)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
