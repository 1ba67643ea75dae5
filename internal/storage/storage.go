// Package storage declares the persistence ports used by the shop.
//
// Two engines implement them: storage/memory (single process, tests and local
// runs) and storage/postgres (sqlx over lib/pq). Callers depend on the
// interfaces only.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/m3rciful/flowerbot/internal/model"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict is returned on unique violations and failed compare-and-set updates.
	ErrConflict = errors.New("storage: conflict")
)

// CatalogReader is the read side of the catalog used by the state machine.
type CatalogReader interface {
	ListCities(ctx context.Context) ([]model.City, error)
	GetCity(ctx context.Context, id int64) (model.City, error)
	ListProducts(ctx context.Context, cityID int64) ([]model.Product, error)
	GetProduct(ctx context.Context, id int64) (model.Product, error)
}

// Catalog adds the admin write operations.
type Catalog interface {
	CatalogReader
	CreateCity(ctx context.Context, name string) (model.City, error)
	RenameCity(ctx context.Context, id int64, name string) error
	// DeleteCity removes the city and all of its products.
	DeleteCity(ctx context.Context, id int64) error
	CreateProduct(ctx context.Context, p model.Product) (model.Product, error)
	UpdateProduct(ctx context.Context, id int64, patch model.ProductPatch) (model.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	// CopyProducts clones every product of from into to and returns the count.
	CopyProducts(ctx context.Context, from, to int64) (int, error)
}

// Sessions stores one conversational session per user.
type Sessions interface {
	// Get returns the stored session or a fresh idle one when absent.
	Get(ctx context.Context, userID int64) (model.Session, error)
	// Put atomically replaces the user's session.
	Put(ctx context.Context, s model.Session) error
	Delete(ctx context.Context, userID int64) error
	// Expire removes sessions last updated before olderThan and returns how many.
	Expire(ctx context.Context, olderThan time.Time) (int, error)
	Count(ctx context.Context) (int, error)
}

// Orders stores placed orders.
type Orders interface {
	GetOrder(ctx context.Context, id int64) (model.Order, error)
	FindByCheckoutKey(ctx context.Context, key string) (model.Order, error)
	ListRecent(ctx context.Context, limit int) ([]model.Order, error)
	// UpdateStatus moves the order from -> to; ErrConflict when the current
	// status is not from.
	UpdateStatus(ctx context.Context, id int64, from, to model.OrderStatus, note string) (model.Order, error)
}

// Users keeps track of Telegram accounts and terms acceptance.
type Users interface {
	// Register inserts the user or refreshes profile fields, keeping the
	// terms flag untouched.
	Register(ctx context.Context, u model.User) (model.User, error)
	GetUserByTelegramID(ctx context.Context, id int64) (model.User, error)
	SetAgreedToTerms(ctx context.Context, id int64, agreed bool) error
}

// Terms stores the latest shop terms text.
type Terms interface {
	CurrentTerms(ctx context.Context) (string, error)
	SetTerms(ctx context.Context, content string) error
}

// Commit is one atomic write produced by a state machine transition.
type Commit struct {
	// Session is written unless DropSession is set.
	Session model.Session
	// DropSession deletes the user's session instead of writing it.
	DropSession bool
	// Order, when set, is inserted; Order.CheckoutKey must be unique.
	Order *model.Order
	// Feedback, when set, is inserted.
	Feedback *model.Feedback
}

// CommitResult reports what the commit created.
type CommitResult struct {
	Order    *model.Order
	Feedback *model.Feedback
	// Replayed is true when an order with the same checkout key already
	// existed and was returned instead of inserting a duplicate.
	Replayed bool
}

// Committer applies a Commit so that either every part is persisted or none.
type Committer interface {
	Commit(ctx context.Context, c Commit) (CommitResult, error)
}

// Store is the full persistence surface of one engine.
type Store interface {
	Catalog() Catalog
	Sessions() Sessions
	Orders() Orders
	Users() Users
	Terms() Terms
	Committer
	Ping(ctx context.Context) error
	Close() error
}
