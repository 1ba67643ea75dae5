package model

import (
	"fmt"
	"time"
)

// OrderStatus tracks an order after placement.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderAccepted  OrderStatus = "accepted"
	OrderCancelled OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderConfirmed, OrderCancelled},
	OrderConfirmed: {OrderAccepted, OrderCancelled},
}

// CanTransition reports whether an order may move from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// LineItem is a frozen copy of a cart line taken at checkout.
type LineItem struct {
	ProductID      int64  `db:"product_id" json:"product_id"`
	ProductName    string `db:"product_name" json:"product_name"`
	ProductVersion int    `db:"product_version" json:"product_version"`
	UnitPrice      Money  `db:"unit_price" json:"unit_price"`
	Quantity       int    `db:"quantity" json:"quantity"`
}

// Subtotal returns unit price times quantity.
func (li LineItem) Subtotal() Money {
	return li.UnitPrice.Times(li.Quantity)
}

// Order is created by the state machine on final confirmation.
type Order struct {
	ID          int64       `db:"id" json:"id"`
	UserID      int64       `db:"user_id" json:"user_id"`
	CityID      int64       `db:"city_id" json:"city_id"`
	CityName    string      `db:"city_name" json:"city_name"`
	CheckoutKey string      `db:"checkout_key" json:"checkout_key"`
	Phone       string      `db:"phone" json:"phone,omitempty"`
	Area        string      `db:"area" json:"area,omitempty"`
	Comment     string      `db:"comment" json:"comment,omitempty"`
	Items       []LineItem  `db:"-" json:"items"`
	Total       Money       `db:"total" json:"total"`
	Status      OrderStatus `db:"status" json:"status"`
	StatusNote  string      `db:"status_note" json:"status_note,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// ComputeTotal sums the line item subtotals.
func (o Order) ComputeTotal() Money {
	var total Money
	for _, li := range o.Items {
		total += li.Subtotal()
	}
	return total
}

// Clone deep-copies the order.
func (o Order) Clone() Order {
	out := o
	out.Items = append([]LineItem(nil), o.Items...)
	return out
}

// Number renders the public order number.
func (o Order) Number() string {
	return fmt.Sprintf("#%d", o.ID)
}

// Feedback is a free-text message left by a user, optionally about an order.
type Feedback struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	OrderID   int64     `db:"order_id" json:"order_id,omitempty"`
	Text      string    `db:"text" json:"text"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// User is a Telegram account that talked to the bot.
type User struct {
	ID            int64     `db:"id"`
	Username      string    `db:"username"`
	FirstName     string    `db:"first_name"`
	LastName      string    `db:"last_name"`
	AgreedToTerms bool      `db:"agreed_to_terms"`
	RegisteredAt  time.Time `db:"registered_at"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.LastName
	}
}
