package model

import "time"

// State identifies a step of the shopping conversation.
type State string

const (
	StateIdle                 State = "idle"
	StateCityChosen           State = "city_chosen"
	StateBrowsing             State = "browsing"
	StateCartReview           State = "cart_review"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateOrderPlaced          State = "order_placed"
	StateAwaitingFeedback     State = "awaiting_feedback"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateCityChosen, StateBrowsing, StateCartReview,
		StateAwaitingConfirmation, StateOrderPlaced, StateAwaitingFeedback:
		return true
	}
	return false
}

// CartLine references a catalog product by id; prices are resolved at render
// and checkout time, never stored in the cart. Version is pinned while the
// user confirms the order and is zero otherwise.
type CartLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	Version   int   `json:"version,omitempty"`
}

// Session is the per-user conversational state.
type Session struct {
	UserID      int64      `json:"user_id"`
	State       State      `json:"state"`
	CityID      int64      `json:"city_id,omitempty"`
	Cart        []CartLine `json:"cart,omitempty"`
	CheckoutKey string     `json:"checkout_key,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Area        string     `json:"area,omitempty"`
	Comment     string     `json:"comment,omitempty"`
	LastOrderID int64      `json:"last_order_id,omitempty"`
	LastUpdated time.Time  `json:"last_updated"`
}

// NewSession returns a fresh idle session for the user.
func NewSession(userID int64) Session {
	return Session{UserID: userID, State: StateIdle}
}

// Clone returns a deep copy so callers can mutate a candidate session without
// touching the stored one.
func (s Session) Clone() Session {
	out := s
	if s.Cart != nil {
		out.Cart = append([]CartLine(nil), s.Cart...)
	}
	return out
}

// HasCity reports whether a city has been selected.
func (s Session) HasCity() bool {
	return s.CityID != 0
}

// CartEmpty reports whether the cart holds no lines.
func (s Session) CartEmpty() bool {
	return len(s.Cart) == 0
}

// CartUnits returns the total number of items in the cart.
func (s Session) CartUnits() int {
	n := 0
	for _, l := range s.Cart {
		n += l.Quantity
	}
	return n
}

// Unpin clears the versions recorded at checkout.
func (s *Session) Unpin() {
	for i := range s.Cart {
		s.Cart[i].Version = 0
	}
}

// LineIndex returns the cart position of productID or -1.
func (s Session) LineIndex(productID int64) int {
	for i, l := range s.Cart {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}
