package fsm

import "github.com/m3rciful/flowerbot/internal/model"

// EventType names an inbound user intent.
type EventType string

const (
	EventCitySelected    EventType = "city_selected"
	EventAddToCart       EventType = "add_to_cart"
	EventRemoveFromCart  EventType = "remove_from_cart"
	EventClearCart       EventType = "clear_cart"
	EventViewCart        EventType = "view_cart"
	EventConfirm         EventType = "confirm"
	EventSetContact      EventType = "set_contact"
	EventSetArea         EventType = "set_area"
	EventSetComment      EventType = "set_comment"
	EventCancel          EventType = "cancel"
	EventRequestFeedback EventType = "request_feedback"
	EventSubmitFeedback  EventType = "submit_feedback"
	EventReset           EventType = "reset"

	// Read-only events render a view without touching the session.
	EventShowCities  EventType = "show_cities"
	EventShowProduct EventType = "show_product"
)

// Event is one inbound message from the transport. Only the fields relevant
// to Type are read.
type Event struct {
	UserID    int64
	Type      EventType
	CityID    int64
	ProductID int64
	Quantity  int
	Text      string
}

func (t EventType) readOnly() bool {
	return t == EventShowCities || t == EventShowProduct
}

// CitySelected builds a city_selected event.
func CitySelected(userID, cityID int64) Event {
	return Event{UserID: userID, Type: EventCitySelected, CityID: cityID}
}

// AddToCart builds an add_to_cart event.
func AddToCart(userID, productID int64, qty int) Event {
	return Event{UserID: userID, Type: EventAddToCart, ProductID: productID, Quantity: qty}
}

// RemoveFromCart builds a remove_from_cart event.
func RemoveFromCart(userID, productID int64) Event {
	return Event{UserID: userID, Type: EventRemoveFromCart, ProductID: productID}
}

// SetContact builds a set_contact event carrying a phone number.
func SetContact(userID int64, phone string) Event {
	return Event{UserID: userID, Type: EventSetContact, Text: phone}
}

// SetArea builds a set_area event carrying the delivery area.
func SetArea(userID int64, area string) Event {
	return Event{UserID: userID, Type: EventSetArea, Text: area}
}

// SetComment builds a set_comment event; "-" clears the comment.
func SetComment(userID int64, comment string) Event {
	return Event{UserID: userID, Type: EventSetComment, Text: comment}
}

// DetailEvent maps text typed at checkout to the delivery detail it fills:
// the phone first, then the area, then the comment. Anything that parses as
// a phone number replaces the stored one.
func DetailEvent(sess model.Session, requirePhone bool, text string) Event {
	if _, ok := NormalizePhone(text); ok || (requirePhone && sess.Phone == "") {
		return SetContact(sess.UserID, text)
	}
	if sess.Area == "" {
		return SetArea(sess.UserID, text)
	}
	return SetComment(sess.UserID, text)
}

// SubmitFeedback builds a submit_feedback event.
func SubmitFeedback(userID int64, text string) Event {
	return Event{UserID: userID, Type: EventSubmitFeedback, Text: text}
}

// ShowProduct builds a show_product event.
func ShowProduct(userID, productID int64) Event {
	return Event{UserID: userID, Type: EventShowProduct, ProductID: productID}
}

// Simple builds an event that carries no payload (view_cart, confirm, reset...).
func Simple(userID int64, t EventType) Event {
	return Event{UserID: userID, Type: t}
}
