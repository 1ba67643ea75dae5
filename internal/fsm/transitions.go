package fsm

import (
	"context"
	"errors"
	"strings"

	"github.com/m3rciful/flowerbot/internal/model"
	"github.com/m3rciful/flowerbot/internal/storage"
)

const (
	// maxFeedbackRunes caps stored feedback text.
	maxFeedbackRunes = 2000
	maxDetailRunes   = 200
	// skipDetail is typed to leave an optional detail empty.
	skipDetail = "-"
)

func in(s model.State, allowed ...model.State) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

// transition computes the next session for ev. sess is a private copy and
// may be modified. Nothing is written here.
func (m *Machine) transition(ctx context.Context, sess model.Session, ev Event) (step, error) {
	from := sess.State
	violation := func() (step, error) {
		return step{}, reject(CodeStateViolation, ev, string(from))
	}
	st := step{}

	switch ev.Type {
	case EventCitySelected:
		city, err := m.catalog.GetCity(ctx, ev.CityID)
		if err != nil {
			return step{}, catalogErr(ev, from, err, CodeInvalidCity)
		}
		if !sess.CartEmpty() && sess.CityID != city.ID {
			return step{}, reject(CodeCartCityMismatch, ev, string(from))
		}
		sess.CityID = city.ID
		sess.CheckoutKey = ""
		sess.Unpin()
		if sess.CartEmpty() {
			sess.State = model.StateCityChosen
		} else {
			sess.State = model.StateBrowsing
		}

	case EventAddToCart:
		if !in(from, model.StateCityChosen, model.StateBrowsing) {
			return violation()
		}
		if ev.Quantity < 1 || ev.Quantity > m.opts.MaxQuantity {
			return step{}, reject(CodeInvalidQuantity, ev, string(from))
		}
		prod, err := m.orderable(ctx, sess, ev, ev.ProductID)
		if err != nil {
			return step{}, err
		}
		if i := sess.LineIndex(prod.ID); i >= 0 {
			if sess.Cart[i].Quantity+ev.Quantity > m.opts.MaxLineQuantity {
				return step{}, reject(CodeInvalidQuantity, ev, string(from))
			}
			sess.Cart[i].Quantity += ev.Quantity
		} else {
			sess.Cart = append(sess.Cart, model.CartLine{ProductID: prod.ID, Quantity: ev.Quantity})
		}
		sess.State = model.StateBrowsing

	case EventRemoveFromCart:
		if !in(from, model.StateBrowsing, model.StateCartReview) {
			return violation()
		}
		if i := sess.LineIndex(ev.ProductID); i >= 0 {
			sess.Cart = append(sess.Cart[:i], sess.Cart[i+1:]...)
		}
		if sess.CartEmpty() {
			sess.Cart = nil
			if from == model.StateBrowsing {
				sess.State = model.StateCityChosen
			}
		}

	case EventClearCart:
		if !in(from, model.StateCityChosen, model.StateBrowsing, model.StateCartReview) {
			return violation()
		}
		sess.Cart = nil
		if from == model.StateBrowsing {
			sess.State = model.StateCityChosen
		}

	case EventViewCart:
		if !in(from, model.StateCityChosen, model.StateBrowsing, model.StateCartReview) {
			return violation()
		}
		if sess.CartEmpty() {
			return step{}, reject(CodeEmptyCart, ev, string(from))
		}
		sess.State = model.StateCartReview

	case EventConfirm:
		switch from {
		case model.StateBrowsing, model.StateCartReview:
			if sess.CartEmpty() {
				return step{}, reject(CodeEmptyCart, ev, string(from))
			}
			items, err := m.snapshot(ctx, sess, ev)
			if err != nil {
				return step{}, err
			}
			for i := range sess.Cart {
				sess.Cart[i].Version = items[i].ProductVersion
			}
			sess.State = model.StateAwaitingConfirmation
			sess.CheckoutKey = m.newKey()
		case model.StateAwaitingConfirmation:
			if m.opts.RequirePhone && sess.Phone == "" {
				return step{}, reject(CodeMissingContact, ev, string(from))
			}
			if m.opts.RequireArea && sess.Area == "" {
				return step{}, reject(CodeMissingArea, ev, string(from))
			}
			order, err := m.buildOrder(ctx, sess, ev)
			if err != nil {
				return step{}, err
			}
			if changed(sess.Cart, order.Items) {
				// The catalog moved under the user; show the new total
				// instead of charging it.
				sess.State = model.StateCartReview
				sess.CheckoutKey = ""
				sess.Unpin()
				st.requoted = true
				break
			}
			st.order = &order
			sess.State = model.StateOrderPlaced
			sess.Cart = nil
			sess.Area = ""
			sess.Comment = ""
		case model.StateOrderPlaced:
			order, err := m.orders.GetOrder(ctx, sess.LastOrderID)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return violation()
				}
				return step{}, storageFailure(ev, string(from), err)
			}
			st.replay = &order
		default:
			return violation()
		}

	case EventSetContact:
		if from != model.StateAwaitingConfirmation {
			return violation()
		}
		phone, ok := NormalizePhone(ev.Text)
		if !ok {
			return step{}, reject(CodeInvalidPhone, ev, string(from))
		}
		sess.Phone = phone

	case EventSetArea:
		if from != model.StateAwaitingConfirmation {
			return violation()
		}
		area := clip(strings.TrimSpace(ev.Text), maxDetailRunes)
		if area == "" || area == skipDetail {
			return step{}, reject(CodeInvalidArea, ev, string(from))
		}
		sess.Area = area

	case EventSetComment:
		if from != model.StateAwaitingConfirmation {
			return violation()
		}
		comment := clip(strings.TrimSpace(ev.Text), maxDetailRunes)
		if comment == skipDetail {
			comment = ""
		}
		sess.Comment = comment

	case EventCancel:
		switch from {
		case model.StateCartReview:
			if sess.CartEmpty() {
				sess.State = model.StateCityChosen
			} else {
				sess.State = model.StateBrowsing
			}
		case model.StateAwaitingConfirmation:
			sess.State = model.StateCartReview
			sess.CheckoutKey = ""
			sess.Unpin()
		default:
			return violation()
		}

	case EventRequestFeedback:
		switch from {
		case model.StateOrderPlaced:
		case model.StateIdle, model.StateCityChosen:
			// General feedback, not about an order.
			sess.LastOrderID = 0
		default:
			return violation()
		}
		sess.State = model.StateAwaitingFeedback

	case EventSubmitFeedback:
		if from != model.StateAwaitingFeedback {
			return violation()
		}
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			return step{}, reject(CodeEmptyFeedback, ev, string(from))
		}
		text = clip(text, maxFeedbackRunes)
		st.feedback = &model.Feedback{
			UserID:    sess.UserID,
			OrderID:   sess.LastOrderID,
			Text:      text,
			CreatedAt: m.now(),
		}
		st.drop = true
		sess = model.NewSession(sess.UserID)

	case EventReset:
		st.drop = true
		sess = model.NewSession(sess.UserID)

	default:
		return violation()
	}

	st.session = sess
	return st, nil
}

func clip(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}

// changed reports whether a product was edited after its version was pinned
// at checkout. Unpinned lines are not compared.
func changed(cart []model.CartLine, items []model.LineItem) bool {
	for i, line := range cart {
		if line.Version != 0 && line.Version != items[i].ProductVersion {
			return true
		}
	}
	return false
}

// orderable loads a product and checks it may be put into sess's cart.
func (m *Machine) orderable(ctx context.Context, sess model.Session, ev Event, productID int64) (model.Product, error) {
	prod, err := m.catalog.GetProduct(ctx, productID)
	if err != nil {
		e := catalogErr(ev, sess.State, err, CodeProductUnavailable)
		e.ProductID = productID
		return model.Product{}, e
	}
	if prod.CityID != sess.CityID || !prod.Available {
		e := reject(CodeProductUnavailable, ev, string(sess.State))
		e.ProductID = productID
		return model.Product{}, e
	}
	return prod, nil
}

// snapshot revalidates every cart line against the catalog and freezes it.
func (m *Machine) snapshot(ctx context.Context, sess model.Session, ev Event) ([]model.LineItem, error) {
	items := make([]model.LineItem, 0, len(sess.Cart))
	for _, line := range sess.Cart {
		prod, err := m.orderable(ctx, sess, ev, line.ProductID)
		if err != nil {
			return nil, err
		}
		items = append(items, model.LineItem{
			ProductID:      prod.ID,
			ProductName:    prod.Name,
			ProductVersion: prod.Version,
			UnitPrice:      prod.Price,
			Quantity:       line.Quantity,
		})
	}
	return items, nil
}

func (m *Machine) buildOrder(ctx context.Context, sess model.Session, ev Event) (model.Order, error) {
	city, err := m.catalog.GetCity(ctx, sess.CityID)
	if err != nil {
		return model.Order{}, catalogErr(ev, sess.State, err, CodeInvalidCity)
	}
	items, err := m.snapshot(ctx, sess, ev)
	if err != nil {
		return model.Order{}, err
	}
	now := m.now()
	order := model.Order{
		UserID:      sess.UserID,
		CityID:      city.ID,
		CityName:    city.Name,
		CheckoutKey: sess.CheckoutKey,
		Phone:       sess.Phone,
		Area:        sess.Area,
		Comment:     sess.Comment,
		Items:       items,
		Status:      model.OrderConfirmed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if order.CheckoutKey == "" {
		order.CheckoutKey = m.newKey()
	}
	order.Total = order.ComputeTotal()
	return order, nil
}

// inspect serves the read-only events.
func (m *Machine) inspect(ctx context.Context, sess model.Session, ev Event) (View, error) {
	switch ev.Type {
	case EventShowCities:
		cities, err := m.catalog.ListCities(ctx)
		if err != nil {
			return View{}, storageFailure(ev, string(sess.State), err)
		}
		return View{Cities: cities}, nil
	case EventShowProduct:
		if !in(sess.State, model.StateCityChosen, model.StateBrowsing) {
			return View{}, reject(CodeStateViolation, ev, string(sess.State))
		}
		prod, err := m.orderable(ctx, sess, ev, ev.ProductID)
		if err != nil {
			return View{}, err
		}
		v := View{Product: &prod}
		if i := sess.LineIndex(prod.ID); i >= 0 {
			v.InCart = sess.Cart[i].Quantity
		}
		return v, nil
	}
	return View{}, reject(CodeStateViolation, ev, string(sess.State))
}
