package fsm

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m3rciful/flowerbot/core/logger"
	"github.com/m3rciful/flowerbot/internal/model"
	"github.com/m3rciful/flowerbot/internal/storage"
)

// View is the catalog data the presenter needs to render a state.
type View struct {
	City     *model.City
	Cities   []model.City
	Products []model.Product
	Product  *model.Product
	// InCart is the quantity of Product already in the cart.
	InCart int
	Cart   []CartItem
}

// CartItem is a cart line resolved against the current catalog.
type CartItem struct {
	Line    model.CartLine
	Product model.Product
	// Missing is set when the product no longer exists.
	Missing bool
}

// Subtotal uses the current catalog price.
func (c CartItem) Subtotal() model.Money {
	return c.Product.Price.Times(c.Line.Quantity)
}

// loadView reads what the presenter needs for sess. Failures are logged and
// leave the corresponding part of the view empty.
func (m *Machine) loadView(ctx context.Context, sess model.Session) View {
	var v View
	warn := func(what string, err error) {
		logger.Warn(ctx, componentFSM, "view.load_failed",
			slog.Int64("user_id", sess.UserID),
			slog.String("op", what),
			slog.String("err", err.Error()),
		)
	}

	if sess.HasCity() {
		city, err := m.catalog.GetCity(ctx, sess.CityID)
		if err == nil {
			v.City = &city
		} else if !errors.Is(err, storage.ErrNotFound) {
			warn("city", err)
		}
	}

	switch sess.State {
	case model.StateIdle:
		cities, err := m.catalog.ListCities(ctx)
		if err != nil {
			warn("cities", err)
		}
		v.Cities = cities
	case model.StateCityChosen, model.StateBrowsing:
		products, err := m.catalog.ListProducts(ctx, sess.CityID)
		if err != nil {
			warn("products", err)
		}
		for _, p := range products {
			if p.Available {
				v.Products = append(v.Products, p)
			}
		}
	case model.StateCartReview, model.StateAwaitingConfirmation:
		v.Cart = m.resolveCart(ctx, sess, warn)
	}
	return v
}

func (m *Machine) resolveCart(ctx context.Context, sess model.Session, warn func(string, error)) []CartItem {
	items := make([]CartItem, 0, len(sess.Cart))
	for _, line := range sess.Cart {
		item := CartItem{Line: line}
		prod, err := m.catalog.GetProduct(ctx, line.ProductID)
		switch {
		case err == nil:
			item.Product = prod
		case errors.Is(err, storage.ErrNotFound):
			item.Missing = true
		default:
			warn("product", err)
			item.Missing = true
		}
		items = append(items, item)
	}
	return items
}

// CartTotal sums the resolved items that still exist.
func CartTotal(items []CartItem) model.Money {
	var total model.Money
	for _, it := range items {
		if !it.Missing {
			total += it.Subtotal()
		}
	}
	return total
}
