package bot

import (
	"context"
	"strings"
	"testing"

	"github.com/m3rciful/flowerbot/internal/fsm"
	"github.com/m3rciful/flowerbot/internal/model"
	"github.com/m3rciful/flowerbot/internal/notify"
)

func TestAdminCallbacksAreGuarded(t *testing.T) {
	h := newHarness(t, false)
	h.press(t, customerID, cbAdmCities, "")
	if !strings.Contains(h.rec.last(t).text, "administrators only") {
		t.Fatalf("reply = %q", h.rec.last(t).text)
	}
	h.command(t, customerID, "/admin")
	if !strings.Contains(h.rec.last(t).text, "administrators only") {
		t.Fatalf("command reply = %q", h.rec.last(t).text)
	}

	h.command(t, adminID, "/admin")
	if _, ok := hasButton(h.rec.last(t).markup, cbAdmCities); !ok {
		t.Fatalf("admin panel = %+v", h.rec.last(t))
	}
}

func TestAdminAddsCityWithCopiedProducts(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	h.press(t, adminID, cbAdmCityAdd, "")
	if data, ok := hasButton(h.rec.last(t).markup, cbAdmCityCopy); !ok || data != "0" {
		t.Fatalf("copy prompt = %+v", h.rec.last(t))
	}
	h.press(t, adminID, cbAdmCityCopy, formatID(h.city.ID))
	h.text(t, adminID, "  ")
	if !strings.Contains(h.rec.last(t).text, "Try again") {
		t.Fatalf("empty name reply = %q", h.rec.last(t).text)
	}
	h.text(t, adminID, "Lviv")

	cities, _ := h.store.Catalog().ListCities(ctx)
	var lviv model.City
	for _, c := range cities {
		if c.Name == "Lviv" {
			lviv = c
		}
	}
	if lviv.ID == 0 {
		t.Fatalf("cities = %+v", cities)
	}
	products, _ := h.store.Catalog().ListProducts(ctx, lviv.ID)
	if len(products) != 1 || products[0].Name != "Rose" || products[0].ID == h.rose.ID {
		t.Fatalf("copied products = %+v", products)
	}
	if h.bot.dialogs.InProgress(adminID) {
		t.Fatal("dialog must end after the city is created")
	}
}

func TestAdminProductDialog(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	h.press(t, adminID, cbAdmProductAdd, formatID(h.city.ID))
	h.text(t, adminID, "Tulip")
	h.text(t, adminID, "-")
	h.text(t, adminID, "abc")
	if !strings.Contains(h.rec.last(t).text, "Try again") {
		t.Fatalf("bad price reply = %q", h.rec.last(t).text)
	}
	h.text(t, adminID, "450")
	h.text(t, adminID, "-")

	products, _ := h.store.Catalog().ListProducts(ctx, h.city.ID)
	var tulip model.Product
	for _, p := range products {
		if p.Name == "Tulip" {
			tulip = p
		}
	}
	if tulip.ID == 0 || tulip.Price != 45000 || tulip.Description != "" || !tulip.Available {
		t.Fatalf("products = %+v", products)
	}

	h.press(t, adminID, cbAdmProdPrice, formatID(tulip.ID))
	h.text(t, adminID, "500,50")
	got, _ := h.store.Catalog().GetProduct(ctx, tulip.ID)
	if got.Price != 50050 || got.Version != tulip.Version+1 {
		t.Fatalf("after price edit = %+v", got)
	}

	h.press(t, adminID, cbAdmProdToggle, formatID(tulip.ID))
	got, _ = h.store.Catalog().GetProduct(ctx, tulip.ID)
	if got.Available {
		t.Fatal("toggle must hide the product")
	}

	h.press(t, adminID, cbAdmProdDelOK, formatID(tulip.ID))
	if _, err := h.store.Catalog().GetProduct(ctx, tulip.ID); err == nil {
		t.Fatal("product must be deleted")
	}
}

func TestAdminCancelEndsDialog(t *testing.T) {
	h := newHarness(t, false)
	h.press(t, adminID, cbAdmCityRename, formatID(h.city.ID))
	if !h.bot.dialogs.InProgress(adminID) {
		t.Fatal("rename must open a dialog")
	}
	h.press(t, adminID, cbAdmCancel, "cancel")
	if h.bot.dialogs.InProgress(adminID) {
		t.Fatal("cancel must close the dialog")
	}
}

func TestAdminSetsTermsAndListsOrders(t *testing.T) {
	h := newHarness(t, false)
	h.press(t, adminID, cbAdmTerms, "")
	if !strings.Contains(h.rec.last(t).text, "no terms yet") {
		t.Fatalf("terms prompt = %q", h.rec.last(t).text)
	}
	h.text(t, adminID, "Delivery within 24h.")
	terms, err := h.store.Terms().CurrentTerms(context.Background())
	if err != nil || terms != "Delivery within 24h." {
		t.Fatalf("terms = %q, %v", terms, err)
	}

	h.press(t, adminID, cbAdmOrders, "")
	if !strings.Contains(h.rec.last(t).text, "No orders") {
		t.Fatalf("orders = %q", h.rec.last(t).text)
	}
}

func placeOrder(t *testing.T, h *harness) model.Order {
	t.Helper()
	h.command(t, customerID, "/start")
	h.press(t, customerID, fsm.CallbackCity, formatID(h.city.ID))
	h.press(t, customerID, fsm.CallbackBuyNow, formatID(h.rose.ID))
	h.press(t, customerID, fsm.CallbackConfirm, "")
	h.press(t, customerID, fsm.CallbackConfirm, "")
	if len(h.notifier.orders) != 1 {
		t.Fatalf("orders = %d", len(h.notifier.orders))
	}
	return h.notifier.orders[0]
}

func TestManagerAcceptsOrder(t *testing.T) {
	h := newHarness(t, false)
	o := placeOrder(t, h)

	h.press(t, adminID, notify.CallbackAccept, formatID(o.ID))
	if !strings.Contains(h.rec.last(t).text, "message for the customer") {
		t.Fatalf("accept prompt = %q", h.rec.last(t).text)
	}
	h.text(t, adminID, "-")
	got, _ := h.store.Orders().GetOrder(context.Background(), o.ID)
	if got.Status != model.OrderAccepted || got.StatusNote != "" {
		t.Fatalf("order = %+v", got)
	}

	h.press(t, adminID, notify.CallbackAccept, formatID(o.ID))
	h.text(t, adminID, "-")
	if !strings.Contains(h.rec.last(t).text, "Failed") {
		t.Fatalf("second accept = %q", h.rec.last(t).text)
	}
}

func TestManagerRejectsOrderWithNote(t *testing.T) {
	h := newHarness(t, false)
	o := placeOrder(t, h)

	h.press(t, customerID, notify.CallbackReject, formatID(o.ID))
	if h.bot.dialogs.InProgress(customerID) {
		t.Fatal("customers cannot open the reject dialog")
	}

	h.press(t, adminID, notify.CallbackReject, formatID(o.ID))
	h.text(t, adminID, "Out of peonies")
	got, _ := h.store.Orders().GetOrder(context.Background(), o.ID)
	if got.Status != model.OrderCancelled || got.StatusNote != "Out of peonies" {
		t.Fatalf("order = %+v", got)
	}
}

func TestManagerAcceptsOrderWithMessage(t *testing.T) {
	h := newHarness(t, false)
	o := placeOrder(t, h)

	h.press(t, adminID, notify.CallbackAccept, formatID(o.ID))
	h.text(t, adminID, "Courier arrives at 5 pm")
	got, _ := h.store.Orders().GetOrder(context.Background(), o.ID)
	if got.Status != model.OrderAccepted || got.StatusNote != "Courier arrives at 5 pm" {
		t.Fatalf("order = %+v", got)
	}
	if h.bot.dialogs.InProgress(adminID) {
		t.Fatal("dialog must end after the decision")
	}
}

func TestAdminProductInSeveralCities(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	lviv, err := h.store.Catalog().CreateCity(ctx, "Lviv")
	if err != nil {
		t.Fatalf("city: %v", err)
	}

	h.press(t, adminID, cbAdmProductAdd, formatID(h.city.ID))
	h.text(t, adminID, "Tulip")
	h.text(t, adminID, "-")
	h.text(t, adminID, "450")
	h.text(t, adminID, "-")
	if _, ok := hasButton(h.rec.last(t).markup, cbAdmPickOK); !ok {
		t.Fatalf("city picker = %+v", h.rec.last(t))
	}
	h.text(t, adminID, "Lviv")
	if !strings.Contains(h.rec.last(t).text, "buttons") {
		t.Fatalf("typed reply = %q", h.rec.last(t).text)
	}
	h.press(t, adminID, cbAdmPickCity, formatID(lviv.ID))
	h.press(t, adminID, cbAdmPickOK, "")

	tulips := func(cityID int64) []model.Product {
		products, _ := h.store.Catalog().ListProducts(ctx, cityID)
		var out []model.Product
		for _, p := range products {
			if p.Name == "Tulip" {
				out = append(out, p)
			}
		}
		return out
	}
	kyivTulips, lvivTulips := tulips(h.city.ID), tulips(lviv.ID)
	if len(kyivTulips) != 1 || len(lvivTulips) != 1 || lvivTulips[0].Price != 45000 {
		t.Fatalf("kyiv=%+v lviv=%+v", kyivTulips, lvivTulips)
	}

	h.press(t, adminID, cbAdmProdDelAny, formatID(kyivTulips[0].ID))
	h.press(t, adminID, cbAdmPickAll, "")
	h.press(t, adminID, cbAdmPickOK, "")
	if !strings.Contains(h.rec.all(t), "Deleted Tulip in 2 cities") {
		t.Fatalf("delete replies = %q", h.rec.all(t))
	}
	if len(tulips(h.city.ID)) != 0 || len(tulips(lviv.ID)) != 0 {
		t.Fatal("tulips must be gone from both cities")
	}
	if _, err := h.store.Catalog().GetProduct(ctx, h.rose.ID); err != nil {
		t.Fatalf("rose must survive: %v", err)
	}
}

func TestExpiredDialogIsReported(t *testing.T) {
	h := newHarness(t, false)
	h.bot.dialogs.SetState(adminID, stRejectNote)
	h.text(t, adminID, "Out of stock")
	if !strings.Contains(h.rec.last(t).text, "expired") {
		t.Fatalf("reply = %q", h.rec.last(t).text)
	}
	if h.bot.dialogs.InProgress(adminID) {
		t.Fatal("expired dialog must be cleared")
	}

	h.press(t, adminID, cbAdmPickOK, "")
	if !strings.Contains(h.rec.last(t).text, "expired") {
		t.Fatalf("picker reply = %q", h.rec.last(t).text)
	}
}
