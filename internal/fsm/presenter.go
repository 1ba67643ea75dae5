package fsm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/m3rciful/flowerbot/internal/model"
)

// Callback uniques understood by the transport adapter.
const (
	CallbackCities   = "cities"
	CallbackCity     = "city"    // payload: city id
	CallbackProduct  = "product" // payload: product id
	CallbackAdd      = "add"     // payload: product id|quantity
	CallbackBuyNow   = "buy"     // payload: product id
	CallbackCart     = "cart"
	CallbackRemove   = "remove" // payload: product id
	CallbackClear    = "clear"
	CallbackConfirm  = "confirm"
	CallbackCancel   = "cancel"
	CallbackFeedback = "feedback"
	CallbackReset    = "reset"
)

// Option is one button of an outbound action.
type Option struct {
	Label   string
	Unique  string
	Payload string
}

// Action is one outbound message for the transport.
type Action struct {
	UserID  int64
	Text    string
	Options [][]Option
}

// PresenterOptions configures texts.
type PresenterOptions struct {
	Currency     string
	RequirePhone bool
	RequireArea  bool
	MaxQuantity  int
}

// Presenter turns outcomes and errors into user-facing actions.
type Presenter struct {
	currency     string
	requirePhone bool
	requireArea  bool
	maxQuantity  int
}

// NewPresenter builds a Presenter; Currency defaults to UAH.
func NewPresenter(opts PresenterOptions) *Presenter {
	if opts.Currency == "" {
		opts.Currency = "UAH"
	}
	if opts.MaxQuantity <= 0 {
		opts.MaxQuantity = defaultMaxQuantity
	}
	return &Presenter{
		currency:     opts.Currency,
		requirePhone: opts.RequirePhone,
		requireArea:  opts.RequireArea,
		maxQuantity:  opts.MaxQuantity,
	}
}

// Price formats an amount with the shop currency.
func (p *Presenter) Price(m model.Money) string {
	return m.String() + " " + p.currency
}

// MainMenu is sent after /start.
func (p *Presenter) MainMenu(userID int64, greeting string) Action {
	text := "Welcome to the flower shop!"
	if greeting != "" {
		text = fmt.Sprintf("Hi, %s! Welcome to the flower shop.", greeting)
	}
	return Action{
		UserID: userID,
		Text:   text + "\nWhat would you like to do?",
		Options: [][]Option{
			{{Label: "💐 Order flowers", Unique: CallbackCities}},
			{{Label: "🛒 Cart", Unique: CallbackCart}, {Label: "✍️ Feedback", Unique: CallbackFeedback}},
		},
	}
}

// Render builds the actions for a successful event.
func (p *Presenter) Render(ev Event, out Outcome, v View) []Action {
	sess := out.Session
	act := Action{UserID: ev.UserID}

	switch ev.Type {
	case EventShowCities:
		act.Text, act.Options = p.cityList(v.Cities)
		return []Action{act}
	case EventShowProduct:
		act.Text, act.Options = p.productCard(v)
		return []Action{act}
	}

	var lead string
	switch ev.Type {
	case EventAddToCart:
		lead = fmt.Sprintf("Added to cart: %d pcs.", ev.Quantity)
		for _, prod := range v.Products {
			if prod.ID == ev.ProductID {
				lead = fmt.Sprintf("Added to cart: %s × %d.", prod.Name, ev.Quantity)
				break
			}
		}
	case EventRemoveFromCart:
		lead = "Removed from cart."
	case EventClearCart:
		lead = "Cart cleared."
	case EventSetContact:
		lead = "Phone number saved: " + sess.Phone
	case EventSetArea:
		lead = "Delivery area saved."
	case EventSetComment:
		lead = "Comment saved."
		if sess.Comment == "" {
			lead = "Comment removed."
		}
	case EventConfirm:
		if out.Requoted {
			lead = "Some bouquets changed since you reviewed your order. Please check the new total."
		}
	case EventReset:
		lead = "Everything is reset."
	case EventSubmitFeedback:
		lead = "Thank you for your feedback! 💐"
	}

	var body string
	switch sess.State {
	case model.StateIdle:
		body, act.Options = p.cityList(v.Cities)
	case model.StateCityChosen, model.StateBrowsing:
		body, act.Options = p.productList(sess, v)
	case model.StateCartReview:
		body, act.Options = p.cartReview(v)
	case model.StateAwaitingConfirmation:
		body, act.Options = p.checkout(sess, v)
	case model.StateOrderPlaced:
		body, act.Options = p.orderPlaced(out)
	case model.StateAwaitingFeedback:
		body = "Please write your feedback in one message."
		act.Options = [][]Option{{{Label: "Skip", Unique: CallbackReset}}}
	}
	act.Text = joinNonEmpty(lead, body)
	return []Action{act}
}

// Failure builds the actions for an error returned by Handle.
func (p *Presenter) Failure(ev Event, sess model.Session, err error) []Action {
	act := Action{UserID: ev.UserID}
	switch CodeOf(err) {
	case CodeInvalidCity:
		act.Text = "This city is not available. Please choose another one."
		act.Options = [][]Option{{{Label: "Choose a city", Unique: CallbackCities}}}
	case CodeProductUnavailable:
		act.Text = "Sorry, this bouquet is no longer available."
		if in(sess.State, model.StateCartReview, model.StateAwaitingConfirmation) {
			act.Text += " Please remove it from the cart."
			act.Options = [][]Option{{{Label: "🛒 Cart", Unique: CallbackCart}}}
		} else if sess.HasCity() {
			act.Options = [][]Option{{{Label: "Back to catalog", Unique: CallbackCity, Payload: formatID(sess.CityID)}}}
		}
	case CodeEmptyCart:
		act.Text = "Your cart is empty."
		if sess.HasCity() {
			act.Options = [][]Option{{{Label: "Back to catalog", Unique: CallbackCity, Payload: formatID(sess.CityID)}}}
		} else {
			act.Options = [][]Option{{{Label: "Choose a city", Unique: CallbackCities}}}
		}
	case CodeCartCityMismatch:
		act.Text = "Your cart holds bouquets from another city. Clear the cart before switching cities."
		act.Options = [][]Option{{
			{Label: "🛒 Cart", Unique: CallbackCart},
			{Label: "Clear cart", Unique: CallbackClear},
		}}
	case CodeInvalidQuantity:
		act.Text = fmt.Sprintf("Please choose a quantity between 1 and %d.", p.maxQuantity)
	case CodeInvalidPhone:
		act.Text = "That does not look like a phone number. Use 0XXXXXXXXX or +380XXXXXXXXX."
	case CodeMissingContact:
		act.Text = "Please send your phone number before placing the order."
	case CodeInvalidArea:
		act.Text = "Please send the delivery area as text, for example a district or street."
	case CodeMissingArea:
		act.Text = "Please send the delivery area before placing the order."
	case CodeEmptyFeedback:
		act.Text = "Feedback cannot be empty. Please write a few words."
	case CodeStorageFailure:
		act.Text = "Something went wrong on our side. Please try again later."
	case CodeCancelled:
		act.Text = "We are still working on your previous request. Please try again in a moment."
	default:
		act.Text = "This action is not available right now."
		if ev.Type == EventRequestFeedback {
			act.Text = "Please finish or clear your cart before leaving feedback."
		}
		act.Options = [][]Option{{
			{Label: "Main menu", Unique: CallbackCities},
			{Label: "Start over", Unique: CallbackReset},
		}}
	}
	return []Action{act}
}

func (p *Presenter) cityList(cities []model.City) (string, [][]Option) {
	if len(cities) == 0 {
		return "No cities are available yet. Please come back later.", nil
	}
	rows := make([][]Option, 0, len(cities))
	for _, c := range cities {
		rows = append(rows, []Option{{Label: c.Name, Unique: CallbackCity, Payload: formatID(c.ID)}})
	}
	return "Choose your city:", rows
}

func (p *Presenter) productList(sess model.Session, v View) (string, [][]Option) {
	city := "your city"
	if v.City != nil {
		city = v.City.Name
	}
	var rows [][]Option
	text := fmt.Sprintf("Bouquets in %s:", city)
	if len(v.Products) == 0 {
		text = fmt.Sprintf("There are no bouquets in %s right now.", city)
	}
	for _, prod := range v.Products {
		rows = append(rows, []Option{{
			Label:   fmt.Sprintf("%s · %s", prod.Name, p.Price(prod.Price)),
			Unique:  CallbackProduct,
			Payload: formatID(prod.ID),
		}})
	}
	nav := []Option{{Label: "Change city", Unique: CallbackCities}}
	if !sess.CartEmpty() {
		nav = append(nav, Option{Label: fmt.Sprintf("🛒 Cart (%d)", sess.CartUnits()), Unique: CallbackCart})
	}
	return text, append(rows, nav)
}

func (p *Presenter) productCard(v View) (string, [][]Option) {
	if v.Product == nil {
		return "Sorry, this bouquet is no longer available.", nil
	}
	prod := v.Product
	var b strings.Builder
	b.WriteString(prod.Name)
	if prod.Description != "" {
		b.WriteString("\n\n" + prod.Description)
	}
	b.WriteString("\n\nPrice: " + p.Price(prod.Price))
	if v.InCart > 0 {
		fmt.Fprintf(&b, "\nIn your cart: %d", v.InCart)
	}
	b.WriteString("\n\nHow many would you like?")

	var rows [][]Option
	var row []Option
	for q := 1; q <= p.maxQuantity; q++ {
		row = append(row, Option{Label: strconv.Itoa(q), Unique: CallbackAdd, Payload: formatID(prod.ID) + "|" + strconv.Itoa(q)})
		if len(row) == 5 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows,
		[]Option{{Label: "⚡ Buy now", Unique: CallbackBuyNow, Payload: formatID(prod.ID)}},
		[]Option{{Label: "Back", Unique: CallbackCity, Payload: formatID(prod.CityID)}},
	)
	return b.String(), rows
}

func (p *Presenter) cartLines(items []CartItem) string {
	var b strings.Builder
	for i, it := range items {
		if it.Missing {
			fmt.Fprintf(&b, "%d. (no longer available) × %d\n", i+1, it.Line.Quantity)
			continue
		}
		fmt.Fprintf(&b, "%d. %s × %d = %s\n", i+1, it.Product.Name, it.Line.Quantity, p.Price(it.Subtotal()))
	}
	fmt.Fprintf(&b, "\nTotal: %s", p.Price(CartTotal(items)))
	return b.String()
}

func (p *Presenter) cartReview(v View) (string, [][]Option) {
	if len(v.Cart) == 0 {
		return "Your cart is empty.", [][]Option{{{Label: "Continue shopping", Unique: CallbackCancel}}}
	}
	rows := make([][]Option, 0, len(v.Cart)+2)
	for _, it := range v.Cart {
		label := "✖ " + it.Product.Name
		if it.Missing {
			label = "✖ unavailable item"
		}
		rows = append(rows, []Option{{Label: label, Unique: CallbackRemove, Payload: formatID(it.Line.ProductID)}})
	}
	rows = append(rows,
		[]Option{{Label: "✅ Checkout", Unique: CallbackConfirm}},
		[]Option{
			{Label: "Continue shopping", Unique: CallbackCancel},
			{Label: "Clear cart", Unique: CallbackClear},
		},
	)
	return "Your cart:\n\n" + p.cartLines(v.Cart), rows
}

func (p *Presenter) checkout(sess model.Session, v View) (string, [][]Option) {
	var b strings.Builder
	b.WriteString("Please check your order")
	if v.City != nil {
		b.WriteString(" for " + v.City.Name)
	}
	b.WriteString(":\n\n" + p.cartLines(v.Cart))
	if sess.Phone != "" {
		b.WriteString("\nPhone: " + sess.Phone)
	}
	if sess.Area != "" {
		b.WriteString("\nDelivery area: " + sess.Area)
	}
	if sess.Comment != "" {
		b.WriteString("\nComment: " + sess.Comment)
	}
	switch {
	case sess.Phone == "" && p.requirePhone:
		b.WriteString("\n\nSend your phone number (0XXXXXXXXX or +380XXXXXXXXX) to continue.")
	case sess.Area == "" && p.requireArea:
		b.WriteString("\n\nWhere should we deliver? Send the area or street.")
	case sess.Area == "":
		b.WriteString("\n\nYou may send the delivery area, or place the order now.")
	case sess.Comment == "":
		b.WriteString("\n\nAny wishes for the courier? Send a comment, or place the order now.")
	}
	return b.String(), [][]Option{
		{{Label: "✅ Place order", Unique: CallbackConfirm}},
		{{Label: "Back to cart", Unique: CallbackCancel}},
	}
}

func (p *Presenter) orderPlaced(out Outcome) (string, [][]Option) {
	opts := [][]Option{
		{{Label: "✍️ Leave feedback", Unique: CallbackFeedback}},
		{{Label: "💐 New order", Unique: CallbackCities}},
	}
	if out.Order == nil {
		return "Your order is placed.", opts
	}
	o := out.Order
	if out.Replayed {
		return fmt.Sprintf("Order %s is already placed. Total: %s.", o.Number(), p.Price(o.Total)), opts
	}
	return fmt.Sprintf("Thank you! Order %s is placed.\nTotal: %s\nA manager will contact you soon.",
		o.Number(), p.Price(o.Total)), opts
}

func formatID(v int64) string {
	return strconv.FormatInt(v, 10)
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n\n")
}
