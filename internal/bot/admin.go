package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/m3rciful/flowerbot/core/logger"
	"github.com/m3rciful/flowerbot/core/telegram/callbacks"
	"github.com/m3rciful/flowerbot/core/telegram/helpers"
	"github.com/m3rciful/flowerbot/core/telegram/keyboard"
	"github.com/m3rciful/flowerbot/core/telegram/state"
	"github.com/m3rciful/flowerbot/internal/admin"
	"github.com/m3rciful/flowerbot/internal/model"
	"github.com/m3rciful/flowerbot/internal/notify"
	"github.com/m3rciful/flowerbot/internal/storage"

	tele "gopkg.in/telebot.v4"
)

// Admin callback keys. Payloads carry a city, product or order id.
const (
	cbAdmMenu       = "adm_menu"
	cbAdmCities     = "adm_cities"
	cbAdmCity       = "adm_city"
	cbAdmCityAdd    = "adm_city_add"
	cbAdmCityCopy   = "adm_city_copy"
	cbAdmCityRename = "adm_city_rename"
	cbAdmCityDelete = "adm_city_del"
	cbAdmCityDelOK  = "adm_city_del_ok"
	cbAdmProduct    = "adm_prod"
	cbAdmProductAdd = "adm_prod_add"
	cbAdmProdName   = "adm_prod_name"
	cbAdmProdDesc   = "adm_prod_desc"
	cbAdmProdPrice  = "adm_prod_price"
	cbAdmProdToggle = "adm_prod_toggle"
	cbAdmProdDelete = "adm_prod_del"
	cbAdmProdDelOK  = "adm_prod_del_ok"
	cbAdmProdDelAny = "adm_prod_del_many"
	cbAdmPickCity   = "adm_pick_city"
	cbAdmPickAll    = "adm_pick_all"
	cbAdmPickOK     = "adm_pick_ok"
	cbAdmTerms      = "adm_terms"
	cbAdmOrders     = "adm_orders"
	cbAdmCancel     = "adm_cancel"
)

const recentOrderLimit = 10

// Dialog steps.
const (
	stCityName     state.State = "admin.city_name"
	stCityRename   state.State = "admin.city_rename"
	stProductName  state.State = "admin.product_name"
	stProductDesc  state.State = "admin.product_desc"
	stProductPrice state.State = "admin.product_price"
	stProductPhoto state.State = "admin.product_photo"
	stEditName     state.State = "admin.edit_name"
	stEditDesc     state.State = "admin.edit_desc"
	stEditPrice    state.State = "admin.edit_price"
	stTerms        state.State = "admin.terms"
	stRejectNote   state.State = "admin.reject_note"
	stAcceptNote   state.State = "admin.accept_note"
	stPickCities   state.State = "admin.pick_cities"
)

// Temp keys of the dialog scratch data.
const (
	tmpCity     = "city_id"
	tmpCopyFrom = "copy_from"
	tmpProduct  = "product_id"
	tmpOrder    = "order_id"
	tmpName     = "name"
	tmpDesc     = "description"
	tmpPrice    = "price"
	tmpPhoto    = "photo"
	tmpPick     = "picked"
	tmpPickFor  = "pick_for"
)

// What the city picker is collecting cities for.
const (
	pickCreate = "create"
	pickDelete = "delete"
)

// skipInput marks an optional dialog answer as empty.
const skipInput = "-"

func (b *Bot) adminCallbacks() map[string]tele.HandlerFunc {
	return map[string]tele.HandlerFunc{
		cbAdmMenu:             b.onAdmin,
		cbAdmCities:           b.admCities,
		cbAdmCity:             b.admCity,
		cbAdmCityAdd:          b.admCityAdd,
		cbAdmCityCopy:         b.admCityCopy,
		cbAdmCityRename:       b.withID(tmpCity, stCityRename, "Send the new city name."),
		cbAdmCityDelete:       b.admCityDelete,
		cbAdmCityDelOK:        b.admCityDeleteConfirmed,
		cbAdmProduct:          b.admProduct,
		cbAdmProductAdd:       b.withID(tmpCity, stProductName, "Send the bouquet name."),
		cbAdmProdName:         b.withID(tmpProduct, stEditName, "Send the new bouquet name."),
		cbAdmProdDesc:         b.withID(tmpProduct, stEditDesc, "Send the new description, or - to clear it."),
		cbAdmProdPrice:        b.withID(tmpProduct, stEditPrice, "Send the new price, e.g. 450 or 450.50."),
		cbAdmProdToggle:       b.admProductToggle,
		cbAdmProdDelete:       b.admProductDelete,
		cbAdmProdDelOK:        b.admProductDeleteConfirmed,
		cbAdmProdDelAny:       b.admProductDeleteMany,
		cbAdmPickCity:         b.admPickCity,
		cbAdmPickAll:          b.admPickAll,
		cbAdmPickOK:           b.admPickDone,
		cbAdmTerms:            b.admTerms,
		cbAdmOrders:           b.admOrders,
		cbAdmCancel:           b.admCancel,
		notify.CallbackAccept: b.withID(tmpOrder, stAcceptNote, "Send a message for the customer, or - for the default text."),
		notify.CallbackReject: b.withID(tmpOrder, stRejectNote, "Send the reason for rejecting the order, or - to skip."),
	}
}

// adminKeys lists every callback that requires an admin.
func (b *Bot) adminKeys() []string {
	if b.admin == nil {
		return nil
	}
	keys := make([]string, 0, 24)
	for k := range b.adminCallbacks() {
		keys = append(keys, k)
	}
	return keys
}

func (b *Bot) registerDialogs() {
	steps := map[state.State]func(context.Context, tele.Context, int64, string) error{
		stCityName:     b.stepCityName,
		stCityRename:   b.stepCityRename,
		stProductName:  b.stepProductName,
		stProductDesc:  b.stepProductDesc,
		stProductPrice: b.stepProductPrice,
		stProductPhoto: b.stepProductPhoto,
		stEditName:     b.stepEditName,
		stEditDesc:     b.stepEditDesc,
		stEditPrice:    b.stepEditPrice,
		stTerms:        b.stepTerms,
		stRejectNote:   b.stepRejectNote,
		stAcceptNote:   b.stepAcceptNote,
		stPickCities:   b.stepPickCities,
	}
	for st, fn := range steps {
		b.dialogs.Handle(st, b.step(fn))
	}
}

// step adapts a dialog handler; only admins can be inside an admin dialog.
func (b *Bot) step(fn func(context.Context, tele.Context, int64, string) error) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}
		if !b.isAdmin(sender.ID) {
			b.dialogs.Clear(sender.ID)
			return b.denyAdmin(c)
		}
		ctx := helpers.BuildContext(c)
		return fn(ctx, c, sender.ID, strings.TrimSpace(c.Text()))
	}
}

func (b *Bot) onAdmin(c tele.Context) error {
	b.dialogs.Clear(c.Sender().ID)
	rm := keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{{Text: "🏙 Cities & bouquets", Unique: cbAdmCities}},
		[]keyboard.InlineBtn{{Text: "📦 Recent orders", Unique: cbAdmOrders}, {Text: "📄 Terms", Unique: cbAdmTerms}},
	)
	return b.say(c, "Admin panel", rm)
}

func (b *Bot) admCancel(c tele.Context) error {
	b.dialogs.Clear(c.Sender().ID)
	return b.say(c, "Cancelled.", backToMenu())
}

func backToMenu() *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{{Text: "⬅️ Admin panel", Unique: cbAdmMenu}})
}

// expired ends a dialog whose scratch data is gone.
func (b *Bot) expired(c tele.Context, user int64) error {
	b.dialogs.Clear(user)
	return b.say(c, "This dialog has expired. Please start again.", backToMenu())
}

// fail reports a service error to the admin and logs it.
func (b *Bot) fail(ctx context.Context, c tele.Context, op string, err error) error {
	logger.Warn(ctx, componentTG, "admin."+op,
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
	)
	return b.say(c, "Failed: "+admin.Describe(err), backToMenu())
}

// withID starts a dialog step keeping the callback id under key.
func (b *Bot) withID(key string, st state.State, prompt string) tele.HandlerFunc {
	return func(c tele.Context) error {
		id, err := callbacks.PayloadInt64(c)
		if err != nil {
			return b.UnknownCallback()(c)
		}
		user := c.Sender().ID
		b.dialogs.Clear(user)
		b.dialogs.SetTemp(user, key, id)
		b.dialogs.SetState(user, st)
		return b.say(c, prompt, keyboard.SingleCancelMarkup(cbAdmCancel))
	}
}

func (b *Bot) admCities(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	cities, err := b.admin.Cities(ctx)
	if err != nil {
		return b.fail(ctx, c, "cities", err)
	}
	btns := make([]keyboard.InlineBtn, 0, len(cities)+2)
	for _, city := range cities {
		btns = append(btns, keyboard.InlineBtn{Text: city.Name, Unique: cbAdmCity, Data: formatID(city.ID)})
	}
	btns = append(btns,
		keyboard.InlineBtn{Text: "➕ Add city", Unique: cbAdmCityAdd},
		keyboard.InlineBtn{Text: "⬅️ Back", Unique: cbAdmMenu},
	)
	text := "Cities:"
	if len(cities) == 0 {
		text = "There are no cities yet."
	}
	return b.say(c, text, keyboard.InlineButtons(btns))
}

func (b *Bot) admCity(c tele.Context) error {
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return b.UnknownCallback()(c)
	}
	return b.showCity(c, id)
}

func (b *Bot) showCity(c tele.Context, id int64) error {
	ctx := helpers.BuildContext(c)
	cities, err := b.admin.Cities(ctx)
	if err != nil {
		return b.fail(ctx, c, "city", err)
	}
	var city *model.City
	for i := range cities {
		if cities[i].ID == id {
			city = &cities[i]
		}
	}
	if city == nil {
		return b.say(c, "This city no longer exists.", backToMenu())
	}
	products, err := b.admin.Products(ctx, id)
	if err != nil {
		return b.fail(ctx, c, "city", err)
	}
	rows := make([][]keyboard.InlineBtn, 0, len(products)+3)
	for _, p := range products {
		mark := "🟢"
		if !p.Available {
			mark = "⚪️"
		}
		rows = append(rows, []keyboard.InlineBtn{{
			Text:   fmt.Sprintf("%s %s · %s", mark, p.Name, b.presenter.Price(p.Price)),
			Unique: cbAdmProduct,
			Data:   formatID(p.ID),
		}})
	}
	cid := formatID(id)
	rows = append(rows,
		[]keyboard.InlineBtn{{Text: "➕ Add bouquet", Unique: cbAdmProductAdd, Data: cid}},
		[]keyboard.InlineBtn{
			{Text: "✏️ Rename", Unique: cbAdmCityRename, Data: cid},
			{Text: "🗑 Delete", Unique: cbAdmCityDelete, Data: cid},
		},
		[]keyboard.InlineBtn{{Text: "⬅️ Cities", Unique: cbAdmCities}},
	)
	return b.say(c, fmt.Sprintf("%s: %d bouquets", city.Name, len(products)), keyboard.InlineButtonsRows(rows...))
}

// admCityAdd offers to copy products from an existing city first.
func (b *Bot) admCityAdd(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	cities, err := b.admin.Cities(ctx)
	if err != nil {
		return b.fail(ctx, c, "city_add", err)
	}
	if len(cities) == 0 {
		return b.askCityName(c, 0)
	}
	btns := make([]keyboard.InlineBtn, 0, len(cities)+1)
	btns = append(btns, keyboard.InlineBtn{Text: "Start empty", Unique: cbAdmCityCopy, Data: "0"})
	for _, city := range cities {
		btns = append(btns, keyboard.InlineBtn{Text: "Copy from " + city.Name, Unique: cbAdmCityCopy, Data: formatID(city.ID)})
	}
	return b.say(c, "Copy bouquets from another city?", keyboard.InlineButtonsNPerRow(btns, 2))
}

func (b *Bot) admCityCopy(c tele.Context) error {
	from, err := callbacks.PayloadInt64(c)
	if err != nil {
		return b.UnknownCallback()(c)
	}
	return b.askCityName(c, from)
}

func (b *Bot) askCityName(c tele.Context, copyFrom int64) error {
	user := c.Sender().ID
	b.dialogs.Clear(user)
	b.dialogs.SetTemp(user, tmpCopyFrom, copyFrom)
	b.dialogs.SetState(user, stCityName)
	return b.say(c, "Send the name of the new city.", keyboard.SingleCancelMarkup(cbAdmCancel))
}

func (b *Bot) stepCityName(ctx context.Context, c tele.Context, user int64, text string) error {
	from, ok := b.dialogs.GetTempInt64(user, tmpCopyFrom)
	if !ok {
		return b.expired(c, user)
	}
	city, copied, err := b.admin.CreateCity(ctx, text, from)
	if admin.IsValidation(err) {
		return b.say(c, admin.Describe(err)+". Try again.", keyboard.SingleCancelMarkup(cbAdmCancel))
	}
	b.dialogs.Clear(user)
	if err != nil {
		return b.fail(ctx, c, "city_create", err)
	}
	msg := fmt.Sprintf("City %s added.", city.Name)
	if copied > 0 {
		msg += fmt.Sprintf(" Copied %d bouquets.", copied)
	}
	if err := b.say(c, msg); err != nil {
		return err
	}
	return b.showCity(c, city.ID)
}

func (b *Bot) stepCityRename(ctx context.Context, c tele.Context, user int64, text string) error {
	id, ok := b.dialogs.GetTempInt64(user, tmpCity)
	if !ok {
		return b.expired(c, user)
	}
	err := b.admin.RenameCity(ctx, id, text)
	if admin.IsValidation(err) {
		return b.say(c, admin.Describe(err)+". Try again.", keyboard.SingleCancelMarkup(cbAdmCancel))
	}
	b.dialogs.Clear(user)
	if err != nil {
		return b.fail(ctx, c, "city_rename", err)
	}
	return b.showCity(c, id)
}

func (b *Bot) admCityDelete(c tele.Context) error {
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return b.UnknownCallback()(c)
	}
	rm := keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "🗑 Yes, delete", Unique: cbAdmCityDelOK, Data: formatID(id)},
		{Text: "Keep", Unique: cbAdmCity, Data: formatID(id)},
	})
	return b.say(c, "Delete this city and all of its bouquets?", rm)
}

func (b *Bot) admCityDeleteConfirmed(c tele.Context) error {
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return b.UnknownCallback()(c)
	}
	ctx := helpers.BuildContext(c)
	if err := b.admin.DeleteCity(ctx, id); err != nil {
		return b.fail(ctx, c, "city_delete", err)
	}
	if err := b.say(c, "City deleted."); err != nil {
		return err
	}
	return b.admCities(c)
}

func (b *Bot) stepProductName(ctx context.Context, c tele.Context, user int64, text string) error {
	if text == "" {
		return b.say(c, "The name cannot be empty. Try again.", keyboard.SingleCancelMarkup(cbAdmCancel))
	}
	b.dialogs.SetTemp(user, tmpName, text)
	b.dialogs.SetState(user, stProductDesc)
	return b.say(c, "Send a description, or - to skip.", keyboard.SingleCancelMarkup(cbAdmCancel))
}

func (b *Bot) stepProductDesc(ctx context.Context, c tele.Context, user int64, text string) error {
	if text == skipInput {
		text = ""
	}
	b.dialogs.SetTemp(user, tmpDesc, text)
	b.dialogs.SetState(user, stProductPrice)
	return b.say(c, "Send the price, e.g. 450 or 450.50.", keyboard.SingleCancelMarkup(cbAdmCancel))
}

func (b *Bot) stepProductPrice(ctx context.Context, c tele.Context, user int64, text string) error {
	if _, err := admin.ParsePrice(text); err != nil {
		return b.say(c, admin.Describe(err)+". Try again.", keyboard.SingleCancelMarkup(cbAdmCancel))
	}
	b.dialogs.SetTemp(user, tmpPrice, text)
	b.dialogs.SetState(user, stProductPhoto)
	return b.say(c, "Send a photo of the bouquet, or - to skip.", keyboard.SingleCancelMarkup(cbAdmCancel))
}

func (b *Bot) stepProductPhoto(ctx context.Context, c tele.Context, user int64, text string) error {
	photo := ""
	if msg := c.Message(); msg != nil && msg.Photo != nil {
		photo = msg.Photo.FileID
	} else if text != skipInput {
		return b.say(c, "Please send a photo, or - to skip.", keyboard.SingleCancelMarkup(cbAdmCancel))
	}
	cityID, ok := b.dialogs.GetTempInt64(user, tmpCity)
	if !ok {
		return b.expired(c, user)
	}
	cities, err := b.admin.Cities(ctx)
	if err != nil {
		b.dialogs.Clear(user)
		return b.fail(ctx, c, "product_create", err)
	}
	if len(cities) > 1 {
		b.dialogs.SetTemp(user, tmpPhoto, photo)
		b.dialogs.SetTemp(user, tmpPickFor, pickCreate)
		b.dialogs.SetTemp(user, tmpPick, []int64{cityID})
		b.dialogs.SetState(user, stPickCities)
		return b.showPicker(ctx, c, user, []int64{cityID})
	}
	in := b.productInput(user)
	in.CityID = cityID
	in.Photo = photo
	b.dialogs.Clear(user)
	p, err := b.admin.CreateProduct(ctx, in)
	if err != nil {
		return b.fail(ctx, c, "product_create", err)
	}
	return b.showProduct(c, p.ID)
}

// productInput collects the answers of the add-bouquet dialog.
func (b *Bot) productInput(user int64) admin.ProductInput {
	return admin.ProductInput{
		Name:        b.tempString(user, tmpName),
		Description: b.tempString(user, tmpDesc),
		Price:       b.tempString(user, tmpPrice),
		Photo:       b.tempString(user, tmpPhoto),
	}
}

func (b *Bot) tempString(user int64, key string) string {
	v, _ := b.dialogs.GetTemp(user, key)
	s, _ := v.(string)
	return s
}

func (b *Bot) admProduct(c tele.Context) error {
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return b.UnknownCallback()(c)
	}
	return b.showProduct(c, id)
}

func (b *Bot) showProduct(c tele.Context, id int64) error {
	ctx := helpers.BuildContext(c)
	p, err := b.admin.Product(ctx, id)
	if err != nil {
		return b.fail(ctx, c, "product", err)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\nPrice: %s\n", p.Name, b.presenter.Price(p.Price))
	if p.Available {
		sb.WriteString("Available: yes\n")
	} else {
		sb.WriteString("Available: no\n")
	}
	fmt.Fprintf(&sb, "Version: %d", p.Version)
	if p.Description != "" {
		sb.WriteString("\n\n" + p.Description)
	}
	if p.Photo != "" {
		sb.WriteString("\n\n📷 photo attached")
	}
	pid := formatID(p.ID)
	toggle := "⏸ Hide"
	if !p.Available {
		toggle = "▶️ Show"
	}
	rm := keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			{Text: "💰 Price", Unique: cbAdmProdPrice, Data: pid},
			{Text: "✏️ Name", Unique: cbAdmProdName, Data: pid},
			{Text: "📝 Description", Unique: cbAdmProdDesc, Data: pid},
		},
		[]keyboard.InlineBtn{
			{Text: toggle, Unique: cbAdmProdToggle, Data: pid},
			{Text: "🗑 Delete", Unique: cbAdmProdDelete, Data: pid},
		},
		[]keyboard.InlineBtn{{Text: "⬅️ Back", Unique: cbAdmCity, Data: formatID(p.CityID)}},
	)
	return b.say(c, sb.String(), rm)
}

func (b *Bot) stepEditName(ctx context.Context, c tele.Context, user int64, text string) error {
	return b.editProduct(ctx, c, user, model.ProductPatch{Name: &text})
}

func (b *Bot) stepEditDesc(ctx context.Context, c tele.Context, user int64, text string) error {
	if text == skipInput {
		text = ""
	}
	return b.editProduct(ctx, c, user, model.ProductPatch{Description: &text})
}

func (b *Bot) stepEditPrice(ctx context.Context, c tele.Context, user int64, text string) error {
	price, err := admin.ParsePrice(text)
	if err != nil {
		return b.say(c, admin.Describe(err)+". Try again.", keyboard.SingleCancelMarkup(cbAdmCancel))
	}
	return b.editProduct(ctx, c, user, model.ProductPatch{Price: &price})
}

func (b *Bot) editProduct(ctx context.Context, c tele.Context, user int64, patch model.ProductPatch) error {
	id, ok := b.dialogs.GetTempInt64(user, tmpProduct)
	if !ok {
		return b.expired(c, user)
	}
	_, err := b.admin.UpdateProduct(ctx, id, patch)
	if admin.IsValidation(err) {
		return b.say(c, admin.Describe(err)+". Try again.", keyboard.SingleCancelMarkup(cbAdmCancel))
	}
	b.dialogs.Clear(user)
	if err != nil {
		return b.fail(ctx, c, "product_update", err)
	}
	return b.showProduct(c, id)
}

func (b *Bot) admProductToggle(c tele.Context) error {
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return b.UnknownCallback()(c)
	}
	ctx := helpers.BuildContext(c)
	if _, err := b.admin.ToggleAvailability(ctx, id); err != nil {
		return b.fail(ctx, c, "product_toggle", err)
	}
	return b.showProduct(c, id)
}

func (b *Bot) admProductDelete(c tele.Context) error {
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return b.UnknownCallback()(c)
	}
	rm := keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			{Text: "🗑 Yes, delete", Unique: cbAdmProdDelOK, Data: formatID(id)},
			{Text: "Keep", Unique: cbAdmProduct, Data: formatID(id)},
		},
		[]keyboard.InlineBtn{{Text: "🗑 Delete in several cities", Unique: cbAdmProdDelAny, Data: formatID(id)}},
	)
	return b.say(c, "Delete this bouquet?", rm)
}

func (b *Bot) admProductDeleteConfirmed(c tele.Context) error {
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return b.UnknownCallback()(c)
	}
	ctx := helpers.BuildContext(c)
	p, err := b.admin.Product(ctx, id)
	if err != nil {
		return b.fail(ctx, c, "product_delete", err)
	}
	if err := b.admin.DeleteProduct(ctx, id); err != nil {
		return b.fail(ctx, c, "product_delete", err)
	}
	if err := b.say(c, "Bouquet deleted."); err != nil {
		return err
	}
	return b.showCity(c, p.CityID)
}

// admProductDeleteMany opens the city picker for removing a bouquet by name.
func (b *Bot) admProductDeleteMany(c tele.Context) error {
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return b.UnknownCallback()(c)
	}
	ctx := helpers.BuildContext(c)
	p, err := b.admin.Product(ctx, id)
	if err != nil {
		return b.fail(ctx, c, "product_delete", err)
	}
	user := c.Sender().ID
	b.dialogs.Clear(user)
	b.dialogs.SetTemp(user, tmpName, p.Name)
	b.dialogs.SetTemp(user, tmpPickFor, pickDelete)
	b.dialogs.SetTemp(user, tmpPick, []int64{p.CityID})
	b.dialogs.SetState(user, stPickCities)
	return b.showPicker(ctx, c, user, []int64{p.CityID})
}

// showPicker renders every city as a toggle; picked ones are checked.
func (b *Bot) showPicker(ctx context.Context, c tele.Context, user int64, picked []int64) error {
	cities, err := b.admin.Cities(ctx)
	if err != nil {
		b.dialogs.Clear(user)
		return b.fail(ctx, c, "pick_cities", err)
	}
	rows := make([][]keyboard.InlineBtn, 0, len(cities)+2)
	for _, city := range cities {
		mark := "▫️"
		if slices.Contains(picked, city.ID) {
			mark = "✅"
		}
		rows = append(rows, []keyboard.InlineBtn{{Text: mark + " " + city.Name, Unique: cbAdmPickCity, Data: formatID(city.ID)}})
	}
	rows = append(rows,
		[]keyboard.InlineBtn{{Text: "All cities", Unique: cbAdmPickAll}, {Text: "✔️ Done", Unique: cbAdmPickOK}},
		[]keyboard.InlineBtn{{Text: "Cancel", Unique: cbAdmCancel}},
	)
	name := b.tempString(user, tmpName)
	title := fmt.Sprintf("Choose the cities for %s.", name)
	if b.tempString(user, tmpPickFor) == pickDelete {
		title = fmt.Sprintf("Choose the cities to delete %s from.", name)
	}
	return b.say(c, title, keyboard.InlineButtonsRows(rows...))
}

// picked returns the picker selection of user, or false outside the picker.
func (b *Bot) picked(user int64) ([]int64, bool) {
	if b.dialogs.GetState(user) != stPickCities {
		return nil, false
	}
	v, ok := b.dialogs.GetTemp(user, tmpPick)
	ids, typed := v.([]int64)
	return ids, ok && typed
}

func (b *Bot) admPickCity(c tele.Context) error {
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return b.UnknownCallback()(c)
	}
	user := c.Sender().ID
	ids, ok := b.picked(user)
	if !ok {
		return b.expired(c, user)
	}
	ids = slices.Clone(ids)
	if i := slices.Index(ids, id); i >= 0 {
		ids = slices.Delete(ids, i, i+1)
	} else {
		ids = append(ids, id)
	}
	b.dialogs.SetTemp(user, tmpPick, ids)
	return b.showPicker(helpers.BuildContext(c), c, user, ids)
}

func (b *Bot) admPickAll(c tele.Context) error {
	user := c.Sender().ID
	if _, ok := b.picked(user); !ok {
		return b.expired(c, user)
	}
	ctx := helpers.BuildContext(c)
	cities, err := b.admin.Cities(ctx)
	if err != nil {
		b.dialogs.Clear(user)
		return b.fail(ctx, c, "pick_cities", err)
	}
	ids := make([]int64, 0, len(cities))
	for _, city := range cities {
		ids = append(ids, city.ID)
	}
	b.dialogs.SetTemp(user, tmpPick, ids)
	return b.showPicker(ctx, c, user, ids)
}

// admPickDone applies the pending create or delete to the picked cities.
func (b *Bot) admPickDone(c tele.Context) error {
	user := c.Sender().ID
	ids, ok := b.picked(user)
	if !ok {
		return b.expired(c, user)
	}
	if len(ids) == 0 {
		return b.say(c, "Choose at least one city.")
	}
	ctx := helpers.BuildContext(c)
	in := b.productInput(user)
	mode := b.tempString(user, tmpPickFor)
	b.dialogs.Clear(user)

	switch mode {
	case pickCreate:
		created, err := b.admin.CreateProductInCities(ctx, in, ids)
		if err != nil {
			return b.fail(ctx, c, "product_create", err)
		}
		if err := b.say(c, fmt.Sprintf("Bouquet added in %d cities.", len(created))); err != nil {
			return err
		}
		return b.showProduct(c, created[0].ID)
	case pickDelete:
		n, err := b.admin.DeleteProductInCities(ctx, in.Name, ids)
		if err != nil {
			return b.fail(ctx, c, "product_delete", err)
		}
		if err := b.say(c, fmt.Sprintf("Deleted %s in %d cities.", in.Name, n)); err != nil {
			return err
		}
		return b.admCities(c)
	}
	return b.expired(c, user)
}

func (b *Bot) stepPickCities(_ context.Context, c tele.Context, _ int64, _ string) error {
	return b.say(c, "Use the buttons to choose cities, then press Done.")
}

func (b *Bot) admTerms(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	current, err := b.admin.Terms(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return b.fail(ctx, c, "terms", err)
	}
	if current == "" {
		current = "(no terms yet)"
	}
	user := c.Sender().ID
	b.dialogs.Clear(user)
	b.dialogs.SetState(user, stTerms)
	return b.say(c, "Current terms:\n\n"+current+"\n\nSend the new text to replace them.", keyboard.SingleCancelMarkup(cbAdmCancel))
}

func (b *Bot) stepTerms(ctx context.Context, c tele.Context, user int64, text string) error {
	err := b.admin.SetTerms(ctx, text)
	if admin.IsValidation(err) {
		return b.say(c, admin.Describe(err)+". Try again.", keyboard.SingleCancelMarkup(cbAdmCancel))
	}
	b.dialogs.Clear(user)
	if err != nil {
		return b.fail(ctx, c, "terms_set", err)
	}
	return b.say(c, "Terms updated.", backToMenu())
}

func (b *Bot) admOrders(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	orders, err := b.admin.RecentOrders(ctx, recentOrderLimit)
	if err != nil {
		return b.fail(ctx, c, "orders", err)
	}
	if len(orders) == 0 {
		return b.say(c, "No orders yet.", backToMenu())
	}
	var sb strings.Builder
	sb.WriteString("Recent orders:\n")
	for _, o := range orders {
		fmt.Fprintf(&sb, "\n%s · %s · %s · %s · %s",
			o.Number(), o.CityName, b.presenter.Price(o.Total), o.Status, o.CreatedAt.Format("2006-01-02 15:04"))
	}
	return b.say(c, sb.String(), backToMenu())
}

func (b *Bot) stepAcceptNote(ctx context.Context, c tele.Context, user int64, text string) error {
	id, ok := b.dialogs.GetTempInt64(user, tmpOrder)
	if !ok {
		return b.expired(c, user)
	}
	if text == skipInput {
		text = ""
	}
	o, err := b.admin.AcceptOrder(ctx, id, text)
	if admin.IsValidation(err) {
		return b.say(c, admin.Describe(err)+". Try again.", keyboard.SingleCancelMarkup(cbAdmCancel))
	}
	b.dialogs.Clear(user)
	if err != nil {
		return b.fail(ctx, c, "order_accept", err)
	}
	return b.say(c, fmt.Sprintf("Order %s accepted. The customer has been notified.", o.Number()))
}

func (b *Bot) stepRejectNote(ctx context.Context, c tele.Context, user int64, text string) error {
	id, ok := b.dialogs.GetTempInt64(user, tmpOrder)
	if !ok {
		return b.expired(c, user)
	}
	if text == skipInput {
		text = ""
	}
	o, err := b.admin.RejectOrder(ctx, id, text)
	if admin.IsValidation(err) {
		return b.say(c, admin.Describe(err)+". Try again.", keyboard.SingleCancelMarkup(cbAdmCancel))
	}
	b.dialogs.Clear(user)
	if err != nil {
		return b.fail(ctx, c, "order_reject", err)
	}
	return b.say(c, fmt.Sprintf("Order %s rejected. The customer has been notified.", o.Number()))
}
