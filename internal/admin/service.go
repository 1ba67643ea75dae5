// Package admin implements the shop management operations behind /admin and
// the manager accept/reject buttons.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/m3rciful/flowerbot/core/logger"
	"github.com/m3rciful/flowerbot/internal/model"
	"github.com/m3rciful/flowerbot/internal/storage"
)

const (
	componentCatalog = "service.catalog"
	componentOrders  = "service.orders"

	maxNameLen  = 64
	maxDescLen  = 1000
	maxTermsLen = 4000
	maxNoteLen  = 200
	// MaxPrice caps a product price at 1 000 000.00.
	MaxPrice model.Money = 100_000_000
)

// StatusNotifier is told about manager decisions so the customer can be informed.
type StatusNotifier interface {
	OrderStatusChanged(ctx context.Context, o model.Order) error
}

// Service wraps the catalog, orders and terms stores with validation and logging.
type Service struct {
	catalog  storage.Catalog
	orders   storage.Orders
	terms    storage.Terms
	notifier StatusNotifier
}

// New builds the service. notifier may be nil.
func New(catalog storage.Catalog, orders storage.Orders, terms storage.Terms, notifier StatusNotifier) *Service {
	return &Service{catalog: catalog, orders: orders, terms: terms, notifier: notifier}
}

func cleanName(field, raw string) (string, error) {
	name := strings.Join(strings.Fields(raw), " ")
	switch {
	case name == "":
		return "", invalid(field, "must not be empty")
	case utf8.RuneCountInString(name) > maxNameLen:
		return "", invalid(field, fmt.Sprintf("at most %d characters", maxNameLen))
	}
	return name, nil
}

// ParsePrice reads an admin-typed amount like "150", "150.5" or "150,50".
func ParsePrice(raw string) (model.Money, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	if s == "" {
		return 0, invalid("price", "must not be empty")
	}
	if strings.ContainsAny(s, "+-") {
		return 0, invalid("price", "must be a positive number")
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac && (len(frac) == 0 || len(frac) > 2) {
		return 0, invalid("price", "use at most two decimals")
	}
	for len(frac) < 2 {
		frac += "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units < 0 {
		return 0, invalid("price", "must be a positive number")
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || cents < 0 {
		return 0, invalid("price", "must be a positive number")
	}
	m := model.Money(units*100 + cents)
	if m <= 0 || m > MaxPrice {
		return 0, invalid("price", "out of range")
	}
	return m, nil
}

// Cities lists the catalog cities.
func (s *Service) Cities(ctx context.Context) ([]model.City, error) {
	return s.catalog.ListCities(ctx)
}

// Products lists the products of a city, available or not.
func (s *Service) Products(ctx context.Context, cityID int64) ([]model.Product, error) {
	return s.catalog.ListProducts(ctx, cityID)
}

// Product returns one product.
func (s *Service) Product(ctx context.Context, id int64) (model.Product, error) {
	return s.catalog.GetProduct(ctx, id)
}

// CreateCity adds a city. When copyFrom is non-zero the products of that city
// are cloned into the new one; the new city is removed again if the copy fails.
func (s *Service) CreateCity(ctx context.Context, rawName string, copyFrom int64) (model.City, int, error) {
	name, err := cleanName("city name", rawName)
	if err != nil {
		return model.City{}, 0, err
	}
	if copyFrom != 0 {
		if _, err := s.catalog.GetCity(ctx, copyFrom); err != nil {
			return model.City{}, 0, fmt.Errorf("source city %d: %w", copyFrom, err)
		}
	}
	city, err := s.catalog.CreateCity(ctx, name)
	if err != nil {
		return model.City{}, 0, fmt.Errorf("create city: %w", err)
	}

	copied := 0
	if copyFrom != 0 {
		copied, err = s.catalog.CopyProducts(ctx, copyFrom, city.ID)
		if err != nil {
			if delErr := s.catalog.DeleteCity(ctx, city.ID); delErr != nil {
				logger.Error(ctx, componentCatalog, "city.create.rollback",
					slog.Int64("city_id", city.ID),
					slog.String("err", delErr.Error()),
				)
			}
			return model.City{}, 0, fmt.Errorf("copy products: %w", err)
		}
	}

	logger.Info(ctx, componentCatalog, "city.created",
		slog.Int64("city_id", city.ID),
		slog.String("name", city.Name),
		slog.Int("count", copied),
	)
	return city, copied, nil
}

// RenameCity changes a city's display name.
func (s *Service) RenameCity(ctx context.Context, id int64, rawName string) error {
	name, err := cleanName("city name", rawName)
	if err != nil {
		return err
	}
	if err := s.catalog.RenameCity(ctx, id, name); err != nil {
		return fmt.Errorf("rename city %d: %w", id, err)
	}
	logger.Info(ctx, componentCatalog, "city.renamed", slog.Int64("city_id", id), slog.String("name", name))
	return nil
}

// DeleteCity removes a city together with its products.
func (s *Service) DeleteCity(ctx context.Context, id int64) error {
	if err := s.catalog.DeleteCity(ctx, id); err != nil {
		return fmt.Errorf("delete city %d: %w", id, err)
	}
	logger.Info(ctx, componentCatalog, "city.deleted", slog.Int64("city_id", id))
	return nil
}

// ProductInput is the admin form for a new product.
type ProductInput struct {
	CityID      int64
	Name        string
	Description string
	Price       string
	Photo       string
}

// product validates the form into an available product of in.CityID.
func (in ProductInput) product() (model.Product, error) {
	name, err := cleanName("product name", in.Name)
	if err != nil {
		return model.Product{}, err
	}
	desc := strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(desc) > maxDescLen {
		return model.Product{}, invalid("description", fmt.Sprintf("at most %d characters", maxDescLen))
	}
	price, err := ParsePrice(in.Price)
	if err != nil {
		return model.Product{}, err
	}
	return model.Product{
		CityID:      in.CityID,
		Name:        name,
		Description: desc,
		Photo:       strings.TrimSpace(in.Photo),
		Price:       price,
		Available:   true,
	}, nil
}

// CreateProduct validates the form and stores an available product.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (model.Product, error) {
	created, err := s.CreateProductInCities(ctx, in, []int64{in.CityID})
	if err != nil {
		return model.Product{}, err
	}
	return created[0], nil
}

// CreateProductInCities stores the same bouquet in every listed city.
// in.CityID is ignored. Either every copy is stored or none is.
func (s *Service) CreateProductInCities(ctx context.Context, in ProductInput, cityIDs []int64) ([]model.Product, error) {
	if len(cityIDs) == 0 {
		return nil, invalid("cities", "choose at least one city")
	}
	form, err := in.product()
	if err != nil {
		return nil, err
	}
	created := make([]model.Product, 0, len(cityIDs))
	for _, cityID := range cityIDs {
		form.CityID = cityID
		p, err := s.catalog.CreateProduct(ctx, form)
		if err != nil {
			s.rollbackProducts(ctx, created)
			return nil, fmt.Errorf("create product in city %d: %w", cityID, err)
		}
		created = append(created, p)
		logger.Info(ctx, componentCatalog, "product.created",
			slog.Int64("product_id", p.ID),
			slog.Int64("city_id", p.CityID),
			slog.Int64("price", int64(p.Price)),
		)
	}
	return created, nil
}

func (s *Service) rollbackProducts(ctx context.Context, created []model.Product) {
	for _, p := range created {
		if err := s.catalog.DeleteProduct(ctx, p.ID); err != nil {
			logger.Error(ctx, componentCatalog, "product.create.rollback",
				slog.Int64("product_id", p.ID),
				slog.String("err", err.Error()),
			)
		}
	}
}

// UpdateProduct applies a validated patch; every change bumps the product version.
func (s *Service) UpdateProduct(ctx context.Context, id int64, patch model.ProductPatch) (model.Product, error) {
	if patch.Empty() {
		return model.Product{}, invalid("patch", "nothing to change")
	}
	if patch.Name != nil {
		name, err := cleanName("product name", *patch.Name)
		if err != nil {
			return model.Product{}, err
		}
		patch.Name = &name
	}
	if patch.Description != nil {
		desc := strings.TrimSpace(*patch.Description)
		if utf8.RuneCountInString(desc) > maxDescLen {
			return model.Product{}, invalid("description", fmt.Sprintf("at most %d characters", maxDescLen))
		}
		patch.Description = &desc
	}
	if patch.Price != nil && (*patch.Price <= 0 || *patch.Price > MaxPrice) {
		return model.Product{}, invalid("price", "out of range")
	}
	p, err := s.catalog.UpdateProduct(ctx, id, patch)
	if err != nil {
		return model.Product{}, fmt.Errorf("update product %d: %w", id, err)
	}
	logger.Info(ctx, componentCatalog, "product.updated",
		slog.Int64("product_id", p.ID),
		slog.Int("version", p.Version),
	)
	return p, nil
}

// SetPrice parses raw and updates the price.
func (s *Service) SetPrice(ctx context.Context, id int64, raw string) (model.Product, error) {
	price, err := ParsePrice(raw)
	if err != nil {
		return model.Product{}, err
	}
	return s.UpdateProduct(ctx, id, model.ProductPatch{Price: &price})
}

// ToggleAvailability flips the product's available flag.
func (s *Service) ToggleAvailability(ctx context.Context, id int64) (model.Product, error) {
	p, err := s.catalog.GetProduct(ctx, id)
	if err != nil {
		return model.Product{}, fmt.Errorf("get product %d: %w", id, err)
	}
	next := !p.Available
	return s.UpdateProduct(ctx, id, model.ProductPatch{Available: &next})
}

// DeleteProduct removes a product. Carts referencing it are revalidated at checkout.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.catalog.DeleteProduct(ctx, id); err != nil {
		return fmt.Errorf("delete product %d: %w", id, err)
	}
	logger.Info(ctx, componentCatalog, "product.deleted", slog.Int64("product_id", id))
	return nil
}

// DeleteProductInCities removes the bouquets called name from the listed
// cities, or from every city when cityIDs is empty. Names match
// case-insensitively. It returns how many products were removed.
func (s *Service) DeleteProductInCities(ctx context.Context, name string, cityIDs []int64) (int, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return 0, invalid("product name", "must not be empty")
	}
	if len(cityIDs) == 0 {
		cities, err := s.catalog.ListCities(ctx)
		if err != nil {
			return 0, fmt.Errorf("list cities: %w", err)
		}
		for _, c := range cities {
			cityIDs = append(cityIDs, c.ID)
		}
	}
	deleted := 0
	for _, cityID := range cityIDs {
		products, err := s.catalog.ListProducts(ctx, cityID)
		if err != nil {
			return deleted, fmt.Errorf("list products of city %d: %w", cityID, err)
		}
		for _, p := range products {
			if !strings.EqualFold(p.Name, name) {
				continue
			}
			if err := s.catalog.DeleteProduct(ctx, p.ID); err != nil {
				return deleted, fmt.Errorf("delete product %d: %w", p.ID, err)
			}
			deleted++
		}
	}
	logger.Info(ctx, componentCatalog, "product.deleted.bulk",
		slog.String("name", name),
		slog.Int("count", deleted),
	)
	return deleted, nil
}

// Terms returns the current terms text.
func (s *Service) Terms(ctx context.Context) (string, error) {
	return s.terms.CurrentTerms(ctx)
}

// SetTerms replaces the terms text.
func (s *Service) SetTerms(ctx context.Context, raw string) error {
	text := strings.TrimSpace(raw)
	switch {
	case text == "":
		return invalid("terms", "must not be empty")
	case utf8.RuneCountInString(text) > maxTermsLen:
		return invalid("terms", fmt.Sprintf("at most %d characters", maxTermsLen))
	}
	if err := s.terms.SetTerms(ctx, text); err != nil {
		return fmt.Errorf("set terms: %w", err)
	}
	logger.Info(ctx, componentCatalog, "terms.updated", slog.Int("count", utf8.RuneCountInString(text)))
	return nil
}

// RecentOrders lists the newest orders first.
func (s *Service) RecentOrders(ctx context.Context, limit int) ([]model.Order, error) {
	return s.orders.ListRecent(ctx, limit)
}

// AcceptOrder moves a confirmed order to accepted.
func (s *Service) AcceptOrder(ctx context.Context, id int64, note string) (model.Order, error) {
	return s.decide(ctx, id, model.OrderAccepted, note)
}

// RejectOrder moves a confirmed order to cancelled.
func (s *Service) RejectOrder(ctx context.Context, id int64, note string) (model.Order, error) {
	return s.decide(ctx, id, model.OrderCancelled, note)
}

func (s *Service) decide(ctx context.Context, id int64, to model.OrderStatus, rawNote string) (model.Order, error) {
	note := strings.TrimSpace(rawNote)
	if utf8.RuneCountInString(note) > maxNoteLen {
		return model.Order{}, invalid("note", fmt.Sprintf("at most %d characters", maxNoteLen))
	}
	current, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return model.Order{}, fmt.Errorf("get order %d: %w", id, err)
	}
	if !current.Status.CanTransition(to) {
		return model.Order{}, fmt.Errorf("order %d is %s: %w", id, current.Status, storage.ErrConflict)
	}
	updated, err := s.orders.UpdateStatus(ctx, id, current.Status, to, note)
	if err != nil {
		logger.Warn(ctx, componentOrders, "order.status",
			slog.String("status", "fail"),
			slog.Int64("order_id", id),
			slog.String("to_state", string(to)),
			slog.String("err", err.Error()),
		)
		return model.Order{}, fmt.Errorf("update order %d: %w", id, err)
	}
	logger.Info(ctx, componentOrders, "order.status",
		slog.String("status", "ok"),
		slog.Int64("order_id", id),
		slog.String("from_state", string(current.Status)),
		slog.String("to_state", string(to)),
	)
	if s.notifier != nil {
		if err := s.notifier.OrderStatusChanged(ctx, updated); err != nil {
			logger.Warn(ctx, componentOrders, "order.notify",
				slog.Int64("order_id", id),
				slog.String("err", err.Error()),
			)
		}
	}
	return updated, nil
}
