package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/m3rciful/flowerbot/internal/model"
	"github.com/m3rciful/flowerbot/internal/storage"
)

type catalogView struct{ s *Store }

func (v catalogView) ListCities(context.Context) ([]model.City, error) {
	v.s.catalogMu.RLock()
	defer v.s.catalogMu.RUnlock()
	out := make([]model.City, 0, len(v.s.cities))
	for _, c := range v.s.cities {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v catalogView) GetCity(_ context.Context, id int64) (model.City, error) {
	v.s.catalogMu.RLock()
	defer v.s.catalogMu.RUnlock()
	c, ok := v.s.cities[id]
	if !ok {
		return model.City{}, storage.ErrNotFound
	}
	return c, nil
}

func (v catalogView) ListProducts(_ context.Context, cityID int64) ([]model.Product, error) {
	v.s.catalogMu.RLock()
	defer v.s.catalogMu.RUnlock()
	var out []model.Product
	for _, p := range v.s.products {
		if p.CityID == cityID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v catalogView) GetProduct(_ context.Context, id int64) (model.Product, error) {
	v.s.catalogMu.RLock()
	defer v.s.catalogMu.RUnlock()
	p, ok := v.s.products[id]
	if !ok {
		return model.Product{}, storage.ErrNotFound
	}
	return p, nil
}

func (v catalogView) CreateCity(_ context.Context, name string) (model.City, error) {
	v.s.catalogMu.Lock()
	defer v.s.catalogMu.Unlock()
	for _, c := range v.s.cities {
		if strings.EqualFold(c.Name, name) {
			return model.City{}, storage.ErrConflict
		}
	}
	v.s.nextCity++
	c := model.City{ID: v.s.nextCity, Name: name}
	v.s.cities[c.ID] = c
	return c, nil
}

func (v catalogView) RenameCity(_ context.Context, id int64, name string) error {
	v.s.catalogMu.Lock()
	defer v.s.catalogMu.Unlock()
	c, ok := v.s.cities[id]
	if !ok {
		return storage.ErrNotFound
	}
	for _, other := range v.s.cities {
		if other.ID != id && strings.EqualFold(other.Name, name) {
			return storage.ErrConflict
		}
	}
	c.Name = name
	v.s.cities[id] = c
	return nil
}

func (v catalogView) DeleteCity(_ context.Context, id int64) error {
	v.s.catalogMu.Lock()
	defer v.s.catalogMu.Unlock()
	if _, ok := v.s.cities[id]; !ok {
		return storage.ErrNotFound
	}
	delete(v.s.cities, id)
	for pid, p := range v.s.products {
		if p.CityID == id {
			delete(v.s.products, pid)
		}
	}
	return nil
}

func (v catalogView) CreateProduct(_ context.Context, p model.Product) (model.Product, error) {
	v.s.catalogMu.Lock()
	defer v.s.catalogMu.Unlock()
	if _, ok := v.s.cities[p.CityID]; !ok {
		return model.Product{}, storage.ErrNotFound
	}
	v.s.nextProduct++
	p.ID = v.s.nextProduct
	p.Version = 1
	p.UpdatedAt = v.s.now()
	v.s.products[p.ID] = p
	return p, nil
}

func (v catalogView) UpdateProduct(_ context.Context, id int64, patch model.ProductPatch) (model.Product, error) {
	v.s.catalogMu.Lock()
	defer v.s.catalogMu.Unlock()
	p, ok := v.s.products[id]
	if !ok {
		return model.Product{}, storage.ErrNotFound
	}
	p = patch.Apply(p, v.s.now())
	v.s.products[id] = p
	return p, nil
}

func (v catalogView) DeleteProduct(_ context.Context, id int64) error {
	v.s.catalogMu.Lock()
	defer v.s.catalogMu.Unlock()
	if _, ok := v.s.products[id]; !ok {
		return storage.ErrNotFound
	}
	delete(v.s.products, id)
	return nil
}

func (v catalogView) CopyProducts(_ context.Context, from, to int64) (int, error) {
	v.s.catalogMu.Lock()
	defer v.s.catalogMu.Unlock()
	if _, ok := v.s.cities[to]; !ok {
		return 0, storage.ErrNotFound
	}
	var src []model.Product
	for _, p := range v.s.products {
		if p.CityID == from {
			src = append(src, p)
		}
	}
	sort.Slice(src, func(i, j int) bool { return src[i].ID < src[j].ID })
	now := v.s.now()
	for _, p := range src {
		v.s.nextProduct++
		p.ID = v.s.nextProduct
		p.CityID = to
		p.Version = 1
		p.UpdatedAt = now
		v.s.products[p.ID] = p
	}
	return len(src), nil
}
