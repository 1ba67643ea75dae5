// Package model holds the plain value types shared by the shop packages.
// Values are copied between layers; nothing here holds a live reference into a store.
package model

import (
	"fmt"
	"time"
)

// Money is an amount in minor currency units (kopecks, cents).
type Money int64

// String renders the amount with two decimals, e.g. 1250 -> "12.50".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Times multiplies the amount by a quantity.
func (m Money) Times(qty int) Money {
	return m * Money(qty)
}

// City is a delivery location that owns its own product list.
type City struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Product is a versioned catalog record. Every admin edit bumps Version.
type Product struct {
	ID          int64     `db:"id" json:"id"`
	CityID      int64     `db:"city_id" json:"city_id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Photo       string    `db:"photo" json:"photo,omitempty"`
	Price       Money     `db:"price" json:"price"`
	Available   bool      `db:"available" json:"available"`
	Version     int       `db:"version" json:"version"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ProductPatch carries optional admin edits; nil fields stay untouched.
type ProductPatch struct {
	Name        *string
	Description *string
	Photo       *string
	Price       *Money
	Available   *bool
}

// Empty reports whether the patch changes nothing.
func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Photo == nil && p.Price == nil && p.Available == nil
}

// Apply returns a copy of prod with the patch applied and the version bumped.
func (p ProductPatch) Apply(prod Product, now time.Time) Product {
	if p.Name != nil {
		prod.Name = *p.Name
	}
	if p.Description != nil {
		prod.Description = *p.Description
	}
	if p.Photo != nil {
		prod.Photo = *p.Photo
	}
	if p.Price != nil {
		prod.Price = *p.Price
	}
	if p.Available != nil {
		prod.Available = *p.Available
	}
	prod.Version++
	prod.UpdatedAt = now
	return prod
}
