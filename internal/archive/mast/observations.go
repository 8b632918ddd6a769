package mast

import (
	"context"
	"errors"
	"strings"
)

// Observation is one row of a CAOM cone search.
type Observation struct {
	Collection string
	ObsID      string
	Target     string
	Filters    string
}

// Product is one downloadable file attached to an observation.
type Product struct {
	ObsID    string
	Filename string
	DataURI  string
	Type     string
	Filters  string
}

// ProductList holds an observation's products. HasFilters reports whether
// MAST returned a filters column for them.
type ProductList struct {
	Products   []Product
	HasFilters bool
}

// QueryRegion returns the observations within radiusDeg of (ra, dec).
func (c *Client) QueryRegion(ctx context.Context, ra, dec, radiusDeg float64) ([]Observation, error) {
	t, err := c.invoke(ctx, "Mast.Caom.Cone", map[string]any{
		"ra":     ra,
		"dec":    dec,
		"radius": radiusDeg,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Observation, 0, len(t.rows))
	for _, row := range t.rows {
		out = append(out, Observation{
			Collection: str(row, "obs_collection"),
			ObsID:      str(row, "obsid"),
			Target:     str(row, "target_name"),
			Filters:    str(row, "filters"),
		})
	}
	return out, nil
}

func (c *Client) ProductList(ctx context.Context, obs Observation) (ProductList, error) {
	if strings.TrimSpace(obs.ObsID) == "" {
		return ProductList{}, errors.New("observation id is required")
	}
	t, err := c.invoke(ctx, "Mast.Caom.Products", map[string]any{"obsid": obs.ObsID})
	if err != nil {
		return ProductList{}, err
	}
	out := ProductList{Products: make([]Product, 0, len(t.rows)), HasFilters: t.has("filters")}
	for _, row := range t.rows {
		out.Products = append(out.Products, Product{
			ObsID:    str(row, "obsID"),
			Filename: str(row, "productFilename"),
			DataURI:  str(row, "dataURI"),
			Type:     str(row, "productType"),
			Filters:  str(row, "filters"),
		})
	}
	return out, nil
}
