package join

import (
	"cmp"
	"log/slog"
	"slices"

	"github.com/praneth2580/storix/internal/store"
)

func (e *Engine) buildProducts(snaps snapshots) []*ProductView {
	products := snaps[store.Products]
	variantsByProduct := groupBy(snaps[store.Variants], fieldProductID)
	stockByVariant := groupBy(snaps[store.Stock], fieldVariantID)
	stockByProduct := groupBy(snaps[store.Stock], fieldProductID)

	out := make([]*ProductView, 0, products.Len())

	for id, p := range products.All() {
		view := &ProductView{ID: id, Name: displayName(p), Record: p}

		for _, v := range variantsByProduct[id] {
			attrs, attrErr := parseAttributes(v)
			line := &VariantLine{
				ID:            v.ID(),
				Name:          displayName(v),
				Record:        v,
				Attributes:    attrs,
				AttributesErr: attrErr,
				Stock:         stockByVariant[v.ID()],
			}
			line.OnHand = sumField(line.Stock, fieldQuantity)

			view.Variants = append(view.Variants, line)
			view.Stock = append(view.Stock, line.Stock...)
		}

		// Rows booked on the product without a variant.
		for _, s := range stockByProduct[id] {
			if s.String(fieldVariantID) == "" {
				view.Stock = append(view.Stock, s)
			}
		}

		view.OnHand = sumField(view.Stock, fieldQuantity)
		out = append(out, view)
	}

	sortByName(e, out, func(v *ProductView) string { return v.Name }, func(v *ProductView) string { return v.ID })

	return out
}

func (e *Engine) buildVariants(snaps snapshots) []*VariantView {
	variants := snaps[store.Variants]
	products := snaps[store.Products]
	stockByVariant := groupBy(snaps[store.Stock], fieldVariantID)

	out := make([]*VariantView, 0, variants.Len())

	for id, v := range variants.All() {
		attrs, attrErr := parseAttributes(v)
		view := &VariantView{
			ID:            id,
			Name:          displayName(v),
			Record:        v,
			Attributes:    attrs,
			AttributesErr: attrErr,
			Product:       lookupRecord(products, v.String(fieldProductID)),
			Stock:         stockByVariant[id],
		}
		view.OnHand = sumField(view.Stock, fieldQuantity)

		if attrErr != nil {
			e.logger.Debug("variant attributes unreadable",
				slog.String("id", id),
				slog.String("error", attrErr.Err.Error()),
			)
		}

		out = append(out, view)
	}

	sortByName(e, out, func(v *VariantView) string { return v.Name }, func(v *VariantView) string { return v.ID })

	return out
}

func (e *Engine) buildStock(snaps snapshots) []*StockView {
	stock := snaps[store.Stock]
	products := snaps[store.Products]
	variants := snaps[store.Variants]
	movementsByStock := groupBy(snaps[store.StockMovements], fieldStockID)

	out := make([]*StockView, 0, stock.Len())

	for id, s := range stock.All() {
		variant := lookupRecord(variants, s.String(fieldVariantID))

		productID := s.String(fieldProductID)
		if productID == "" && variant != nil {
			productID = variant.String(fieldProductID)
		}

		movements := slices.Clone(movementsByStock[id])
		slices.SortStableFunc(movements, func(a, b store.Record) int {
			return cmp.Or(cmp.Compare(eventTime(a), eventTime(b)), cmp.Compare(a.ID(), b.ID()))
		})

		product := lookupRecord(products, productID)

		name := displayName(s)
		if name == id {
			switch {
			case variant != nil:
				name = displayName(variant)
			case product != nil:
				name = displayName(product)
			}
		}

		out = append(out, &StockView{
			ID:        id,
			Name:      name,
			Record:    s,
			Quantity:  decimalField(s, fieldQuantity),
			Product:   product,
			Variant:   variant,
			Movements: movements,
		})
	}

	sortByName(e, out, func(v *StockView) string { return v.Name }, func(v *StockView) string { return v.ID })

	return out
}
