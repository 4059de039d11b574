package join

import (
	"slices"
	"strings"

	"github.com/praneth2580/storix/internal/store"
)

func (e *Engine) buildCustomers(snaps snapshots) []*CustomerView {
	customers := snaps[store.Customers]
	ordersByCustomer := groupBy(snaps[store.Orders], fieldCustomerID)
	salesByCustomer := groupBy(snaps[store.Sales], fieldCustomerID)

	out := make([]*CustomerView, 0, customers.Len())

	for id, c := range customers.All() {
		view := &CustomerView{
			ID:     id,
			Name:   displayName(c),
			Record: c,
			Orders: ordersByCustomer[id],
			Sales:  salesByCustomer[id],
		}

		for _, s := range view.Sales {
			view.SalesTotal = view.SalesTotal.Add(saleAmount(s))
		}

		out = append(out, view)
	}

	sortByName(e, out, func(v *CustomerView) string { return v.Name }, func(v *CustomerView) string { return v.ID })

	return out
}

func (e *Engine) buildSuppliers(snaps snapshots) []*SupplierView {
	suppliers := snaps[store.Suppliers]
	stock := snaps[store.Stock]
	purchasesBySupplier := groupBy(snaps[store.Purchases], fieldSupplierID)
	stockBySupplier := groupBy(stock, fieldSupplierID)

	out := make([]*SupplierView, 0, suppliers.Len())

	for id, s := range suppliers.All() {
		view := &SupplierView{
			ID:        id,
			Name:      displayName(s),
			Record:    s,
			Purchases: purchasesBySupplier[id],
		}

		seen := make(map[string]bool)

		for _, p := range view.Purchases {
			if r := lookupRecord(stock, p.String(fieldStockID)); r != nil && !seen[r.ID()] {
				seen[r.ID()] = true
				view.Stock = append(view.Stock, r)
			}
		}

		for _, r := range stockBySupplier[id] {
			if !seen[r.ID()] {
				seen[r.ID()] = true
				view.Stock = append(view.Stock, r)
			}
		}

		slices.SortFunc(view.Stock, func(a, b store.Record) int {
			return strings.Compare(a.ID(), b.ID())
		})

		out = append(out, view)
	}

	sortByName(e, out, func(v *SupplierView) string { return v.Name }, func(v *SupplierView) string { return v.ID })

	return out
}
