// Package join derives read-only relational views from the entity store:
// products with their variants and stock, stock items with their movements,
// customers with their orders and sales, suppliers with their purchases.
//
// Every view is a pure function of a fixed set of input tables. Results are
// memoized on the versions of exactly those tables, so a view is rebuilt
// only when one of its inputs changed and repeated calls otherwise return
// the same pointers. Views never mutate the store and tolerate dangling
// foreign keys by leaving the missing side nil.
package join

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"

	"github.com/praneth2580/storix/internal/store"
)

// Source yields mutually consistent table snapshots. Satisfied by
// *store.Store.
type Source interface {
	Snapshots(tables ...store.Table) (map[store.Table]*store.TableSnapshot, error)
}

// snapshots is the input of one view computation.
type snapshots map[store.Table]*store.TableSnapshot

// Engine serves memoized joined views. It is safe for concurrent use.
type Engine struct {
	src    Source
	logger *slog.Logger
	lang   language.Tag
	group  singleflight.Group

	products  memo[ProductView]
	variants  memo[VariantView]
	stock     memo[StockView]
	customers memo[CustomerView]
	suppliers memo[SupplierView]
}

// NewEngine creates an Engine over src. Lists are ordered by display name
// using the collation rules of lang (language.Und for root collation).
func NewEngine(src Source, lang language.Tag, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		src:       src,
		logger:    logger,
		lang:      lang,
		products:  memo[ProductView]{name: "products", tables: []store.Table{store.Products, store.Variants, store.Stock}},
		variants:  memo[VariantView]{name: "variants", tables: []store.Table{store.Variants, store.Products, store.Stock}},
		stock:     memo[StockView]{name: "stock", tables: []store.Table{store.Stock, store.Products, store.Variants, store.StockMovements}},
		customers: memo[CustomerView]{name: "customers", tables: []store.Table{store.Customers, store.Orders, store.Sales}},
		suppliers: memo[SupplierView]{name: "suppliers", tables: []store.Table{store.Suppliers, store.Purchases, store.Stock}},
	}
}

// viewSet is one computed view: the ordered list and its id index.
type viewSet[V any] struct {
	list []*V
	byID map[string]*V
}

// memo caches the last viewSet of one view together with the input table
// versions it was computed from.
type memo[V any] struct {
	name   string
	tables []store.Table

	mu  sync.Mutex
	key string
	set *viewSet[V]
}

func (m *memo[V]) cached(key string) *viewSet[V] {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.set != nil && m.key == key {
		return m.set
	}

	return nil
}

// get returns the view for the current input versions, computing it at most
// once per version set even under concurrent callers.
func (m *memo[V]) get(e *Engine, build func(snapshots) []*V, idOf func(*V) string) (*viewSet[V], error) {
	snaps, err := e.src.Snapshots(m.tables...)
	if err != nil {
		return nil, fmt.Errorf("join: %s: %w", m.name, err)
	}

	key := versionKey(m.tables, snaps)
	if set := m.cached(key); set != nil {
		return set, nil
	}

	v, _, _ := e.group.Do(m.name+"@"+key, func() (any, error) {
		if set := m.cached(key); set != nil {
			return set, nil
		}

		list := build(snaps)
		set := &viewSet[V]{list: list, byID: make(map[string]*V, len(list))}

		for _, item := range list {
			set.byID[idOf(item)] = item
		}

		m.mu.Lock()
		m.key, m.set = key, set
		m.mu.Unlock()

		e.logger.Debug("join view computed",
			slog.String("view", m.name),
			slog.Int("rows", len(list)),
			slog.String("versions", key),
		)

		return set, nil
	})

	return v.(*viewSet[V]), nil
}

func versionKey(tables []store.Table, snaps snapshots) string {
	var b strings.Builder

	for i, t := range tables {
		if i > 0 {
			b.WriteByte('/')
		}

		b.WriteString(strconv.FormatUint(snaps[t].Version(), 10))
	}

	return b.String()
}

// listOf returns a copy of the cached slice; the elements are shared and must
// not be modified by callers.
func listOf[V any](set *viewSet[V], err error) ([]*V, error) {
	if err != nil {
		return nil, err
	}

	return slices.Clone(set.list), nil
}

func lookup[V any](set *viewSet[V], err error, id string) (*V, error) {
	if err != nil {
		return nil, err
	}

	return set.byID[id], nil
}

// Products returns every product joined with its variants and stock.
func (e *Engine) Products() ([]*ProductView, error) {
	return listOf(e.products.get(e, e.buildProducts, func(v *ProductView) string { return v.ID }))
}

// ProductByID returns one joined product, or nil when id is unknown.
func (e *Engine) ProductByID(id string) (*ProductView, error) {
	set, err := e.products.get(e, e.buildProducts, func(v *ProductView) string { return v.ID })
	return lookup(set, err, id)
}

// Variants returns every variant joined with its parent product and stock.
func (e *Engine) Variants() ([]*VariantView, error) {
	return listOf(e.variants.get(e, e.buildVariants, func(v *VariantView) string { return v.ID }))
}

// VariantByID returns one joined variant, or nil when id is unknown.
func (e *Engine) VariantByID(id string) (*VariantView, error) {
	set, err := e.variants.get(e, e.buildVariants, func(v *VariantView) string { return v.ID })
	return lookup(set, err, id)
}

// StockItems returns every stock row joined with product, variant, and
// movement history.
func (e *Engine) StockItems() ([]*StockView, error) {
	return listOf(e.stock.get(e, e.buildStock, func(v *StockView) string { return v.ID }))
}

// StockByID returns one joined stock row, or nil when id is unknown.
func (e *Engine) StockByID(id string) (*StockView, error) {
	set, err := e.stock.get(e, e.buildStock, func(v *StockView) string { return v.ID })
	return lookup(set, err, id)
}

// Customers returns every customer joined with their orders and sales.
func (e *Engine) Customers() ([]*CustomerView, error) {
	return listOf(e.customers.get(e, e.buildCustomers, func(v *CustomerView) string { return v.ID }))
}

// CustomerByID returns one joined customer, or nil when id is unknown.
func (e *Engine) CustomerByID(id string) (*CustomerView, error) {
	set, err := e.customers.get(e, e.buildCustomers, func(v *CustomerView) string { return v.ID })
	return lookup(set, err, id)
}

// Suppliers returns every supplier joined with their purchases and stock.
func (e *Engine) Suppliers() ([]*SupplierView, error) {
	return listOf(e.suppliers.get(e, e.buildSuppliers, func(v *SupplierView) string { return v.ID }))
}

// SupplierByID returns one joined supplier, or nil when id is unknown.
func (e *Engine) SupplierByID(id string) (*SupplierView, error) {
	set, err := e.suppliers.get(e, e.buildSuppliers, func(v *SupplierView) string { return v.ID })
	return lookup(set, err, id)
}
