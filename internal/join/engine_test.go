package join

import (
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/praneth2580/storix/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// seededStore returns a store holding a small catalog:
// two products, three variants (one dangling), stock, and movements.
func seededStore(t *testing.T) *store.Store {
	t.Helper()

	s := store.New()
	require.NoError(t, s.SetTable(store.Products, []store.Record{
		{"id": "p1", "name": "widget"},
		{"id": "p2", "name": "Apple"},
	}))
	require.NoError(t, s.SetTable(store.Variants, []store.Record{
		{"id": "v1", "productId": "p1", "name": "Widget S", "attributes": `{"size":"S"}`},
		{"id": "v2", "productId": "p1", "name": "Widget L", "attributes": `{size: L}`},
		{"id": "v3", "productId": "gone", "name": "Orphan"},
	}))
	require.NoError(t, s.SetTable(store.Stock, []store.Record{
		{"id": "s1", "variantId": "v1", "productId": "p1", "quantity": "2.5"},
		{"id": "s2", "variantId": "v2", "productId": "p1", "quantity": 4},
		{"id": "s3", "productId": "p1", "quantity": "1"},
		{"id": "s4", "variantId": "missing", "quantity": "oops", "supplierId": "sup1"},
	}))
	require.NoError(t, s.SetTable(store.StockMovements, []store.Record{
		{"id": "m2", "stockId": "s1", "createdAt": "2024-03-02T00:00:00Z"},
		{"id": "m1", "stockId": "s1", "createdAt": "2024-03-01T00:00:00Z"},
		{"id": "m3", "stockId": "s2", "date": "2024-01-01"},
	}))

	return s
}

func newTestEngine(src Source) *Engine {
	return NewEngine(src, language.Und, testLogger())
}

func TestProducts_JoinsVariantsAndStock(t *testing.T) {
	t.Parallel()

	e := newTestEngine(seededStore(t))

	products, err := e.Products()
	require.NoError(t, err)
	require.Len(t, products, 2)

	// Collated, case-insensitive: "Apple" before "widget".
	assert.Equal(t, "p2", products[0].ID)
	assert.Equal(t, "p1", products[1].ID)

	p1 := products[1]
	require.Len(t, p1.Variants, 2)
	assert.Equal(t, "v1", p1.Variants[0].ID)
	assert.Equal(t, "S", p1.Variants[0].Attributes["size"])
	assert.Nil(t, p1.Variants[0].AttributesErr)
	assert.True(t, decimal.RequireFromString("2.5").Equal(p1.Variants[0].OnHand))

	// s1 + s2 through variants, s3 booked on the product.
	assert.Len(t, p1.Stock, 3)
	assert.True(t, decimal.RequireFromString("7.5").Equal(p1.OnHand), p1.OnHand.String())

	assert.Empty(t, products[0].Variants)
	assert.True(t, products[0].OnHand.IsZero())
}

func TestVariants_MalformedAttributesFallBack(t *testing.T) {
	t.Parallel()

	e := newTestEngine(seededStore(t))

	v2, err := e.VariantByID("v2")
	require.NoError(t, err)
	require.NotNil(t, v2)

	assert.Empty(t, v2.Attributes)
	require.NotNil(t, v2.AttributesErr)
	assert.Equal(t, store.Variants, v2.AttributesErr.Table)
	assert.Equal(t, "attributes", v2.AttributesErr.Field)
	assert.Equal(t, "p1", v2.Product.ID())
}

func TestVariants_DanglingParentIsNil(t *testing.T) {
	t.Parallel()

	e := newTestEngine(seededStore(t))

	v3, err := e.VariantByID("v3")
	require.NoError(t, err)
	require.NotNil(t, v3)
	assert.Nil(t, v3.Product)
	assert.Empty(t, v3.Stock)

	missing, err := e.VariantByID("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStock_JoinsAndOrdersMovements(t *testing.T) {
	t.Parallel()

	e := newTestEngine(seededStore(t))

	s1, err := e.StockByID("s1")
	require.NoError(t, err)
	require.NotNil(t, s1)

	assert.Equal(t, "p1", s1.Product.ID())
	assert.Equal(t, "v1", s1.Variant.ID())
	assert.Equal(t, "Widget S", s1.Name)
	require.Len(t, s1.Movements, 2)
	assert.Equal(t, "m1", s1.Movements[0].ID())
	assert.Equal(t, "m2", s1.Movements[1].ID())

	s4, err := e.StockByID("s4")
	require.NoError(t, err)
	assert.Nil(t, s4.Variant)
	assert.Nil(t, s4.Product)
	assert.True(t, s4.Quantity.IsZero(), "non-numeric quantity counts as zero")
}

func TestCustomers_JoinsOrdersAndSales(t *testing.T) {
	t.Parallel()

	s := store.New()
	require.NoError(t, s.SetTable(store.Customers, []store.Record{{"id": "c1", "name": "Asha"}}))
	require.NoError(t, s.SetTable(store.Orders, []store.Record{
		{"id": "o1", "customerId": "c1"},
		{"id": "o2", "customerId": "c2"},
	}))
	require.NoError(t, s.SetTable(store.Sales, []store.Record{
		{"id": "x1", "customerId": "c1", "total": "10.10"},
		{"id": "x2", "customerId": "c1", "amount": 5},
	}))

	e := newTestEngine(s)

	c, err := e.CustomerByID("c1")
	require.NoError(t, err)
	require.NotNil(t, c)

	assert.Len(t, c.Orders, 1)
	assert.Len(t, c.Sales, 2)
	assert.True(t, decimal.RequireFromString("15.10").Equal(c.SalesTotal), c.SalesTotal.String())
}

func TestSuppliers_JoinPurchasesAndStock(t *testing.T) {
	t.Parallel()

	s := seededStore(t)
	require.NoError(t, s.SetTable(store.Suppliers, []store.Record{{"id": "sup1", "name": "Acme"}}))
	require.NoError(t, s.SetTable(store.Purchases, []store.Record{
		{"id": "pu1", "supplierId": "sup1", "stockId": "s2"},
		{"id": "pu2", "supplierId": "sup1", "stockId": "s4"},
		{"id": "pu3", "supplierId": "sup1", "stockId": "ghost"},
	}))

	e := newTestEngine(s)

	sup, err := e.SupplierByID("sup1")
	require.NoError(t, err)
	require.NotNil(t, sup)

	assert.Len(t, sup.Purchases, 3)
	require.Len(t, sup.Stock, 2, "s4 is referenced twice but listed once; ghost is dropped")
	assert.Equal(t, "s2", sup.Stock[0].ID())
	assert.Equal(t, "s4", sup.Stock[1].ID())
}

func TestMemo_SamePointersWhenInputsUnchanged(t *testing.T) {
	t.Parallel()

	e := newTestEngine(seededStore(t))

	first, err := e.Products()
	require.NoError(t, err)

	second, err := e.Products()
	require.NoError(t, err)

	require.Len(t, second, len(first))

	for i := range first {
		assert.Same(t, first[i], second[i])
	}

	byID, err := e.ProductByID("p1")
	require.NoError(t, err)
	assert.Same(t, first[1], byID)
}

func TestMemo_UnrelatedTableChangeKeepsOutput(t *testing.T) {
	t.Parallel()

	s := seededStore(t)
	e := newTestEngine(s)

	before, err := e.ProductByID("p1")
	require.NoError(t, err)

	require.NoError(t, s.MergeChanges(store.Customers, []store.Record{{"id": "c9"}}, false))
	require.NoError(t, s.MergeChanges(store.StockMovements, []store.Record{{"id": "m9", "stockId": "s1"}}, false))

	after, err := e.ProductByID("p1")
	require.NoError(t, err)
	assert.Same(t, before, after)
}

func TestMemo_InputChangeRecomputes(t *testing.T) {
	t.Parallel()

	s := seededStore(t)
	e := newTestEngine(s)

	before, err := e.ProductByID("p1")
	require.NoError(t, err)

	require.NoError(t, s.MergeChanges(store.Stock, []store.Record{{"id": "s1", "variantId": "v1", "quantity": "10"}}, false))

	after, err := e.ProductByID("p1")
	require.NoError(t, err)
	assert.NotSame(t, before, after)
	assert.True(t, decimal.RequireFromString("15").Equal(after.OnHand), after.OnHand.String())

	// The old view is untouched.
	assert.True(t, decimal.RequireFromString("7.5").Equal(before.OnHand))
}

func TestMemo_ConcurrentReadersShareResult(t *testing.T) {
	t.Parallel()

	e := newTestEngine(seededStore(t))

	const readers = 16

	results := make([]*StockView, readers)

	var wg sync.WaitGroup

	for i := range readers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			v, err := e.StockByID("s1")
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	wg.Wait()

	// Readers racing before the first result lands may each compute, but
	// once cached every caller gets the cached pointer.
	cached, err := e.StockByID("s1")
	require.NoError(t, err)

	again, err := e.StockByID("s1")
	require.NoError(t, err)
	assert.Same(t, cached, again)

	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, "s1", r.ID)
	}
}

func TestJoinsNeverMutateStore(t *testing.T) {
	t.Parallel()

	s := seededStore(t)
	before := s.Counts()

	snap, err := s.Snapshot(store.Products)
	require.NoError(t, err)

	e := newTestEngine(s)
	_, err = e.Products()
	require.NoError(t, err)
	_, err = e.StockItems()
	require.NoError(t, err)
	_, err = e.Suppliers()
	require.NoError(t, err)

	after, err := s.Snapshot(store.Products)
	require.NoError(t, err)

	assert.Equal(t, before, s.Counts())
	assert.Same(t, snap, after)
}

type failingSource struct{}

func (failingSource) Snapshots(...store.Table) (map[store.Table]*store.TableSnapshot, error) {
	return nil, &store.UnknownTableError{Name: "x"}
}

func TestSourceErrorIsReturned(t *testing.T) {
	t.Parallel()

	e := newTestEngine(failingSource{})

	_, err := e.Customers()
	assert.ErrorIs(t, err, store.ErrUnknownTable)

	_, err = e.SupplierByID("x")
	assert.ErrorIs(t, err, store.ErrUnknownTable)
}
