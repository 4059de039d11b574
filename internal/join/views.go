package join

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"

	"github.com/praneth2580/storix/internal/store"
)

// Foreign-key and payload field names.
const (
	fieldProductID  = "productId"
	fieldVariantID  = "variantId"
	fieldStockID    = "stockId"
	fieldCustomerID = "customerId"
	fieldSupplierID = "supplierId"
	fieldAttributes = "attributes"
	fieldQuantity   = "quantity"
	fieldTotal      = "total"
	fieldAmount     = "amount"
	fieldCreatedAt  = "createdAt"
	fieldDate       = "date"
)

// MalformedPayloadError reports a stored field that should hold JSON but
// does not parse. Views carry it instead of failing.
type MalformedPayloadError struct {
	Table store.Table
	ID    string
	Field string
	Err   error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("join: %s %s: field %s: %v", e.Table, e.ID, e.Field, e.Err)
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

// MarshalText lets views serialize the error as its message.
func (e *MalformedPayloadError) MarshalText() ([]byte, error) {
	return []byte(e.Error()), nil
}

// VariantLine is a variant as listed under its product.
type VariantLine struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Record        store.Record           `json:"record"`
	Attributes    map[string]any         `json:"attributes"`
	AttributesErr *MalformedPayloadError `json:"attributesError,omitempty"`
	Stock         []store.Record         `json:"stock"`
	OnHand        decimal.Decimal        `json:"onHand"`
}

// ProductView is Product ⨝ Variants ⨝ Stock. Stock lists rows of every
// variant plus rows booked against the product itself.
type ProductView struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Record   store.Record    `json:"record"`
	Variants []*VariantLine  `json:"variants"`
	Stock    []store.Record  `json:"stock"`
	OnHand   decimal.Decimal `json:"onHand"`
}

// VariantView is Variant ⨝ parent Product ⨝ Stock. Product is nil when the
// parent is missing.
type VariantView struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Record        store.Record           `json:"record"`
	Attributes    map[string]any         `json:"attributes"`
	AttributesErr *MalformedPayloadError `json:"attributesError,omitempty"`
	Product       store.Record           `json:"product"`
	Stock         []store.Record         `json:"stock"`
	OnHand        decimal.Decimal        `json:"onHand"`
}

// StockView is Stock ⨝ Product ⨝ Variant ⨝ StockMovements, movements
// oldest first.
type StockView struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Record    store.Record    `json:"record"`
	Quantity  decimal.Decimal `json:"quantity"`
	Product   store.Record    `json:"product"`
	Variant   store.Record    `json:"variant"`
	Movements []store.Record  `json:"movements"`
}

// CustomerView is Customer ⨝ Orders ⨝ Sales.
type CustomerView struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Record     store.Record    `json:"record"`
	Orders     []store.Record  `json:"orders"`
	Sales      []store.Record  `json:"sales"`
	SalesTotal decimal.Decimal `json:"salesTotal"`
}

// SupplierView is Supplier ⨝ Purchases ⨝ Stock. Stock holds rows referenced
// by a purchase or naming the supplier directly.
type SupplierView struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Record    store.Record   `json:"record"`
	Purchases []store.Record `json:"purchases"`
	Stock     []store.Record `json:"stock"`
}

// displayName picks the human label of a record, falling back to its id.
func displayName(r store.Record) string {
	for _, key := range []string{"name", "title", "sku"} {
		if s := r.String(key); s != "" {
			return s
		}
	}

	return r.ID()
}

// groupBy indexes every record of snap by the value of field. Groups are
// ordered by id. Records with an empty field are left out.
func groupBy(snap *store.TableSnapshot, field string) map[string][]store.Record {
	out := make(map[string][]store.Record)

	for _, id := range snap.IDs() {
		r, _ := snap.Get(id)
		if key := r.String(field); key != "" {
			out[key] = append(out[key], r)
		}
	}

	return out
}

// decimalField reads a numeric field; missing or non-numeric values count
// as zero.
func decimalField(r store.Record, field string) decimal.Decimal {
	s := r.String(field)
	if s == "" {
		return decimal.Zero
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}

	return d
}

func sumField(rows []store.Record, field string) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(decimalField(r, field))
	}

	return total
}

// saleAmount reads a sale's total, accepting "amount" as the older name.
func saleAmount(r store.Record) decimal.Decimal {
	if r.String(fieldTotal) != "" {
		return decimalField(r, fieldTotal)
	}

	return decimalField(r, fieldAmount)
}

// parseAttributes decodes a variant's attributes. The field may already be
// an object or a JSON string holding one. Anything unparsable yields an
// empty map and a *MalformedPayloadError.
func parseAttributes(r store.Record) (map[string]any, *MalformedPayloadError) {
	switch v := r[fieldAttributes].(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return map[string]any{}, nil
		}

		var attrs map[string]any
		if err := json.Unmarshal([]byte(v), &attrs); err != nil {
			return map[string]any{}, &MalformedPayloadError{Table: store.Variants, ID: r.ID(), Field: fieldAttributes, Err: err}
		}

		if attrs == nil {
			attrs = map[string]any{}
		}

		return attrs, nil
	default:
		return map[string]any{}, &MalformedPayloadError{
			Table: store.Variants,
			ID:    r.ID(),
			Field: fieldAttributes,
			Err:   fmt.Errorf("unexpected %T", v),
		}
	}
}

// eventTime is the sort key of a movement: createdAt, else date.
func eventTime(r store.Record) string {
	if s := r.String(fieldCreatedAt); s != "" {
		return s
	}

	return r.String(fieldDate)
}

// sortByName orders views by collated display name, ties by id.
func sortByName[V any](e *Engine, items []*V, name, id func(*V) string) {
	col := collate.New(e.lang, collate.IgnoreCase)

	slices.SortStableFunc(items, func(a, b *V) int {
		if c := col.CompareString(name(a), name(b)); c != 0 {
			return c
		}

		return strings.Compare(id(a), id(b))
	})
}

// lookupRecord resolves a foreign key, returning nil for empty or dangling
// references.
func lookupRecord(snap *store.TableSnapshot, id string) store.Record {
	if id == "" {
		return nil
	}

	r, ok := snap.Get(id)
	if !ok {
		return nil
	}

	return r
}
