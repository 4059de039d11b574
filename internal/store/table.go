// Package store implements the normalized in-memory entity store: one
// id → record map per table. Tables form a closed set known at compile time.
// Every effective mutation installs a fresh map for the touched table and
// bumps its version, so a TableSnapshot handed to a reader never changes
// underneath it and derived views can memoize on the version alone.
package store

import (
	"errors"
	"fmt"
	"slices"
)

// Table names a collection in the remote system of record.
type Table string

// The closed set of synchronized tables.
const (
	Products       Table = "Products"
	Variants       Table = "Variants"
	Stock          Table = "Stock"
	Customers      Table = "Customers"
	Suppliers      Table = "Suppliers"
	Orders         Table = "Orders"
	Sales          Table = "Sales"
	Purchases      Table = "Purchases"
	StockMovements Table = "StockMovements"
)

var allTables = []Table{
	Products,
	Variants,
	Stock,
	Customers,
	Suppliers,
	Orders,
	Sales,
	Purchases,
	StockMovements,
}

// ErrUnknownTable matches any *UnknownTableError via errors.Is.
var ErrUnknownTable = errors.New("store: unknown table")

// ErrMissingID is returned when a row handed to the store carries no id.
var ErrMissingID = errors.New("store: record has no id")

// UnknownTableError reports a table name outside the closed set.
type UnknownTableError struct {
	Name string
}

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("store: unknown table %q", e.Name)
}

// Is makes errors.Is(err, ErrUnknownTable) work for wrapped values.
func (e *UnknownTableError) Is(target error) bool {
	return target == ErrUnknownTable
}

// Tables returns every known table in a stable order.
func Tables() []Table {
	return slices.Clone(allTables)
}

// ParseTable validates a table name. The match is exact: the remote's
// sheet names are case-sensitive.
func ParseTable(name string) (Table, error) {
	t := Table(name)
	if !t.Valid() {
		return "", &UnknownTableError{Name: name}
	}

	return t, nil
}

// Valid reports whether t belongs to the closed table set.
func (t Table) Valid() bool {
	return slices.Contains(allTables, t)
}

func (t Table) String() string {
	return string(t)
}
