package backup

import (
	"fmt"
)

// ForeignKey is a nullable field that must hold the id of a row in References.
type ForeignKey struct {
	Field      string
	References string
}

// Table describes one entity table taking part in export and restore.
type Table struct {
	Name        string
	ForeignKeys []ForeignKey
	// Transient fields are join-derived and never persisted.
	Transient []string
}

var catalogue = []Table{
	{Name: "customers"},
	{Name: "accounts"},
	{Name: "expense_categories"},
	// last_supplier_id is informational and carries no constraint.
	{Name: "products", Transient: []string{"last_supplier_name"}},
	{Name: "wholesalers"},
	{
		Name:        "needs",
		ForeignKeys: []ForeignKey{{Field: "product_id", References: "products"}},
		Transient:   []string{"product_name"},
	},
	{
		Name:        "services",
		ForeignKeys: []ForeignKey{{Field: "customer_id", References: "customers"}},
		Transient:   []string{"customer_name"},
	},
	{
		Name: "sales",
		ForeignKeys: []ForeignKey{
			{Field: "customer_id", References: "customers"},
			{Field: "product_id", References: "products"},
			{Field: "account_id", References: "accounts"},
		},
		Transient: []string{"customer_name", "product_name", "account_name"},
	},
	{
		Name:        "purchase_invoices",
		ForeignKeys: []ForeignKey{{Field: "wholesaler_id", References: "wholesalers"}},
		Transient:   []string{"wholesaler_name"},
	},
	{
		Name:        "customer_ledger",
		ForeignKeys: []ForeignKey{{Field: "owner_id", References: "customers"}},
		Transient:   []string{"customer_name"},
	},
	{
		Name: "wholesaler_ledger",
		ForeignKeys: []ForeignKey{
			{Field: "owner_id", References: "wholesalers"},
			{Field: "invoice_id", References: "purchase_invoices"},
		},
		Transient: []string{"wholesaler_name", "invoice_number"},
	},
	{
		Name: "account_ledger",
		ForeignKeys: []ForeignKey{
			{Field: "owner_id", References: "accounts"},
			{Field: "customer_entry_id", References: "customer_ledger"},
			{Field: "wholesaler_entry_id", References: "wholesaler_ledger"},
			{Field: "expense_category_id", References: "expense_categories"},
		},
		Transient: []string{"account_name", "category_name"},
	},
}

// Tables lists every table from independent to most dependent. Inserts follow
// this order and deletes follow its reverse.
var Tables = mustOrder(catalogue)

var byName = func() map[string]Table {
	m := make(map[string]Table, len(Tables))
	for _, t := range Tables {
		m[t.Name] = t
	}
	return m
}()

// Lookup returns the catalogue entry for name.
func Lookup(name string) (Table, bool) {
	t, ok := byName[name]
	return t, ok
}

// DeleteOrder returns the tables most dependent first.
func DeleteOrder() []Table {
	out := make([]Table, len(Tables))
	for i, t := range Tables {
		out[len(Tables)-1-i] = t
	}
	return out
}

// TableNames returns the catalogue names in insert order.
func TableNames() []string {
	names := make([]string, len(Tables))
	for i, t := range Tables {
		names[i] = t.Name
	}
	return names
}

// order sorts tables so every table follows the tables it references. Ties
// keep declaration order.
func order(tables []Table) ([]Table, error) {
	known := make(map[string]bool, len(tables))
	for _, t := range tables {
		if known[t.Name] {
			return nil, fmt.Errorf("table %s declared twice", t.Name)
		}
		known[t.Name] = true
	}
	placed := make(map[string]bool, len(tables))
	out := make([]Table, 0, len(tables))
	for len(out) < len(tables) {
		progressed := false
		for _, t := range tables {
			if placed[t.Name] {
				continue
			}
			ready := true
			for _, fk := range t.ForeignKeys {
				if !known[fk.References] {
					return nil, fmt.Errorf("table %s references unknown table %s", t.Name, fk.References)
				}
				if fk.References != t.Name && !placed[fk.References] {
					ready = false
					break
				}
			}
			if ready {
				placed[t.Name] = true
				out = append(out, t)
				progressed = true
			}
		}
		if !progressed {
			return nil, fmt.Errorf("foreign keys form a cycle among %d tables", len(tables)-len(out))
		}
	}
	return out, nil
}

func mustOrder(tables []Table) []Table {
	out, err := order(tables)
	if err != nil {
		panic(err)
	}
	return out
}
