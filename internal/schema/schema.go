package schema

import (
	"strings"
)

type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
	References string `json:"references,omitempty"`
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Descriptor is the queryable schema handed to the model as grounding
// context. It is never mutated after construction.
type Descriptor struct {
	tables []Table
}

func New(tables ...Table) Descriptor {
	copied := make([]Table, 0, len(tables))
	for _, table := range tables {
		columns := make([]Column, len(table.Columns))
		copy(columns, table.Columns)
		copied = append(copied, Table{Name: table.Name, Columns: columns})
	}
	return Descriptor{tables: copied}
}

// Default describes the demo dataset created by the embedded migrations.
func Default() Descriptor {
	return New(
		Table{Name: "customers", Columns: []Column{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "first_name", Type: "TEXT"},
			{Name: "last_name", Type: "TEXT"},
			{Name: "email", Type: "TEXT"},
			{Name: "join_date", Type: "TEXT"},
		}},
		Table{Name: "products", Columns: []Column{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "name", Type: "TEXT"},
			{Name: "price", Type: "REAL"},
			{Name: "stock", Type: "INTEGER"},
		}},
		Table{Name: "orders", Columns: []Column{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "customer_id", Type: "INTEGER", References: "customers(id)"},
			{Name: "product_id", Type: "INTEGER", References: "products(id)"},
			{Name: "order_date", Type: "TEXT"},
			{Name: "quantity", Type: "INTEGER"},
		}},
	)
}

func (d Descriptor) Tables() []Table {
	out := make([]Table, 0, len(d.tables))
	for _, table := range d.tables {
		columns := make([]Column, len(table.Columns))
		copy(columns, table.Columns)
		out = append(out, Table{Name: table.Name, Columns: columns})
	}
	return out
}

func (d Descriptor) HasTable(name string) bool {
	name = strings.TrimSpace(name)
	for _, table := range d.tables {
		if strings.EqualFold(table.Name, name) {
			return true
		}
	}
	return false
}

// Text renders the descriptor as CREATE TABLE statements in declaration order.
func (d Descriptor) Text() string {
	var b strings.Builder
	for i, table := range d.tables {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("CREATE TABLE ")
		b.WriteString(table.Name)
		b.WriteString(" (\n")
		for j, column := range table.Columns {
			b.WriteString("    ")
			b.WriteString(column.Name)
			b.WriteString(" ")
			b.WriteString(column.Type)
			if column.PrimaryKey {
				b.WriteString(" PRIMARY KEY")
			}
			if column.References != "" {
				b.WriteString(" REFERENCES ")
				b.WriteString(column.References)
			}
			if j < len(table.Columns)-1 {
				b.WriteString(",")
			}
			b.WriteString("\n")
		}
		b.WriteString(");\n")
	}
	return b.String()
}
