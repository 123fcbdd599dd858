package query

import (
	"errors"
	"testing"

	"github.com/askql/askql/internal/schema"
)

func TestReadOnlyGuard(t *testing.T) {
	allowed := []string{
		"SELECT 1",
		"  select * from customers",
		"WITH x AS (SELECT 1) SELECT * FROM x",
		"-- list\nSELECT 1",
		"/* c */ SELECT 1",
	}
	for _, sqlText := range allowed {
		if err := (ReadOnlyGuard{}).Check(sqlText); err != nil {
			t.Fatalf("Check(%q) error = %v", sqlText, err)
		}
	}
	rejected := []string{
		"DELETE FROM customers",
		"DROP TABLE orders",
		"INSERT INTO products VALUES (4, 'x', 1, 1)",
		"SELECT 1; DELETE FROM customers",
		"",
		"-- only a comment",
	}
	for _, sqlText := range rejected {
		err := (ReadOnlyGuard{}).Check(sqlText)
		if !errors.Is(err, ErrStatementRejected) {
			t.Fatalf("Check(%q) error = %v, want ErrStatementRejected", sqlText, err)
		}
	}
}

func TestKnownTablesGuard(t *testing.T) {
	guard := KnownTablesGuard{Tables: schema.Default()}
	allowed := []string{
		"SELECT first_name FROM customers",
		"SELECT * FROM orders o JOIN customers c ON c.id = o.customer_id",
		`SELECT * FROM "products"`,
		"WITH big AS (SELECT * FROM orders WHERE quantity > 1) SELECT * FROM big",
		"SELECT 1",
		"SELECT EXTRACT(year FROM join_date) FROM customers",
		"SELECT TRIM(LEADING 'x' FROM email), SUBSTRING(first_name FROM 1 FOR 2) FROM customers",
		"SELECT first_name FROM customers WHERE first_name = 'from here'",
		"SELECT first_name FROM customers -- join audit\n",
		"SELECT * FROM customers WHERE id IN (SELECT customer_id FROM orders)",
		"SELECT c.first_name FROM (SELECT * FROM customers) AS c",
	}
	for _, sqlText := range allowed {
		if err := guard.Check(sqlText); err != nil {
			t.Fatalf("Check(%q) error = %v", sqlText, err)
		}
	}
	if err := guard.Check("SELECT * FROM suppliers"); !errors.Is(err, ErrStatementRejected) {
		t.Fatalf("Check(suppliers) error = %v", err)
	}
	if err := guard.Check("SELECT * FROM orders JOIN sqlite_master ON 1=1"); !errors.Is(err, ErrStatementRejected) {
		t.Fatalf("Check(sqlite_master) error = %v", err)
	}
	if err := guard.Check("SELECT * FROM customers WHERE id IN (SELECT id FROM suppliers)"); !errors.Is(err, ErrStatementRejected) {
		t.Fatalf("Check(subquery suppliers) error = %v", err)
	}
}

func TestGuardForMode(t *testing.T) {
	off, err := GuardForMode("off", schema.Default())
	if err != nil || off != nil {
		t.Fatalf("GuardForMode(off) = %v, %v", off, err)
	}
	strict, err := GuardForMode("strict", schema.Default())
	if err != nil {
		t.Fatalf("GuardForMode(strict) error = %v", err)
	}
	if err := strict.Check("DELETE FROM customers"); err == nil {
		t.Fatal("strict guard should reject DELETE")
	}
	if err := strict.Check("SELECT * FROM suppliers"); err == nil {
		t.Fatal("strict guard should reject unknown tables")
	}
	if _, err := GuardForMode("bogus", nil); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
