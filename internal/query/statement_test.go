package query

import (
	"errors"
	"testing"
)

func TestSingleStatement(t *testing.T) {
	cases := map[string]string{
		"SELECT 1":                        "SELECT 1",
		"  SELECT 1;  ":                   "SELECT 1",
		"SELECT 1;;\n":                    "SELECT 1",
		"SELECT 1; -- done":               "SELECT 1",
		"SELECT ';' AS s":                 "SELECT ';' AS s",
		"SELECT 'it''s; fine'":            "SELECT 'it''s; fine'",
		`SELECT 1 AS "a;b"`:               `SELECT 1 AS "a;b"`,
		"SELECT 1 /* ; */ FROM customers": "SELECT 1 /* ; */ FROM customers",
		"   ":                             "",
		";":                               "",
	}
	for input, want := range cases {
		got, err := SingleStatement(input)
		if err != nil {
			t.Fatalf("SingleStatement(%q) error = %v", input, err)
		}
		if got != want {
			t.Fatalf("SingleStatement(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestSingleStatementRejectsStackedStatements(t *testing.T) {
	for _, input := range []string{
		"SELECT 1; DELETE FROM customers",
		"SELECT 1;\nDROP TABLE orders;",
		"SELECT 'x'; SELECT 2",
	} {
		if _, err := SingleStatement(input); !errors.Is(err, ErrStatementRejected) {
			t.Fatalf("SingleStatement(%q) error = %v, want ErrStatementRejected", input, err)
		}
	}
}
