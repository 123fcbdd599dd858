package nl2sql

import (
	"fmt"
	"strings"

	"github.com/askql/askql/internal/schema"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectDuckDB   Dialect = "duckdb"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) label() string {
	switch d {
	case DialectDuckDB:
		return "DuckDB"
	case DialectPostgres:
		return "PostgreSQL"
	default:
		return "SQLite"
	}
}

const promptCue = "Generated SQL Query:"

// BuildPrompt composes the role instruction, the schema and the verbatim
// question. The question is not validated.
func BuildPrompt(descriptor schema.Descriptor, question string) string {
	return BuildDialectPrompt(DialectSQLite, descriptor, question)
}

func BuildDialectPrompt(dialect Dialect, descriptor schema.Descriptor, question string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert %s programmer. Your task is to write SQL queries based on natural language questions.\n", dialect.label())
	b.WriteString("You will be given a question and the database schema.\n")
	b.WriteString("Your response must be ONLY the SQL query, with no other text, explanation, or markdown.\n\n")
	b.WriteString("Here is the database schema:\n")
	b.WriteString(descriptor.Text())
	b.WriteString("\nHere is the user's question:\n")
	b.WriteString(`"` + question + "\"\n\n")
	b.WriteString(promptCue)
	b.WriteString("\n")
	return b.String()
}
