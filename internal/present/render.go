package present

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

const (
	FormatTable    = "table"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

func ValidFormat(format string) bool {
	switch format {
	case FormatTable, FormatCSV, FormatMarkdown, "md", FormatJSON:
		return true
	default:
		return false
	}
}

// WriteText renders a Display for terminals and pipes.
func WriteText(w io.Writer, d Display, format string) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}

	switch d.State {
	case StateError:
		_, err := fmt.Fprintf(w, "❌ %s\n", d.Message)
		return err
	case StateEmpty:
		_, err := fmt.Fprintf(w, "✅ %s\n", d.Message)
		return err
	}

	switch format {
	case FormatCSV:
		return writeCSV(w, d)
	case FormatMarkdown, "md":
		return writeMarkdown(w, d)
	default:
		return writeTable(w, d)
	}
}

func writeTable(w io.Writer, d Display) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(d.Headers))
	for i, col := range d.Headers {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, values := range d.Rows {
		row := make(table.Row, len(values))
		for i, value := range values {
			row[i] = Cell(value)
		}
		t.AppendRow(row)
	}

	t.Render()
	_, err := fmt.Fprintf(w, "(%d rows)\n", len(d.Rows))
	return err
}

func writeCSV(w io.Writer, d Display) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(d.Headers); err != nil {
		return err
	}
	for _, values := range d.Rows {
		record := make([]string, len(values))
		for i, value := range values {
			record[i] = Cell(value)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeMarkdown(w io.Writer, d Display) error {
	if _, err := fmt.Fprintf(w, "| %s |\n", strings.Join(d.Headers, " | ")); err != nil {
		return err
	}
	seps := make([]string, len(d.Headers))
	for i := range seps {
		seps[i] = "---"
	}
	if _, err := fmt.Fprintf(w, "| %s |\n", strings.Join(seps, " | ")); err != nil {
		return err
	}
	for _, values := range d.Rows {
		cells := make([]string, len(values))
		for i, value := range values {
			cells[i] = strings.ReplaceAll(Cell(value), "|", `\|`)
		}
		if _, err := fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | ")); err != nil {
			return err
		}
	}
	return nil
}
