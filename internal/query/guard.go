package query

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrStatementRejected = errors.New("statement rejected")

// Guard is an optional check run on generated SQL before execution.
type Guard interface {
	Check(sql string) error
}

// ReadOnlyGuard accepts SELECT and WITH statements only.
type ReadOnlyGuard struct{}

func (ReadOnlyGuard) Check(sqlText string) error {
	if _, err := SingleStatement(sqlText); err != nil {
		return err
	}
	normalized := strings.ToLower(strings.TrimSpace(stripLeadingComments(sqlText)))
	if strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with") {
		return nil
	}
	return fmt.Errorf("%w: only read-only SELECT/WITH queries are allowed", ErrStatementRejected)
}

type TableLookup interface {
	HasTable(name string) bool
}

var cteNamePattern = regexp.MustCompile(`(?i)(?:\bwith\s+(?:recursive\s+)?|,\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s+(?:\([^)]*\)\s*)?as\s*\(`)

var sqlTokenPattern = regexp.MustCompile(`"[^"]*"|[a-zA-Z_][a-zA-Z0-9_.]*|[()]`)

// KnownTablesGuard rejects FROM/JOIN references to tables the schema does not
// describe. It scans tokens and is not a SQL parser: string literals and
// comments are skipped, and FROM inside parentheses only counts when the
// parentheses open a subquery, so EXTRACT(year FROM col) is not a reference.
type KnownTablesGuard struct {
	Tables TableLookup
}

func (g KnownTablesGuard) Check(sqlText string) error {
	if g.Tables == nil {
		return nil
	}
	masked := maskLiterals(sqlText)
	ctes := map[string]struct{}{}
	for _, match := range cteNamePattern.FindAllStringSubmatch(masked, -1) {
		ctes[strings.ToLower(match[1])] = struct{}{}
	}
	for _, name := range tableReferences(masked) {
		if _, ok := ctes[strings.ToLower(name)]; ok {
			continue
		}
		if !g.Tables.HasTable(name) {
			return fmt.Errorf("%w: unknown table %q", ErrStatementRejected, name)
		}
	}
	return nil
}

// tableReferences returns the names following FROM or JOIN at the top level
// or directly inside a subquery.
func tableReferences(masked string) []string {
	var (
		names       []string
		subquery    []bool
		openedParen bool
		wantTable   bool
	)
	for _, token := range sqlTokenPattern.FindAllString(masked, -1) {
		lower := strings.ToLower(token)
		if openedParen {
			subquery[len(subquery)-1] = lower == "select" || lower == "with"
			openedParen = false
		}
		switch {
		case token == "(":
			subquery = append(subquery, false)
			openedParen = true
			wantTable = false
			continue
		case token == ")":
			if len(subquery) > 0 {
				subquery = subquery[:len(subquery)-1]
			}
			wantTable = false
			continue
		}
		if wantTable {
			wantTable = false
			name := strings.Trim(token, `"`)
			if idx := strings.LastIndex(name, "."); idx >= 0 {
				name = name[idx+1:]
			}
			names = append(names, name)
			continue
		}
		if lower == "from" || lower == "join" {
			wantTable = len(subquery) == 0 || subquery[len(subquery)-1]
		}
	}
	return names
}

type chain []Guard

func (c chain) Check(sqlText string) error {
	for _, guard := range c {
		if err := guard.Check(sqlText); err != nil {
			return err
		}
	}
	return nil
}

// Guards combines guards in order, skipping nil entries.
func Guards(guards ...Guard) Guard {
	filtered := make(chain, 0, len(guards))
	for _, guard := range guards {
		if guard != nil {
			filtered = append(filtered, guard)
		}
	}
	return filtered
}

// GuardForMode maps the configured guard mode to a Guard. "off" returns nil.
func GuardForMode(mode string, tables TableLookup) (Guard, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "off", "":
		return nil, nil
	case "read_only":
		return ReadOnlyGuard{}, nil
	case "strict":
		return Guards(ReadOnlyGuard{}, KnownTablesGuard{Tables: tables}), nil
	default:
		return nil, fmt.Errorf("unknown sql guard mode %q", mode)
	}
}

func stripLeadingComments(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for {
		switch {
		case strings.HasPrefix(trimmed, "--"):
			idx := strings.Index(trimmed, "\n")
			if idx < 0 {
				return ""
			}
			trimmed = strings.TrimSpace(trimmed[idx+1:])
		case strings.HasPrefix(trimmed, "/*"):
			idx := strings.Index(trimmed, "*/")
			if idx < 0 {
				return ""
			}
			trimmed = strings.TrimSpace(trimmed[idx+2:])
		default:
			return trimmed
		}
	}
}
