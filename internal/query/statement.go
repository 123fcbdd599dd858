package query

import (
	"fmt"
	"strings"
)

// SingleStatement trims whitespace and trailing semicolons and rejects text
// that still holds more than one statement. Semicolons inside string
// literals, quoted identifiers and comments do not separate statements.
func SingleStatement(sqlText string) (string, error) {
	masked := maskLiterals(sqlText)
	end := len(strings.TrimRight(masked, " \t\r\n;"))
	start := len(masked) - len(strings.TrimLeft(masked, " \t\r\n"))
	if start >= end {
		return "", nil
	}
	if strings.Contains(masked[start:end], ";") {
		return "", fmt.Errorf("%w: only one statement may be executed", ErrStatementRejected)
	}
	return sqlText[start:end], nil
}

// maskLiterals blanks the contents of string literals and comments with
// spaces. Quote characters, quoted identifiers and byte offsets are kept.
func maskLiterals(sqlText string) string {
	out := []byte(sqlText)
	for i := 0; i < len(out); {
		switch {
		case out[i] == '\'':
			i++
			for i < len(out) {
				if out[i] == '\'' {
					if i+1 < len(out) && out[i+1] == '\'' {
						out[i], out[i+1] = ' ', ' '
						i += 2
						continue
					}
					break
				}
				out[i] = ' '
				i++
			}
			i++
		case out[i] == '"':
			i++
			for i < len(out) && out[i] != '"' {
				i++
			}
			i++
		case out[i] == '-' && i+1 < len(out) && out[i+1] == '-':
			for i < len(out) && out[i] != '\n' {
				out[i] = ' '
				i++
			}
		case out[i] == '/' && i+1 < len(out) && out[i+1] == '*':
			end := len(out)
			if idx := strings.Index(sqlText[i+2:], "*/"); idx >= 0 {
				end = i + 2 + idx + 2
			}
			for ; i < end; i++ {
				out[i] = ' '
			}
		default:
			i++
		}
	}
	return string(out)
}
