package present

import (
	"fmt"

	"github.com/askql/askql/internal/query"
)

type State string

const (
	StateTable State = "table"
	StateEmpty State = "empty"
	StateError State = "error"
)

const NoResultsMessage = "Query executed successfully, but returned no results."

// Display is the render-ready result shared by every entry point.
type Display struct {
	State   State    `json:"state"`
	Headers []string `json:"headers"`
	Rows    [][]any  `json:"rows"`
	Message string   `json:"message,omitempty"`
}

func Present(outcome query.Outcome) Display {
	if outcome.Failed() {
		return Error(outcome.Message)
	}
	headers := outcome.Result.Columns
	if headers == nil {
		headers = []string{}
	}
	if len(outcome.Result.Rows) == 0 {
		return Display{State: StateEmpty, Headers: headers, Rows: [][]any{}, Message: NoResultsMessage}
	}
	return Display{State: StateTable, Headers: headers, Rows: outcome.Result.Rows}
}

func Error(message string) Display {
	if message == "" {
		message = "Error: unknown failure"
	}
	return Display{State: StateError, Headers: []string{}, Rows: [][]any{}, Message: message}
}

func (d Display) IsError() bool {
	return d.State == StateError
}

// Cell formats a scalar for text output.
func Cell(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(typed)
	case string:
		return typed
	default:
		return fmt.Sprintf("%v", typed)
	}
}
