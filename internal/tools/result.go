package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/calendly"
	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/httpkit"
)

// ErrorResult is the value a tool returns instead of failing. It
// serializes as {"error": "..."}.
type ErrorResult struct {
	Error string `json:"error"`
}

// TimeoutMessage prefixes the error reported when Calendly does not answer
// within calendly.timeout.
const TimeoutMessage = "Calendly did not respond in time"

// errorResult converts err into an ErrorResult. Calendly API errors
// surface the provider's own message verbatim.
func errorResult(err error) ErrorResult {
	var apiErr *calendly.APIError
	if errors.As(err, &apiErr) {
		return ErrorResult{Error: apiErr.Message}
	}
	if httpkit.IsTimeout(err) {
		return ErrorResult{Error: TimeoutMessage + ": " + err.Error()}
	}
	return ErrorResult{Error: err.Error()}
}

// FormatResult renders a tool result as the text handed back to the
// model. Strings pass through unchanged, structured values (maps,
// slices, structs, pointers to them) are encoded as JSON, and any other
// scalar is rendered with fmt.Sprint.
func FormatResult(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "null", nil
	case string:
		return x, nil
	case json.RawMessage:
		return string(x), nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "null", nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode tool result: %w", err)
		}
		return string(data), nil
	default:
		return fmt.Sprint(rv.Interface()), nil
	}
}
