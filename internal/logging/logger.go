package logging

import "github.com/raysh454/flipradar/internal/interfaces"

// Logger and Field are declared in interfaces; the aliases let callers
// write logging.F(...) next to logging.Logger.
type (
	Logger = interfaces.Logger
	Field  = interfaces.Field
)

// F is shorthand for Field{Key: key, Value: value}.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Err wraps an error under the "error" key. A nil error is logged as an empty string.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: ""}
	}
	return Field{Key: "error", Value: err.Error()}
}
