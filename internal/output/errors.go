package output

import "fmt"

// ParseError reports a malformed line in an event log.
type ParseError struct {
	Line int // 1-based line number within the log
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse event log line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ConversionError reports a value that could not be converted to the type
// inferred for its column. Type inference classifies from the first data row
// only, so a later row can disagree; that disagreement is fatal for the
// whole parse rather than producing a partially typed result set.
type ConversionError struct {
	Column string
	Row    int // 1-based data row number
	Value  string
	Type   ColumnType
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert row %d column %q value %q to %s: %v",
		e.Row, e.Column, e.Value, e.Type, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }
