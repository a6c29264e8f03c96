// Package output turns the raw console output of a finished Spark job back
// into structured data. The job-execution service returns driver logs as
// plain text, so the tabular result of a SQL statement has to be recovered
// from the engine's box-drawn table dump, and column types have to be
// inferred from the data itself.
package output

import "strings"

// LogKind names the shape of a fetched log body and selects its parser:
// ParseTable for LogTabular, ParseEvents for LogEvent, ParseRaw for LogRaw.
type LogKind string

// Log body shapes.
const (
	LogTabular LogKind = "tabular"
	LogEvent   LogKind = "event"
	LogRaw     LogKind = "raw"
)

// ColumnType is the inferred primitive type of a result column.
type ColumnType string

// Column types recoverable from a text table dump.
const (
	TypeString  ColumnType = "string"
	TypeNumber  ColumnType = "number"
	TypeBoolean ColumnType = "boolean"
)

// Column describes one column of a parsed result set.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Schema is the ordered column list of a parsed result set.
type Schema []Column

// Row holds one result row, positionally aligned with its Schema. Values
// are string, float64 or bool depending on the inferred column type.
type Row []any

// SplitLines splits raw log text into trimmed lines.
func SplitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return lines
}

// ParseRaw is the parser for untabular log text (stderr and friends): it
// returns the trimmed lines unchanged.
func ParseRaw(lines []string) []string {
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}

// Parsed is the tagged result of parsing one log body. Kind says which of
// the remaining fields are populated.
type Parsed struct {
	Kind   LogKind
	Schema Schema
	Rows   []Row
	Events []Event
	Lines  []string
}

// Parse splits text into lines and applies the parser for kind.
func Parse(kind LogKind, text string) (Parsed, error) {
	lines := SplitLines(text)
	switch kind {
	case LogTabular:
		schema, rows, err := ParseTable(lines)
		if err != nil {
			return Parsed{}, err
		}
		return Parsed{Kind: kind, Schema: schema, Rows: rows}, nil
	case LogEvent:
		events, err := ParseEvents(lines)
		if err != nil {
			return Parsed{}, err
		}
		return Parsed{Kind: kind, Events: events}, nil
	default:
		return Parsed{Kind: LogRaw, Lines: ParseRaw(lines)}, nil
	}
}
