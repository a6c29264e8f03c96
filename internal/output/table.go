package output

import (
	"strconv"
	"strings"
	"unicode"
)

// separatorMarker opens the horizontal-rule lines that bound the table dump.
const separatorMarker = "+-"

// ParseTable locates the first box-drawn table in the given lines and
// extracts a Schema and typed rows from it. Input with no table at all is a
// valid "no tabular output" result: both return values are empty and err is
// nil. The only error is a ConversionError from type inference.
func ParseTable(lines []string) (Schema, []Row, error) {
	sep := -1
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), separatorMarker) {
			sep = i
			break
		}
	}
	if sep == -1 || sep+1 >= len(lines) {
		return Schema{}, []Row{}, nil
	}

	names := splitTableLine(lines[sep+1])
	if len(names) == 0 {
		return Schema{}, []Row{}, nil
	}
	schema := make(Schema, 0, len(names))
	for _, name := range names {
		schema = append(schema, Column{Name: name, Type: TypeString, Nullable: false})
	}

	// Data starts two lines after the header, past the second separator.
	var raw [][]string
	for i := sep + 3; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, separatorMarker) {
			break
		}
		raw = append(raw, splitTableLine(line))
	}

	if len(raw) == 0 {
		return schema, []Row{}, nil
	}
	return InferTypes(schema, raw)
}

// splitTableLine splits a `|`-delimited table line into trimmed cells,
// dropping empty and whitespace-only fragments (the fragments outside the
// leading and trailing delimiters are always empty).
func splitTableLine(line string) []string {
	var cells []string
	for _, frag := range strings.Split(line, "|") {
		frag = strings.TrimSpace(frag)
		if frag != "" {
			cells = append(cells, frag)
		}
	}
	return cells
}

// InferTypes classifies each column from the first data row and converts
// every row's values to the inferred types. The service's log endpoint
// returns only the printed SQL output, never schema metadata, so this
// best-effort pass is all the typing a result set gets: digit-only values
// become numbers, true/false tokens become booleans, the rest stays text.
//
// Inference only runs when the first row has exactly one value per column;
// otherwise rows are returned as strings with the schema unchanged. A later
// row that cannot be converted to its column's inferred type yields a
// ConversionError.
func InferTypes(schema Schema, raw [][]string) (Schema, []Row, error) {
	if len(raw) == 0 || len(raw[0]) != len(schema) {
		return schema, stringRows(raw), nil
	}

	types := make([]ColumnType, len(schema))
	for i, v := range raw[0] {
		types[i] = classify(v)
	}

	rows := make([]Row, len(raw))
	for ri, rawRow := range raw {
		row := make(Row, len(rawRow))
		for ci, v := range rawRow {
			if ci >= len(types) {
				row[ci] = v
				continue
			}
			switch types[ci] {
			case TypeNumber:
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return nil, nil, &ConversionError{
						Column: schema[ci].Name,
						Row:    ri + 1,
						Value:  v,
						Type:   TypeNumber,
						Err:    err,
					}
				}
				row[ci] = f
			case TypeBoolean:
				row[ci] = strings.EqualFold(v, "true")
			default:
				row[ci] = v
			}
		}
		rows[ri] = row
	}

	for i := range schema {
		schema[i].Type = types[i]
	}
	return schema, rows, nil
}

func classify(v string) ColumnType {
	if isNumeric(v) {
		return TypeNumber
	}
	if strings.EqualFold(v, "true") || strings.EqualFold(v, "false") {
		return TypeBoolean
	}
	return TypeString
}

// isNumeric reports whether v consists solely of digits. Signs and decimal
// points deliberately do not qualify; anything beyond a plain digit run is
// left as text.
func isNumeric(v string) bool {
	if v == "" {
		return false
	}
	for _, r := range v {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func stringRows(raw [][]string) []Row {
	rows := make([]Row, len(raw))
	for i, rawRow := range raw {
		row := make(Row, len(rawRow))
		for j, v := range rawRow {
			row[j] = v
		}
		rows[i] = row
	}
	return rows
}
