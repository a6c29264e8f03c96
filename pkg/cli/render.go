package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"cde-sql/internal/output"
)

func validateOutputFormat(format string) error {
	switch format {
	case "table", "json":
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table or json)", format)
	}
}

// Render formats a result set in the given output format.
func Render(format string, cols []output.Column, rows []output.Row) ([]byte, error) {
	switch format {
	case "json":
		return renderJSON(cols, rows)
	default:
		return renderTable(cols, rows), nil
	}
}

// renderTable prints the rows with columns padded to the widest cell.
func renderTable(cols []output.Column, rows []output.Row) []byte {
	if len(cols) == 0 {
		return []byte("(no results)\n")
	}

	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = len(c.Name)
	}
	cells := make([][]string, len(rows))
	for ri, row := range rows {
		cells[ri] = make([]string, len(cols))
		for ci := range cols {
			var v string
			if ci < len(row) {
				v = cellText(row[ci])
			}
			cells[ri][ci] = v
			if len(v) > widths[ci] {
				widths[ci] = len(v)
			}
		}
	}

	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteString("  ")
		}
		fmt.Fprintf(&b, "%-*s", widths[i], c.Name)
	}
	b.WriteByte('\n')
	for i := range cols {
		if i > 0 {
			b.WriteString("  ")
		}
		b.WriteString(strings.Repeat("-", widths[i]))
	}
	b.WriteByte('\n')
	for _, row := range cells {
		for i, v := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			fmt.Fprintf(&b, "%-*s", widths[i], v)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "(%d rows)\n", len(rows))
	return []byte(b.String())
}

func cellText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// renderJSON encodes the rows as an array of column-name keyed objects.
func renderJSON(cols []output.Column, rows []output.Row) ([]byte, error) {
	objs := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		obj := make(map[string]any, len(cols))
		for i, c := range cols {
			if i < len(row) {
				obj[c.Name] = row[i]
			} else {
				obj[c.Name] = nil
			}
		}
		objs = append(objs, obj)
	}
	out, err := json.MarshalIndent(objs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	return append(out, '\n'), nil
}
