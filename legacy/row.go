package legacy

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Row is one legacy record keyed by column alias. nil means SQL NULL.
//
// Legacy drivers hand back strings, []byte, integers, floats or decimals for the
// same logical column depending on the table, so callers read through the typed
// accessors instead of asserting types.
type Row map[string]any

func (r Row) Has(col string) bool {
	v, ok := r[col]
	return ok && v != nil
}

// String returns the trimmed text form of col, ok=false when the column is NULL or missing.
func (r Row) String(col string) (string, bool) {
	v, ok := r[col]
	if !ok || v == nil {
		return "", false
	}
	return strings.TrimSpace(toText(v)), true
}

// Raw returns the untrimmed text form of col.
func (r Row) Raw(col string) (string, bool) {
	v, ok := r[col]
	if !ok || v == nil {
		return "", false
	}
	return toText(v), true
}

// Int returns col as an integer; decimals are truncated toward zero.
// ok=false for NULL, missing or unparsable values.
func (r Row) Int(col string) (int64, bool) {
	d, ok := r.Decimal(col)
	if !ok {
		return 0, false
	}
	return d.IntPart(), true
}

// Float returns col as a float64.
func (r Row) Float(col string) (float64, bool) {
	d, ok := r.Decimal(col)
	if !ok {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

// Decimal parses col exactly. A comma is accepted as the decimal separator.
func (r Row) Decimal(col string) (decimal.Decimal, bool) {
	v, ok := r[col]
	if !ok || v == nil {
		return decimal.Zero, false
	}
	return ParseDecimal(v)
}

// ParseDecimal converts a driver value into a decimal.
func ParseDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case int64:
		return decimal.NewFromInt(n), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case decimal.Decimal:
		return n, true
	}
	s := strings.TrimSpace(toText(v))
	if s == "" {
		return decimal.Zero, false
	}
	s = strings.Replace(s, ",", ".", 1)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func toText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case decimal.Decimal:
		return t.String()
	case time.Time:
		return t.Format("20060102")
	case bool:
		if t {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(t)
	}
}
