package reconcile

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Tolerance is the absolute difference under which two numeric values compare equal.
const Tolerance = 1e-9

const timeLayout = "2006-01-02 15:04:05"

// Equal is the robust equality used to decide whether a column changed:
// both nil are equal, exactly one nil differs, otherwise the trimmed text forms
// are compared as numbers within Tolerance when both parse, else as strings.
func Equal(a, b any) bool {
	a, b = deref(a), deref(b)
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	s1 := strings.TrimSpace(Text(a))
	s2 := strings.TrimSpace(Text(b))

	f1, err1 := strconv.ParseFloat(s1, 64)
	f2, err2 := strconv.ParseFloat(s2, 64)
	if err1 == nil && err2 == nil && math.Abs(f1-f2) < Tolerance {
		return true
	}
	return s1 == s2
}

// Text renders a column value the way it is compared and logged.
func Text(v any) string {
	v = deref(v)
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.Format(timeLayout)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case bool:
		if t {
			return "1"
		}
		return "0"
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// deref unwraps pointers; a nil pointer becomes an untyped nil.
func deref(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}
