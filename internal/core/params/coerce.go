package params

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// CoerceDecimal casts a loosely-typed payload field to a nullable
// decimal. JSON numbers arrive as float64; producers also emit numeric
// strings. Anything unparseable yields a null, never an error — a bad
// numeric field must not fail the row.
func CoerceDecimal(v any) decimal.NullDecimal {
	switch val := v.(type) {
	case nil:
		return decimal.NullDecimal{}
	case float64:
		return decimal.NullDecimal{Decimal: decimal.NewFromFloat(val), Valid: true}
	case float32:
		return decimal.NullDecimal{Decimal: decimal.NewFromFloat(float64(val)), Valid: true}
	case int:
		return decimal.NullDecimal{Decimal: decimal.NewFromInt(int64(val)), Valid: true}
	case int64:
		return decimal.NullDecimal{Decimal: decimal.NewFromInt(val), Valid: true}
	case string:
		s := strings.TrimSpace(val)
		if s == "" || s == "(not set)" || s == "null" {
			return decimal.NullDecimal{}
		}
		if d, err := decimal.NewFromString(s); err == nil {
			return decimal.NullDecimal{Decimal: d, Valid: true}
		}
	}
	return decimal.NullDecimal{}
}

// CoerceInt64 casts a loosely-typed payload field to a nullable int64
// with the same best-effort semantics as CoerceDecimal. Floats are
// truncated toward zero.
func CoerceInt64(v any) *int64 {
	switch val := v.(type) {
	case nil:
		return nil
	case float64:
		n := int64(val)
		return &n
	case int:
		n := int64(val)
		return &n
	case int64:
		n := val
		return &n
	case string:
		s := strings.TrimSpace(val)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return &n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			n := int64(f)
			return &n
		}
	}
	return nil
}
