// Package params flattens the dynamic key/value parameter bag of a raw
// item into a fixed set of typed attributes. The mapping is data, not
// branching logic: adding a parameter means adding a Target entry.
package params

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kiln-data/shopfunnel/internal/bronze"
	"github.com/shopspring/decimal"
)

// Kind is the coercion target of a flattened attribute.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindDecimal
)

// Target binds a set of source-key aliases to one output column.
// Aliases are listed in precedence order: the first alias that yields
// a non-null coerced value wins, regardless of bag order.
type Target struct {
	Column  string
	Kind    Kind
	Aliases []string
}

// Value is one flattened attribute. Only the field matching the
// target's Kind is populated.
type Value struct {
	Kind Kind
	Str  *string
	Int  *int64
	Dec  decimal.NullDecimal
}

// Mapping is an ordered collection of targets.
type Mapping struct {
	targets []Target
}

// NewMapping builds a mapping from the given targets.
func NewMapping(targets []Target) *Mapping {
	return &Mapping{targets: targets}
}

// Columns for the flattened item parameter attributes.
const (
	ColInStock              = "in_stock"
	ColDiscounts            = "discounts"
	ColDiscountAmount       = "discount_amount"
	ColTotalPrice           = "total_price"
	ColNumberOfInstallments = "number_of_installments"
	ColInstallmentPrice     = "installment_price"
)

// DefaultMapping covers the known interesting parameter keys observed
// in production payloads, including producer typos. The canonical key
// always ranks first; misspelled variants follow in precedence order.
func DefaultMapping() *Mapping {
	return NewMapping([]Target{
		{Column: ColInStock, Kind: KindInt, Aliases: []string{"in_stock", "instock", "is_in_stock"}},
		{Column: ColDiscounts, Kind: KindString, Aliases: []string{"discounts", "discount_codes"}},
		{Column: ColDiscountAmount, Kind: KindDecimal, Aliases: []string{"discount_amount", "discount", "discountt"}},
		{Column: ColTotalPrice, Kind: KindDecimal, Aliases: []string{"total_price", "totalprice"}},
		{Column: ColNumberOfInstallments, Kind: KindInt, Aliases: []string{"number_of_installments", "installments"}},
		{Column: ColInstallmentPrice, Kind: KindString, Aliases: []string{"installment_price"}},
	})
}

// Flatten projects a parameter bag onto the mapping's columns.
// Unknown keys are ignored. For each target, aliases are resolved in
// declaration order and the first non-null coerced value wins; a value
// that fails coercion counts as null and resolution moves on.
func (m *Mapping) Flatten(bag []bronze.ItemParam) map[string]Value {
	byKey := make(map[string]bronze.ParamValue, len(bag))
	for _, p := range bag {
		key := strings.ToLower(strings.TrimSpace(p.Key))
		if key == "" {
			continue
		}
		// First occurrence wins when a producer repeats a key.
		if _, seen := byKey[key]; !seen {
			byKey[key] = p.Value
		}
	}

	out := make(map[string]Value, len(m.targets))
	for _, target := range m.targets {
		for _, alias := range target.Aliases {
			raw, ok := byKey[alias]
			if !ok {
				continue
			}
			if v, ok := coerce(raw, target.Kind); ok {
				out[target.Column] = v
				break
			}
		}
	}
	return out
}

// coerce converts a typed parameter value to the target kind.
// The raw sub-fields are tried in a fixed order (string, int, float,
// double); casts are best-effort and report failure instead of erroring.
func coerce(raw bronze.ParamValue, kind Kind) (Value, bool) {
	switch kind {
	case KindString:
		if s, ok := rawString(raw); ok {
			return Value{Kind: KindString, Str: &s}, true
		}
	case KindInt:
		if n, ok := rawInt(raw); ok {
			return Value{Kind: KindInt, Int: &n}, true
		}
	case KindDecimal:
		if d, ok := rawDecimal(raw); ok {
			return Value{Kind: KindDecimal, Dec: decimal.NullDecimal{Decimal: d, Valid: true}}, true
		}
	}
	return Value{}, false
}

func rawString(raw bronze.ParamValue) (string, bool) {
	if raw.StringValue != nil {
		s := strings.TrimSpace(fmt.Sprintf("%v", raw.StringValue))
		if s != "" && s != "(not set)" && s != "null" {
			return s, true
		}
	}
	if raw.IntValue != nil {
		return strconv.FormatInt(*raw.IntValue, 10), true
	}
	if raw.FloatValue != nil {
		return strconv.FormatFloat(*raw.FloatValue, 'f', -1, 64), true
	}
	if raw.DoubleValue != nil {
		return strconv.FormatFloat(*raw.DoubleValue, 'f', -1, 64), true
	}
	return "", false
}

func rawInt(raw bronze.ParamValue) (int64, bool) {
	if raw.IntValue != nil {
		return *raw.IntValue, true
	}
	if raw.FloatValue != nil {
		return int64(*raw.FloatValue), true
	}
	if raw.DoubleValue != nil {
		return int64(*raw.DoubleValue), true
	}
	if s, ok := rawString(bronze.ParamValue{StringValue: raw.StringValue}); ok {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

func rawDecimal(raw bronze.ParamValue) (decimal.Decimal, bool) {
	if raw.IntValue != nil {
		return decimal.NewFromInt(*raw.IntValue), true
	}
	if raw.FloatValue != nil {
		return decimal.NewFromFloat(*raw.FloatValue), true
	}
	if raw.DoubleValue != nil {
		return decimal.NewFromFloat(*raw.DoubleValue), true
	}
	if s, ok := rawString(bronze.ParamValue{StringValue: raw.StringValue}); ok {
		if d, err := decimal.NewFromString(s); err == nil {
			return d, true
		}
	}
	return decimal.Decimal{}, false
}
