package memstore

import (
	"reflect"
	"strings"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"refill-api-server/internal/apperror"
	"refill-api-server/internal/store"
)

// normalizeConditions runs each condition value through the BSON codec so it
// compares against decoded documents the way MongoDB would see it.
func normalizeConditions(codec *bsoncodec.Registry, conds []store.Condition) ([]store.Condition, error) {
	out := make([]store.Condition, len(conds))
	for i, c := range conds {
		raw, err := store.Marshal(codec, bson.D{{Key: "v", Value: c.Value}})
		if err != nil {
			return nil, apperror.NewValidation("unsupported query value for " + c.Field)
		}
		var m bson.M
		if err := bson.Unmarshal(raw, &m); err != nil {
			return nil, apperror.NewPermanent(err)
		}
		out[i] = store.Condition{Field: c.Field, Op: c.Op, Value: m["v"]}
	}
	return out, nil
}

func matchesAll(m bson.M, conds []store.Condition) bool {
	for _, c := range conds {
		v, ok := m[c.Field]
		if !ok {
			return false
		}
		cmp, comparable := compare(v, c.Value)
		if !comparable {
			return false
		}
		switch c.Op {
		case store.Eq:
			if cmp != 0 {
				return false
			}
		case store.Lt:
			if cmp >= 0 {
				return false
			}
		case store.Lte:
			if cmp > 0 {
				return false
			}
		case store.Gt:
			if cmp <= 0 {
				return false
			}
		case store.Gte:
			if cmp < 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compare orders two decoded BSON values. Values of unrelated types are not
// comparable, matching MongoDB's type-bracketed comparisons.
func compare(a, b any) (int, bool) {
	if af, ok := number(a); ok {
		bf, ok := number(b)
		if !ok {
			return 0, false
		}
		return af.Cmp(bf), true
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case primitive.DateTime:
		bv, ok := b.(primitive.DateTime)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		default:
			return 0, true
		}
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if av == bv {
			return 0, true
		}
		if !av {
			return -1, true
		}
		return 1, true
	}

	if reflect.DeepEqual(a, b) {
		return 0, true
	}
	return 0, false
}

func number(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case float64:
		return decimal.NewFromFloat(n), true
	case primitive.Decimal128:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	default:
		return decimal.Decimal{}, false
	}
}
