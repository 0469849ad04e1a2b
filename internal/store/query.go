package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// IDField is the document key; paged queries are ordered by it.
const IDField = "_id"

// Op is a comparison operator. The values double as MongoDB operator names.
type Op string

const (
	Eq  Op = "$eq"
	Lt  Op = "$lt"
	Lte Op = "$lte"
	Gt  Op = "$gt"
	Gte Op = "$gte"
)

// Condition compares one top-level document field with a value.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Query is a conjunction of conditions. The zero Query matches everything.
type Query struct {
	Conditions []Condition
	// SortField orders Query results; paged queries always use IDField.
	SortField string
}

// All matches every document.
func All() Query { return Query{} }

func Where(field string, op Op, value any) Query {
	return Query{}.And(field, op, value)
}

// And returns a copy of q with one more condition.
func (q Query) And(field string, op Op, value any) Query {
	conds := make([]Condition, len(q.Conditions), len(q.Conditions)+1)
	copy(conds, q.Conditions)
	q.Conditions = append(conds, Condition{Field: field, Op: op, Value: value})
	return q
}

func (q Query) OrderBy(field string) Query {
	q.SortField = field
	return q
}

// Fingerprint identifies the kind and filter a cursor was issued for. It does
// not depend on condition order.
func (q Query) Fingerprint(kind Kind) string {
	parts := make([]string, 0, len(q.Conditions))
	for _, c := range q.Conditions {
		parts = append(parts, fmt.Sprintf("%s %s %s", c.Field, c.Op, canonicalValue(c.Value)))
	}
	sort.Strings(parts)

	h := sha256.New()
	h.Write([]byte(kind))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

func (q Query) String() string {
	parts := make([]string, 0, len(q.Conditions))
	for _, c := range q.Conditions {
		parts = append(parts, fmt.Sprintf("%s %s %v", c.Field, c.Op, canonicalValue(c.Value)))
	}
	return strings.Join(parts, " AND ")
}

func canonicalValue(v any) string {
	switch val := v.(type) {
	case time.Time:
		return "time:" + val.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return fmt.Sprintf("%T:%s", v, val.String())
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}
