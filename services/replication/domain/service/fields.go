package service

import (
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/chetanchaudhari789/MOBO-sub000/shared/common"
)

// fields reads typed values out of a schemaless document. Every accessor
// takes the default to use when the key is absent, null, or of the wrong kind.
type fields struct {
	doc bson.M
}

func newFields(doc bson.M) fields {
	if doc == nil {
		doc = bson.M{}
	}
	return fields{doc: doc}
}

func (f fields) raw(key string) (interface{}, bool) {
	v, ok := f.doc[key]
	if !ok || v == nil {
		return nil, false
	}
	if _, isNull := v.(primitive.Null); isNull {
		return nil, false
	}
	if _, isUndef := v.(primitive.Undefined); isUndef {
		return nil, false
	}
	return v, true
}

// Has reports whether key holds a non-null value
func (f fields) Has(key string) bool {
	_, ok := f.raw(key)
	return ok
}

func (f fields) String(key, def string) string {
	v, ok := f.raw(key)
	if !ok {
		return def
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case primitive.ObjectID:
		return s.Hex()
	case int32:
		return strconv.FormatInt(int64(s), 10)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	}
	return def
}

// OptionalString returns nil for missing or blank values
func (f fields) OptionalString(key string) interface{} {
	if s := f.String(key, ""); s != "" {
		return s
	}
	return nil
}

// number reads a numeric value stored as a BSON number, a Decimal128 or a
// numeric string
func (f fields) number(key string) (float64, bool) {
	v, ok := f.raw(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case primitive.Decimal128:
		if parsed, err := strconv.ParseFloat(n.String(), 64); err == nil {
			return parsed, true
		}
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func (f fields) Int64(key string, def int64) int64 {
	v, ok := f.raw(key)
	if !ok {
		return def
	}
	if n, isInt := v.(int64); isInt {
		return n
	}
	if n, ok := f.number(key); ok {
		return int64(math.Round(n))
	}
	return def
}

// Paise reads a money amount as integer paise. paiseKey already holds
// paise; rupeeKey holds rupees, possibly fractional, and is scaled by 100.
func (f fields) Paise(paiseKey, rupeeKey string) int64 {
	if _, ok := f.number(paiseKey); ok {
		return f.Int64(paiseKey, 0)
	}
	if n, ok := f.number(rupeeKey); ok {
		return int64(math.Round(n * 100))
	}
	return 0
}

// HasMoney reports whether either representation of an amount is present
func (f fields) HasMoney(paiseKey, rupeeKey string) bool {
	_, paise := f.number(paiseKey)
	_, rupees := f.number(rupeeKey)
	return paise || rupees
}

func (f fields) Int(key string, def int) int {
	return int(f.Int64(key, int64(def)))
}

func (f fields) Bool(key string, def bool) bool {
	v, ok := f.raw(key)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed
		}
	case int32:
		return b != 0
	case int64:
		return b != 0
	}
	return def
}

func (f fields) timeValue(key string) (time.Time, bool) {
	v, ok := f.raw(key)
	if !ok {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC(), true
	case time.Time:
		return t.UTC(), true
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0).UTC(), true
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(t)); err == nil {
			return parsed.UTC(), true
		}
	case int64:
		return time.UnixMilli(t).UTC(), true
	}
	return time.Time{}, false
}

func (f fields) Time(key string, def time.Time) time.Time {
	if t, ok := f.timeValue(key); ok {
		return t
	}
	return def
}

// OptionalTime returns nil for a missing or unparseable timestamp
func (f fields) OptionalTime(key string) interface{} {
	if t, ok := f.timeValue(key); ok {
		return t
	}
	return nil
}

// Strings returns the string elements of an array, never nil
func (f fields) Strings(key string) []string {
	out := []string{}
	for _, item := range f.array(key) {
		switch s := item.(type) {
		case string:
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		case primitive.ObjectID:
			out = append(out, s.Hex())
		}
	}
	return out
}

func (f fields) array(key string) []interface{} {
	v, ok := f.raw(key)
	if !ok {
		return nil
	}
	switch a := v.(type) {
	case primitive.A:
		return []interface{}(a)
	case []interface{}:
		return a
	case []string:
		out := make([]interface{}, len(a))
		for i := range a {
			out[i] = a[i]
		}
		return out
	}
	return nil
}

// Docs returns the sub-documents of an array; non-document elements are dropped.
func (f fields) Docs(key string) []fields {
	var out []fields
	for _, item := range f.array(key) {
		if doc, ok := toDoc(item); ok {
			out = append(out, newFields(doc))
		}
	}
	return out
}

// Sub returns a nested document, empty when absent
func (f fields) Sub(key string) fields {
	v, ok := f.raw(key)
	if !ok {
		return newFields(nil)
	}
	if doc, ok := toDoc(v); ok {
		return newFields(doc)
	}
	return newFields(nil)
}

// Ref returns a referenced source id as a string
func (f fields) Ref(key string) string {
	v, ok := f.raw(key)
	if !ok {
		return ""
	}
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return strings.TrimSpace(id)
	}
	if doc, ok := toDoc(v); ok {
		// populated references carry the full parent document
		return newFields(doc).Ref("_id")
	}
	return ""
}

func toDoc(v interface{}) (bson.M, bool) {
	switch d := v.(type) {
	case bson.M:
		return d, true
	case map[string]interface{}:
		return bson.M(d), true
	case bson.D:
		return d.Map(), true
	}
	return nil, false
}

// enum coerces value into allowed, matching case-insensitively and
// returning the canonical spelling, or def when nothing matches.
func enum(value string, allowed []string, def string) string {
	for _, a := range allowed {
		if strings.EqualFold(a, value) {
			return a
		}
	}
	return def
}

// normalizePhone keeps the last ten digits of an Indian mobile number
func normalizePhone(raw string) string {
	d := common.StringUtils{}.DigitsOnly(raw)
	if len(d) > 10 {
		d = d[len(d)-10:]
	}
	return d
}
