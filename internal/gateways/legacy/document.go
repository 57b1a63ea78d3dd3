// Package legacy imports documents exported from the original document
// store. Every document is checked at the boundary and mapped onto the
// typed models before anything is written.
package legacy

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/swapcard/marketplace/internal/domain/apperr"
)

// document is one raw record together with where it came from, so that
// field errors can name the collection and id.
type document struct {
	collection string
	id         string
	raw        bson.M
}

func newDocument(collection string, raw bson.M) (*document, error) {
	d := &document{collection: collection, raw: raw}
	switch v := raw["_id"].(type) {
	case string:
		d.id = v
	case primitive.ObjectID:
		d.id = v.Hex()
	}
	if d.id == "" {
		d.id, _ = raw["id"].(string)
	}
	if d.id == "" {
		return nil, d.invalid("_id", "is required")
	}
	return d, nil
}

func (d *document) invalid(field, msg string) error {
	return fieldError(d.collection, d.id, field, msg)
}

func fieldError(collection, id, field, msg string) error {
	return &apperr.Error{
		Kind:  apperr.Validation,
		Op:    "legacy." + collection,
		Field: field,
		Err:   fmt.Errorf("document %q: %s", id, msg),
	}
}

// str returns the first non-empty string among keys. Older exports used
// different names for the same field.
func (d *document) str(keys ...string) string {
	for _, k := range keys {
		if v, ok := d.raw[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func (d *document) required(keys ...string) (string, error) {
	if v := d.str(keys...); v != "" {
		return v, nil
	}
	return "", d.invalid(keys[0], "is required")
}

func (d *document) boolean(key string) bool {
	v, _ := d.raw[key].(bool)
	return v
}

func (d *document) integer(key string) (int, error) {
	switch v := d.raw[key].(type) {
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case nil:
		return 0, d.invalid(key, "is required")
	default:
		return 0, d.invalid(key, fmt.Sprintf("is not a number (%T)", v))
	}
}

func (d *document) strings(key string) []string {
	var items []any
	switch v := d.raw[key].(type) {
	case bson.A:
		items = v
	case []any:
		items = v
	case []string:
		return v
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// timeAt reads a timestamp stored as a BSON date, an RFC 3339 string or an
// exported Firestore timestamp ({seconds, nanoseconds}). ok is false when
// the field is absent or null.
func (d *document) timeAt(key string) (t time.Time, ok bool, err error) {
	switch v := d.raw[key].(type) {
	case nil:
		return time.Time{}, false, nil
	case primitive.DateTime:
		return v.Time().UTC(), true, nil
	case time.Time:
		return v.UTC(), true, nil
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, false, d.invalid(key, "is not an RFC 3339 timestamp")
		}
		return t.UTC(), true, nil
	case bson.M:
		return d.firestoreTime(key, v)
	case bson.D:
		return d.firestoreTime(key, v.Map())
	default:
		return time.Time{}, false, d.invalid(key, fmt.Sprintf("has unsupported type %T", v))
	}
}

func (d *document) firestoreTime(key string, m bson.M) (time.Time, bool, error) {
	var secs, nanos int64
	for _, k := range []string{"seconds", "_seconds"} {
		if n, ok := number(m[k]); ok {
			secs = n
			break
		}
	}
	for _, k := range []string{"nanoseconds", "_nanoseconds"} {
		if n, ok := number(m[k]); ok {
			nanos = n
			break
		}
	}
	if secs == 0 && nanos == 0 {
		return time.Time{}, false, d.invalid(key, "is not a timestamp")
	}
	return time.Unix(secs, nanos).UTC(), true, nil
}

func (d *document) requiredTime(key string) (time.Time, error) {
	t, ok, err := d.timeAt(key)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, d.invalid(key, "is required")
	}
	return t, nil
}

func number(v any) (int64, bool) {
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	}
	return 0, false
}
