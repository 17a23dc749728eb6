package cache

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// toMap renders a record the way it is exposed over JSON.
func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshal record")
	}
	m := map[string]any{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errors.Wrap(err, "unmarshal record")
	}
	return m, nil
}

// applyPatch overlays patch onto rec, keyed by JSON field name.
func applyPatch[T any](rec T, patch map[string]any) (T, error) {
	var out T
	m, err := toMap(rec)
	if err != nil {
		return out, err
	}
	for k, v := range patch {
		m[k] = v
	}
	b, err := json.Marshal(m)
	if err != nil {
		return out, errors.Wrap(err, "marshal patch")
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, errors.Wrap(err, "apply patch")
	}
	return out, nil
}

// scalarFields keeps the flat fields of a record for later comparison.
// Timestamps and joined records are left out: the store owns them.
func scalarFields(rec any) (map[string]any, error) {
	m, err := toMap(rec)
	if err != nil {
		return nil, err
	}
	for k, v := range m {
		switch v.(type) {
		case map[string]any, []any:
			delete(m, k)
		}
	}
	delete(m, "created_at")
	delete(m, "updated_at")
	return m, nil
}

// matches reports whether every patched field has the same JSON value on
// the server record.
func matches(server, patch map[string]any) bool {
	for k, want := range patch {
		got, ok := server[k]
		if !ok {
			got = nil
		}
		if !jsonEqual(got, want) {
			return false
		}
	}
	return true
}

func jsonEqual(a, b any) bool {
	ab, err1 := json.Marshal(a)
	bb, err2 := json.Marshal(b)
	if err1 != nil || err2 != nil {
		return false
	}
	// normalise numbers: 5 and 5.0 decode to the same float64
	var an, bn any
	if json.Unmarshal(ab, &an) == nil && json.Unmarshal(bb, &bn) == nil {
		ab, _ = json.Marshal(an)
		bb, _ = json.Marshal(bn)
	}
	return bytes.Equal(ab, bb)
}

func index[T any](items []T, id uint, idOf func(T) uint) int {
	for i := range items {
		if idOf(items[i]) == id {
			return i
		}
	}
	return -1
}

// upsert prepends rec when its id is new and replaces the entry otherwise.
func upsert[T any](items []T, rec T, idOf func(T) uint) []T {
	if i := index(items, idOf(rec), idOf); i >= 0 {
		out := append([]T(nil), items...)
		out[i] = rec
		return out
	}
	out := make([]T, 0, len(items)+1)
	out = append(out, rec)
	return append(out, items...)
}

func remove[T any](items []T, id uint, idOf func(T) uint) ([]T, bool) {
	i := index(items, id, idOf)
	if i < 0 {
		return items, false
	}
	out := make([]T, 0, len(items)-1)
	out = append(out, items[:i]...)
	return append(out, items[i+1:]...), true
}

func clone[T any](items []T) []T {
	return append(make([]T, 0, len(items)), items...)
}
