package orm

import (
	"context"
	"strings"
)

// Fill replaces id placeholders found at path inside data with items
// selected through q. path is dot separated; every segment but the last
// walks into nested maps or lists, and the last names the key holding
// either one id or a list of ids. Ids that q does not select become nil.
func Fill(ctx context.Context, sess *Session, q Query, data any, path string, keys []string) error {
	segments := strings.Split(path, ".")
	parents := collect(data, segments[:len(segments)-1])
	last := segments[len(segments)-1]

	var ids []int64
	for _, p := range parents {
		switch v := p[last].(type) {
		case nil:
		case []int64:
			ids = append(ids, v...)
		case []any:
			for _, x := range v {
				if id, err := toInt64(x); err == nil {
					ids = append(ids, id)
				}
			}
		default:
			if id, err := toInt64(v); err == nil {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	items, err := q.ID(ids...).SelectItems(ctx, sess, keys)
	if err != nil {
		return err
	}
	byID := make(map[int64]Item, len(items))
	for _, it := range items {
		byID[it["id"].(int64)] = it
	}
	lookup := func(x any) any {
		id, err := toInt64(x)
		if err != nil {
			return nil
		}
		if it, ok := byID[id]; ok {
			return it
		}
		return nil
	}

	for _, p := range parents {
		switch v := p[last].(type) {
		case nil:
		case []int64:
			out := make([]any, len(v))
			for i, id := range v {
				out[i] = lookup(id)
			}
			p[last] = out
		case []any:
			out := make([]any, len(v))
			for i, x := range v {
				out[i] = lookup(x)
			}
			p[last] = out
		default:
			if _, err := toInt64(v); err == nil {
				p[last] = lookup(v)
			}
		}
	}
	return nil
}

// collect walks data along segments and returns the maps reached.
func collect(data any, segments []string) []map[string]any {
	var level []map[string]any
	level = appendMaps(level, data)
	for _, seg := range segments {
		var next []map[string]any
		for _, m := range level {
			next = appendMaps(next, m[seg])
		}
		level = next
	}
	return level
}

func appendMaps(out []map[string]any, v any) []map[string]any {
	switch x := v.(type) {
	case map[string]any:
		return append(out, x)
	case Item:
		return append(out, x)
	case []Item:
		for _, it := range x {
			out = append(out, it)
		}
	case []map[string]any:
		out = append(out, x...)
	case []any:
		for _, e := range x {
			out = appendMaps(out, e)
		}
	}
	return out
}
