// Package resultshape implements spec section 4.8: descriptor-driven
// synthesis of MCP content blocks + structuredContent from a tool's raw
// return value, and the sanitization invariant shared by every path that
// feeds structuredContent (invariant 7).
//
// Grounded on github.com/mark3labs/mcp-go/mcp's content block types and the
// teacher's internal/contracts/converters.go value-shaping helpers.
package resultshape

import "reflect"

const (
	// MaxDepth bounds sanitized object nesting (invariant 7).
	MaxDepth = 32
	// MaxProperties bounds sanitized object property counts (invariant 7).
	MaxProperties = 1000
)

var forbiddenKeys = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// Sanitize strips __proto__/constructor/prototype keys, function and
// symbol-shaped values, bounds depth and property counts, and replaces
// circular references with the literal token "[Circular]" (invariant 7,
// spec 4.8). Go has no prototype chain or symbol type, so the "null
// prototype" requirement is satisfied structurally: sanitized maps are
// freshly allocated map[string]any values with no hidden shared state.
func Sanitize(v any) any {
	return sanitize(v, 0, make(map[uintptr]bool))
}

func sanitize(v any, depth int, seen map[uintptr]bool) any {
	if depth > MaxDepth {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return nil // drop function-shaped / non-serializable values
	case reflect.Map:
		return sanitizeMap(rv, depth, seen)
	case reflect.Slice, reflect.Array:
		return sanitizeSlice(rv, depth, seen)
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return sanitize(rv.Elem().Interface(), depth, seen)
	case reflect.Struct:
		return sanitizeStruct(rv, depth, seen)
	default:
		return v
	}
}

func circularGuard(rv reflect.Value, seen map[uintptr]bool) (ptr uintptr, circular bool) {
	if rv.Kind() != reflect.Map && rv.Kind() != reflect.Slice {
		return 0, false
	}
	p := rv.Pointer()
	if p == 0 {
		return 0, false
	}
	if seen[p] {
		return p, true
	}
	seen[p] = true
	return p, false
}

func sanitizeMap(rv reflect.Value, depth int, seen map[uintptr]bool) any {
	if p, circular := circularGuard(rv, seen); circular {
		return "[Circular]"
	} else if p != 0 {
		defer delete(seen, p)
	}

	out := make(map[string]any, rv.Len())
	count := 0
	iter := rv.MapRange()
	for iter.Next() {
		if count >= MaxProperties {
			break
		}
		key, ok := iter.Key().Interface().(string)
		if !ok {
			continue // non-string keys (symbol-equivalents) are dropped
		}
		if forbiddenKeys[key] {
			continue
		}
		out[key] = sanitize(iter.Value().Interface(), depth+1, seen)
		count++
	}
	return out
}

func sanitizeSlice(rv reflect.Value, depth int, seen map[uintptr]bool) any {
	if p, circular := circularGuard(rv, seen); circular {
		return "[Circular]"
	} else if p != 0 {
		defer delete(seen, p)
	}

	n := rv.Len()
	out := make([]any, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, sanitize(rv.Index(i).Interface(), depth+1, seen))
	}
	return out
}

func sanitizeStruct(rv reflect.Value, depth int, seen map[uintptr]bool) any {
	t := rv.Type()
	out := make(map[string]any, t.NumField())
	count := 0
	for i := 0; i < t.NumField(); i++ {
		if count >= MaxProperties {
			break
		}
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Tag.Get("json")
		if name == "" {
			name = field.Name
		}
		if forbiddenKeys[name] {
			continue
		}
		out[name] = sanitize(rv.Field(i).Interface(), depth+1, seen)
		count++
	}
	return out
}
