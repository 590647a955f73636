package sttpl

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// toString converts a scalar attribute value to text without going through
// fmt for the common kinds.
func toString(v any, sb *strings.Builder) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case bool:
		if x {
			return "true"
		}
		return "false"
	case fmt.Stringer:
		return x.String()
	default:
		sb.Reset()
		fmt.Fprintf(sb, "%v", x)
		return sb.String()
	}
}

// truthy follows template conditionals: nil, false, empty strings and
// empty collections are false; instances are always true.
func truthy(v any) bool {
	if v == nil {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != ""
	case *Instance:
		return x != nil
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case []any:
		return len(x) != 0
	case attrList:
		return len(x) != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() != 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return !rv.IsZero()
}

var byteSliceType = reflect.TypeOf([]byte(nil))

// isIterable reports whether v is written element by element.
func isIterable(v any) bool {
	switch v.(type) {
	case nil, string, []byte, *Instance:
		return false
	case []any, attrList:
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		return rv.Type() != byteSliceType
	case reflect.Array, reflect.Map:
		return true
	}
	return false
}

// iterate calls fn for each element of v, or once with v itself when v is
// not iterable. Maps yield their keys in sorted order.
func iterate(v any, fn func(elem any) error) error {
	switch x := v.(type) {
	case []any:
		for _, e := range x {
			if err := fn(e); err != nil {
				return err
			}
		}
		return nil
	case attrList:
		for _, e := range x {
			if err := fn(e); err != nil {
				return err
			}
		}
		return nil
	}
	if !isIterable(v) {
		return fn(v)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map {
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		for _, k := range keys {
			if err := fn(k.Interface()); err != nil {
				return err
			}
		}
		return nil
	}
	for i := 0; i < rv.Len(); i++ {
		if err := fn(rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
