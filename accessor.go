package sttpl

import (
	"reflect"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// ----------------------------- Property access ------------------------------

type fieldCacheKey struct {
	typ  reflect.Type
	name string
}

type fieldInfo struct {
	index    []int
	method   int
	isMethod bool
	found    bool
}

type fieldCache struct {
	mu    sync.RWMutex
	cache map[fieldCacheKey]*fieldInfo
}

var globalFieldCache = &fieldCache{cache: make(map[fieldCacheKey]*fieldInfo)}

func (fc *fieldCache) lookup(typ reflect.Type, name string) *fieldInfo {
	key := fieldCacheKey{typ: typ, name: name}
	fc.mu.RLock()
	fi, ok := fc.cache[key]
	fc.mu.RUnlock()
	if ok {
		return fi
	}
	fi = resolveField(typ, name)
	fc.mu.Lock()
	fc.cache[key] = fi
	fc.mu.Unlock()
	return fi
}

// resolveField finds a niladic method Name, GetName or IsName on typ, then a
// struct field matching name case-insensitively.
func resolveField(typ reflect.Type, name string) *fieldInfo {
	exported := capitalize(name)
	for _, candidate := range []string{exported, "Get" + exported, "Is" + exported} {
		if m, ok := typ.MethodByName(candidate); ok && m.Type.NumIn() == 1 && m.Type.NumOut() >= 1 {
			return &fieldInfo{method: m.Index, isMethod: true, found: true}
		}
	}
	st := typ
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return &fieldInfo{}
	}
	f, ok := st.FieldByNameFunc(func(n string) bool {
		return n == name || strings.EqualFold(n, name)
	})
	if !ok || !f.IsExported() {
		return &fieldInfo{}
	}
	return &fieldInfo{index: f.Index, found: true}
}

func capitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}

// property returns in.name; ok is false when the property does not exist.
func property(in any, name string) (any, bool) {
	switch x := in.(type) {
	case nil:
		return nil, false
	case map[string]any:
		v, ok := x[name]
		return v, ok
	case *Instance:
		return x.lookup(name)
	}
	rv := reflect.ValueOf(in)
	if rv.Kind() == reflect.Map {
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		mv := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !mv.IsValid() {
			return nil, false
		}
		return mv.Interface(), true
	}
	fi := globalFieldCache.lookup(rv.Type(), name)
	if !fi.found {
		return nil, false
	}
	// A nil pointer has no properties, not even through getters.
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, false
	}
	if fi.isMethod {
		out := rv.Method(fi.method).Call(nil)
		return out[0].Interface(), true
	}
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	fv, err := rv.FieldByIndexErr(fi.index)
	if err != nil {
		return nil, false
	}
	return fv.Interface(), true
}
