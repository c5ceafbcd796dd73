// Package reflector resolves fully qualified type names for message payloads.
// Names are cached per reflect.Type since payload types are looked up on every
// dispatch and the set of types in a program is small and bounded.
package reflector

import (
	"reflect"
	"sync"
)

var (
	mu    sync.RWMutex
	cache = make(map[reflect.Type]TypeInfo)
)

// TypeInfo describes a payload type. Name is the fully qualified type name
// (package path + type name) with pointer indirection stripped, so *Foo and
// Foo resolve to the same name.
type TypeInfo struct {
	Name string
	Type reflect.Type
}

func TypeInfoOf(x any) TypeInfo {
	return TypeInfoForType(reflect.TypeOf(x))
}

func TypeInfoFor[T any]() TypeInfo {
	return TypeInfoForType(reflect.TypeOf((*T)(nil)).Elem())
}

func TypeInfoForType(t reflect.Type) TypeInfo {
	mu.RLock()
	ti, ok := cache[t]
	mu.RUnlock()
	if ok {
		return ti
	}

	if t == nil {
		return TypeInfo{}
	}

	orig := t
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	ti = TypeInfo{
		Name: t.PkgPath() + "." + t.Name(),
		Type: t,
	}

	mu.Lock()
	cache[orig] = ti
	mu.Unlock()
	return ti
}
