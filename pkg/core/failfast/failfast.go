// Package failfast panics on programmer errors at setup time: nil
// handlers, non-positive limits and the like. It is not for runtime
// errors, which are returned.
package failfast

import (
	"fmt"
	"reflect"
)

// If panics with the formatted message unless condition holds.
func If(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Errorf("fail-fast: "+format, args...))
	}
}

// NotNil panics if v is nil, including a typed nil pointer, func, map,
// chan or interface value.
func NotNil(v interface{}, name string) {
	if isNil(v) {
		panic(fmt.Errorf("fail-fast: %s is nil", name))
	}
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Map, reflect.Chan, reflect.Interface, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
