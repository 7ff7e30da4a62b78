package assert

import (
	"fmt"
	"reflect"
)

// NotNil panics if the value is nil, including typed nil pointers hidden behind
// an interface.
func NotNil(value any) {
	if value == nil {
		panic("expected value to be not nil")
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice, reflect.Interface:
		if rv.IsNil() {
			panic(fmt.Sprintf("expected value of type %T to be not nil", value))
		}
	}
}

func True(cond bool, message string) {
	if !cond {
		panic(message)
	}
}
