package obj

import (
	"reflect"
)

func IsNil(what interface{}) bool {
	if what == nil {
		return true
	}

	v := reflect.ValueOf(what)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	default:
		return false
	}
}

// AnyNil reports whether any of the values is nil, including typed nils held in
// an interface.
func AnyNil(what ...interface{}) bool {
	for _, w := range what {
		if IsNil(w) {
			return true
		}
	}

	return false
}
