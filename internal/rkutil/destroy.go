// Package rkutil holds small helpers shared by the higher-level packages and
// the CLI for tearing down RKNN resources.
package rkutil

import (
	"errors"
	"reflect"
)

// Destroyer is implemented by RKNN resources that must be explicitly destroyed,
// such as *rknn.Session and *rknn.TensorMemory.
type Destroyer interface {
	Destroy() error
}

// ReleaseFunc adapts a release method, such as (*rknn.Output[T]).Release, to Destroyer.
type ReleaseFunc func() error

// Destroy calls f.
func (f ReleaseFunc) Destroy() error {
	return f()
}

// DestroyAll destroys each resource in order and joins all non-nil errors.
// Typed nil values are ignored. Pass borrowers before the session they borrow.
func DestroyAll(resources ...Destroyer) error {
	var err error
	for _, resource := range resources {
		if isNilDestroyer(resource) {
			continue
		}
		if destroyErr := resource.Destroy(); destroyErr != nil {
			err = errors.Join(err, destroyErr)
		}
	}
	return err
}

func isNilDestroyer(resource Destroyer) bool {
	if resource == nil {
		return true
	}
	value := reflect.ValueOf(resource)
	switch value.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return value.IsNil()
	default:
		return false
	}
}
