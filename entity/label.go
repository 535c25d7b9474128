package entity

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/zero-day-ai/graphmap/mapperr"
)

// ResolveLabel returns the node label of T.
func ResolveLabel[T any, PT Entity[T]]() (string, error) {
	decl := PT(new(T)).Declare()
	label, err := deriveLabel(decl.Label, reflect.TypeFor[T]().Name())
	if err != nil {
		return "", mapperr.LabelExtraction("ResolveLabel", err)
	}
	return label, nil
}

// LabelOf resolves the node label of an arbitrary value. Values whose type
// carries no Declare method fail with a label extraction error.
func LabelOf(v any) (string, error) {
	const op = "LabelOf"
	if v == nil {
		return "", mapperr.LabelExtraction(op, errors.New("nil value has no entity type"))
	}

	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	method, ok := reflect.PointerTo(t).MethodByName("Declare")
	if !ok || method.Type.NumIn() != 1 || method.Type.NumOut() != 1 || method.Type.Out(0).Kind() != reflect.Struct {
		return "", mapperr.LabelExtraction(op, fmt.Errorf("type %s carries no entity declaration", t))
	}

	decl := method.Func.Call([]reflect.Value{reflect.New(t)})[0]
	field := decl.FieldByName("Label")
	if !field.IsValid() || field.Kind() != reflect.String {
		return "", mapperr.LabelExtraction(op, fmt.Errorf("declaration of %s has no label field", t))
	}

	label, err := deriveLabel(field.String(), t.Name())
	if err != nil {
		return "", mapperr.LabelExtraction(op, err)
	}
	return label, nil
}
