package store

import (
	"fmt"
	"reflect"

	"refill-api-server/internal/apperror"
)

// SliceSink appends decoded documents to the slice behind a *[]T.
type SliceSink struct {
	target reflect.Value
	result reflect.Value
	elem   reflect.Type
}

func NewSliceSink(out any) (*SliceSink, error) {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Slice {
		return nil, apperror.NewPermanent(fmt.Errorf("decode target must be a non-nil pointer to a slice, got %T", out))
	}
	target := rv.Elem()
	return &SliceSink{
		target: target,
		result: reflect.MakeSlice(target.Type(), 0, 0),
		elem:   target.Type().Elem(),
	}, nil
}

// Append decodes one document with decode and appends it.
func (s *SliceSink) Append(decode func(v any) error) error {
	ptr := reflect.New(s.elem)
	if err := decode(ptr.Interface()); err != nil {
		return err
	}
	s.result = reflect.Append(s.result, ptr.Elem())
	return nil
}

func (s *SliceSink) Len() int { return s.result.Len() }

// Truncate drops everything after the first n elements.
func (s *SliceSink) Truncate(n int) {
	if n < s.result.Len() {
		s.result = s.result.Slice(0, n)
	}
}

// Done stores the accumulated slice into the target.
func (s *SliceSink) Done() {
	s.target.Set(s.result)
}
