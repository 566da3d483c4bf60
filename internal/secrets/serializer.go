package secrets

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"

	"gorm.io/gorm/schema"
)

// SerializerName is the gorm tag value: `gorm:"serializer:sealed"`.
const SerializerName = "sealed"

var active atomic.Pointer[Sealer]

func init() {
	schema.RegisterSerializer(SerializerName, serializer{})
}

// Install enables sealing for every `serializer:sealed` column; nil
// disables it. Already sealed values are still opened only while a sealer
// is installed.
func Install(s *Sealer) { active.Store(s) }

type serializer struct{}

func (serializer) Scan(ctx context.Context, field *schema.Field, dst reflect.Value, dbValue any) error {
	var v string
	switch t := dbValue.(type) {
	case nil:
	case string:
		v = t
	case []byte:
		v = string(t)
	default:
		return fmt.Errorf("secrets: unsupported column value %T", dbValue)
	}
	if IsSealed(v) {
		s := active.Load()
		if s == nil {
			return fmt.Errorf("%s: %w (no key configured)", field.Name, ErrOpen)
		}
		plain, err := s.Open(v)
		if err != nil {
			return fmt.Errorf("%s: %w", field.Name, err)
		}
		v = plain
	}
	field.ReflectValueOf(ctx, dst).SetString(v)
	return nil
}

func (serializer) Value(_ context.Context, field *schema.Field, _ reflect.Value, fieldValue any) (any, error) {
	v, ok := fieldValue.(string)
	if !ok {
		return nil, fmt.Errorf("secrets: %s must be a string", field.Name)
	}
	s := active.Load()
	if s == nil || v == "" || IsSealed(v) {
		return v, nil
	}
	return s.Seal(v)
}
