package serializer

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/axleworks/axle-go/internal/reflector"
)

type registration struct {
	ctor     func() any
	revision string
}

// JSONSerializer serializes payloads as JSON. Types must be registered
// before deserialization; an optional upcaster chain rewrites stale
// revisions forward on read.
type JSONSerializer struct {
	mu       sync.RWMutex
	types    map[string]registration
	upcaster Upcaster
}

type JSONOption func(*JSONSerializer)

// WithUpcasters installs the upcaster chain applied before deserialization.
func WithUpcasters(u Upcaster) JSONOption {
	return func(s *JSONSerializer) { s.upcaster = u }
}

func NewJSONSerializer(opts ...JSONOption) *JSONSerializer {
	s := &JSONSerializer{types: map[string]registration{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register declares payload constructors. Each constructor is called once to
// derive the type name and current revision.
func (s *JSONSerializer) Register(ctors ...func() any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ctor := range ctors {
		sample := ctor()
		s.types[typeNameOf(sample)] = registration{
			ctor:     ctor,
			revision: revisionOf(sample),
		}
	}
}

func (s *JSONSerializer) Serialize(v any) (SerializedObject, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return SerializedObject{}, err
	}
	return SerializedObject{
		Data: data,
		Type: SerializedType{
			Name:     typeNameOf(v),
			Revision: revisionOf(v),
		},
	}, nil
}

func (s *JSONSerializer) Deserialize(obj SerializedObject) (any, error) {
	if s.upcaster != nil && s.upcaster.CanUpcast(obj.Type) {
		var err error
		obj, err = s.upcaster.Upcast(obj)
		if err != nil {
			return nil, fmt.Errorf("upcast of %s rev=%q failed: %w", obj.Type.Name, obj.Type.Revision, err)
		}
	}

	s.mu.RLock()
	reg, ok := s.types[obj.Type.Name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, obj.Type.Name)
	}
	if obj.Type.Revision != reg.revision {
		return nil, fmt.Errorf("%w: %s rev=%q, current rev=%q",
			ErrUnknownRevision, obj.Type.Name, obj.Type.Revision, reg.revision)
	}

	v := reg.ctor()
	if err := json.Unmarshal(obj.Data, v); err != nil {
		return nil, err
	}
	return v, nil
}

var _ Serializer = (*JSONSerializer)(nil)

func typeNameOf(v any) string {
	if t, ok := v.(interface{ EventType() string }); ok {
		return t.EventType()
	}
	return reflector.TypeInfoOf(v).Name
}

func revisionOf(v any) string {
	if t, ok := v.(interface{ Revision() string }); ok {
		return t.Revision()
	}
	return ""
}
