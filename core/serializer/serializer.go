// Package serializer converts payloads to and from their stored
// representation. A serialized object carries its type name and schema
// revision; an upcaster chain rewrites objects of older revisions forward
// before deserialization.
package serializer

import "errors"

var (
	// ErrUnknownType is returned when deserializing a type that was never
	// registered. Non-retryable.
	ErrUnknownType = errors.New("unknown serialized type")

	// ErrUnknownRevision is returned when no upcaster chain resolves a stale
	// revision to the current one. Non-retryable.
	ErrUnknownRevision = errors.New("unknown payload revision")
)

// SerializedType names a payload type at a specific schema revision. The
// zero revision (empty string) is the unversioned default.
type SerializedType struct {
	Name     string `json:"name"`
	Revision string `json:"revision,omitempty"`
}

// SerializedObject is a payload in its stored form.
type SerializedObject struct {
	Data []byte         `json:"data"`
	Type SerializedType `json:"type"`
}

// Serializer converts payload values to SerializedObjects and back.
type Serializer interface {
	Serialize(v any) (SerializedObject, error)
	Deserialize(obj SerializedObject) (any, error)
}
