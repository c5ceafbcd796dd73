package es

import (
	"fmt"

	"github.com/axleworks/axle-go/core/serializer"
)

func serializedTypeOf(e Envelope) serializer.SerializedType {
	return serializer.SerializedType{Name: e.Type, Revision: e.Revision}
}

// upcastEnvelope rewrites a stored envelope of an older payload revision to
// the current one, keeping all stream metadata intact.
func upcastEnvelope(u serializer.Upcaster, e Envelope) (Envelope, error) {
	obj, err := u.Upcast(serializer.SerializedObject{
		Data: e.Data,
		Type: serializedTypeOf(e),
	})
	if err != nil {
		return e, fmt.Errorf("upcast of %s rev=%q failed: %w", e.Type, e.Revision, err)
	}
	e.Type = obj.Type.Name
	e.Revision = obj.Type.Revision
	e.Data = obj.Data
	return e, nil
}
