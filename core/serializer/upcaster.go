package serializer

// Upcaster transforms a serialized object from an older revision towards the
// current one. Upcasters are arranged in a chain ordered oldest-first; each
// one is offered the object once and applied when CanUpcast reports true.
type Upcaster interface {
	CanUpcast(t SerializedType) bool
	Upcast(obj SerializedObject) (SerializedObject, error)
}

// UpcasterFunc adapts a transform function limited to a single source type
// and revision.
type upcasterFunc struct {
	from SerializedType
	fn   func(obj SerializedObject) (SerializedObject, error)
}

// UpcastFrom builds an Upcaster that applies fn to objects of exactly the
// given type name and revision.
func UpcastFrom(name, revision string, fn func(obj SerializedObject) (SerializedObject, error)) Upcaster {
	return upcasterFunc{from: SerializedType{Name: name, Revision: revision}, fn: fn}
}

func (u upcasterFunc) CanUpcast(t SerializedType) bool { return t == u.from }
func (u upcasterFunc) Upcast(obj SerializedObject) (SerializedObject, error) {
	return u.fn(obj)
}

// Chain applies upcasters in order. A chain is itself an Upcaster, so chains
// can nest.
type Chain struct {
	upcasters []Upcaster
}

func NewChain(upcasters ...Upcaster) *Chain {
	return &Chain{upcasters: upcasters}
}

func (c *Chain) CanUpcast(t SerializedType) bool {
	for _, u := range c.upcasters {
		if u.CanUpcast(t) {
			return true
		}
	}
	return false
}

// Upcast runs the object through the chain front to back. Each upcaster sees
// the output of the previous one, so a chain ordered oldest-first carries a
// payload across multiple revisions in a single pass.
func (c *Chain) Upcast(obj SerializedObject) (SerializedObject, error) {
	var err error
	for _, u := range c.upcasters {
		if !u.CanUpcast(obj.Type) {
			continue
		}
		obj, err = u.Upcast(obj)
		if err != nil {
			return obj, err
		}
	}
	return obj, nil
}

var _ Upcaster = (*Chain)(nil)
