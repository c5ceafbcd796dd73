package command

// interfaceDepthBaseline is the fixed payload depth scored for interface
// types: an interface never outranks a concrete type, no matter how deep
// its own hierarchy is.
const interfaceDepthBaseline = 0

// score ranks a handler candidate for a given dispatch. The order is total:
// higher declaration depth wins, then higher payload depth, then the
// lexically smaller fully qualified payload name.
type score struct {
	declarationDepth int
	payloadDepth     int
	payloadName      string
}

func (s score) Less(o score) bool {
	if s.declarationDepth != o.declarationDepth {
		return s.declarationDepth > o.declarationDepth
	}
	if s.payloadDepth != o.payloadDepth {
		return s.payloadDepth > o.payloadDepth
	}
	return s.payloadName < o.payloadName
}

func (h *TypeHierarchy) scoreFor(declarationDepth int, payloadName string) score {
	depth := h.Depth(payloadName)
	if h.IsInterface(payloadName) {
		depth = interfaceDepthBaseline
	}
	return score{
		declarationDepth: declarationDepth,
		payloadDepth:     depth,
		payloadName:      payloadName,
	}
}
