package saga

import "fmt"

// AssociationValue correlates events to saga instances: a saga associated
// with {Key: "order_id", Value: "o-42"} receives every event that resolves
// to that same pair.
type AssociationValue struct {
	Key   string
	Value string
}

func Associate(key, value string) AssociationValue {
	return AssociationValue{Key: key, Value: value}
}

func (a AssociationValue) String() string {
	return fmt.Sprintf("%s=%s", a.Key, a.Value)
}
