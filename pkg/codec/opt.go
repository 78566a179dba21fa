// Package codec decodes request lines into typed requests and encodes
// responses back into lines. Field presence (as opposed to field zero
// value) matters for request validation, so optional fields are wrapped in
// Opt, the same pattern the reference implementation uses.
package codec

import (
	"encoding/json"
	"fmt"
)

// Opt wraps a field that may be entirely absent from the request object.
// Present is true only if the key appeared in the JSON object. An explicit
// null is handed to T's own UnmarshalJSON where T has one (value.Value
// accepts it, Integer rejects it); for any other T it is ErrMalformed.
type Opt[T any] struct {
	Present bool
	Value   T
}

func (o *Opt[T]) UnmarshalJSON(data []byte) error {
	o.Present = true
	if string(data) == "null" {
		if _, ok := any(&o.Value).(json.Unmarshaler); !ok {
			return fmt.Errorf("%w: null value", ErrMalformed)
		}
	}
	return json.Unmarshal(data, &o.Value)
}
