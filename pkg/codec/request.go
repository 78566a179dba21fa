package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/brokerhq/jobcentre/pkg/value"
)

// ErrMalformed wraps every decode failure: invalid JSON, wrong field types,
// non-integer pri/id, or anything else that keeps a line from becoming a
// well-formed Request. Per the protocol, all of these collapse to a single
// {"status":"error"} response without touching broker state.
var ErrMalformed = errors.New("codec: malformed request")

// Integer is a JSON number required to be exactly representable as an
// integer; fractional values are rejected at decode time.
type Integer int64

func (n *Integer) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return fmt.Errorf("%w: not a number", ErrMalformed)
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: not a number", ErrMalformed)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return fmt.Errorf("%w: not an integer", ErrMalformed)
	}
	*n = Integer(int64(f))
	return nil
}

// NonNegInteger is an Integer additionally required to be non-negative, the
// shape the protocol mandates for job priorities.
type NonNegInteger int64

func (n *NonNegInteger) UnmarshalJSON(data []byte) error {
	var i Integer
	if err := i.UnmarshalJSON(data); err != nil {
		return err
	}
	if i < 0 {
		return fmt.Errorf("%w: negative priority", ErrMalformed)
	}
	*n = NonNegInteger(i)
	return nil
}

// Request is the decoded shape of any of the four request kinds. Unused
// fields for a given "request" value are simply left at Present == false;
// the broker checks presence per-operation.
type Request struct {
	Op     string              `json:"request"`
	Queue  Opt[string]          `json:"queue"`
	Job    Opt[value.Value]     `json:"job"`
	Pri    Opt[NonNegInteger]   `json:"pri"`
	Queues Opt[[]string]        `json:"queues"`
	Wait   bool                 `json:"wait"`
	ID     Opt[Integer]         `json:"id"`
}

// Decode parses one line (without its trailing newline) into a Request.
// Any failure — invalid JSON, a non-object top level, a wrongly typed or
// non-integer field — is reported as ErrMalformed.
func Decode(line []byte) (*Request, error) {
	if t := bytes.TrimSpace(line); len(t) == 0 || t[0] != '{' {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformed)
	}
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		if errors.Is(err, ErrMalformed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &req, nil
}
