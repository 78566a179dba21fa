package codec

import (
	"encoding/json"

	"github.com/brokerhq/jobcentre/pkg/value"
)

// Response is implemented by every concrete response shape the broker can
// emit. It carries no behavior; its only purpose is to let callers pass a
// single type through the reply channel without reaching for interface{}.
type Response interface {
	responseStatus() string
}

type PutOK struct {
	Status string `json:"status"`
	ID     int64  `json:"id"`
}

func (PutOK) responseStatus() string { return "ok" }

type GetOK struct {
	Status string      `json:"status"`
	Queue  string      `json:"queue"`
	Pri    int64       `json:"pri"`
	ID     int64       `json:"id"`
	Job    value.Value `json:"job"`
}

func (GetOK) responseStatus() string { return "ok" }

type OK struct {
	Status string `json:"status"`
}

func (OK) responseStatus() string { return "ok" }

type NoJob struct {
	Status string `json:"status"`
}

func (NoJob) responseStatus() string { return "no-job" }

type Error struct {
	Status string `json:"status"`
}

func (Error) responseStatus() string { return "error" }

func NewPutOK(id int64) *PutOK { return &PutOK{Status: "ok", ID: id} }

func NewGetOK(queue string, pri int64, id int64, job value.Value) *GetOK {
	return &GetOK{Status: "ok", Queue: queue, Pri: pri, ID: id, Job: job}
}

func NewOK() *OK { return &OK{Status: "ok"} }

func NewNoJob() *NoJob { return &NoJob{Status: "no-job"} }

func NewError() *Error { return &Error{Status: "error"} }

// Encode serializes a response to a single newline-terminated line.
func Encode(resp Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
