package apollo

import "fmt"

// Direction identifies the data direction of a control request.
type Direction uint8

const (
	DirectionOut Direction = iota
	DirectionIn
)

func (d Direction) String() string {
	if d == DirectionIn {
		return "in"
	}
	return "out"
}

// Request captures one control request issued over a SimLink.
type Request struct {
	Direction Direction
	Request   uint8
	Value     uint16
	Index     uint16
	Data      []byte // OUT data stage
	Length    int    // IN length
}

func (r Request) String() string {
	if r.Direction == DirectionIn {
		return fmt.Sprintf("in %s value=%d index=%d length=%d", RequestName(r.Request), r.Value, r.Index, r.Length)
	}
	return fmt.Sprintf("out %s value=%d index=%d data=% x", RequestName(r.Request), r.Value, r.Index, r.Data)
}

// OutHook lets tests emulate the debugger's handling of an OUT request.
type OutHook func(req Request) error

// InHook lets tests provide the data returned by an IN request.
type InHook func(req Request) ([]byte, error)

// SimLink is an in-memory Link that records every request. Without hooks,
// OUT requests succeed and IN requests return zeros.
type SimLink struct {
	OnOut OutHook
	OnIn  InHook

	requests []Request
}

// NewSimLink returns an empty recording link.
func NewSimLink() *SimLink {
	return &SimLink{}
}

// OutRequest records the request and forwards it to OnOut.
func (s *SimLink) OutRequest(request uint8, value, index uint16, data []byte) error {
	req := Request{
		Direction: DirectionOut,
		Request:   request,
		Value:     value,
		Index:     index,
		Data:      append([]byte(nil), data...),
	}
	s.requests = append(s.requests, req)
	if s.OnOut != nil {
		return s.OnOut(req)
	}
	return nil
}

// InRequest records the request and returns data from OnIn.
func (s *SimLink) InRequest(request uint8, value, index uint16, length int) ([]byte, error) {
	req := Request{
		Direction: DirectionIn,
		Request:   request,
		Value:     value,
		Index:     index,
		Length:    length,
	}
	s.requests = append(s.requests, req)
	if s.OnIn != nil {
		data, err := s.OnIn(req)
		if err != nil {
			return nil, err
		}
		if len(data) > length {
			data = data[:length]
		}
		return data, nil
	}
	return make([]byte, length), nil
}

// Requests returns a copy of the recorded requests in issue order.
func (s *SimLink) Requests() []Request {
	return append([]Request(nil), s.requests...)
}

// Filter returns the recorded requests with the given request number.
func (s *SimLink) Filter(request uint8) []Request {
	var out []Request
	for _, r := range s.requests {
		if r.Request == request {
			out = append(out, r)
		}
	}
	return out
}

// Count reports how many requests with the given number were issued.
func (s *SimLink) Count(request uint8) int {
	return len(s.Filter(request))
}

// ResetLog clears the recorded requests.
func (s *SimLink) ResetLog() {
	s.requests = nil
}
