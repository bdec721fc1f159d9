package state

import (
	"encoding/json"
	"time"
)

// RequestType tells the processor how to treat the model's output.
type RequestType string

const (
	RequestResponse RequestType = "response" // free text
	RequestJSON     RequestType = "json"     // output must parse as JSON
	RequestRaw      RequestType = "raw"      // passed through untouched
)

// Priority orders queue items. Higher values dequeue first; ties break FIFO
// by created_at, then by the lexically time-ordered ID.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// Request is one unit of LLM work. NextStep names the handler that receives
// the response; Data is an opaque payload carried through to it.
type Request struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Attempts  int       `json:"attempts"`

	Type     RequestType `json:"type"`
	Priority Priority    `json:"priority"`

	System string `json:"system,omitempty"`
	User   string `json:"user"`

	NextStep string          `json:"next_step"`
	Data     json.RawMessage `json:"data,omitempty"`
	Model    string          `json:"model,omitempty"`

	// LastError is set when the request is dead-lettered.
	LastError string `json:"last_error,omitempty"`

	processing bool
}

func (r *Request) clone() *Request {
	c := *r
	if r.Data != nil {
		c.Data = append(json.RawMessage(nil), r.Data...)
	}
	return &c
}
