package llm

import "context"

// MockClient is a test double for the Client interface. Responses are
// served in order; the last one repeats once the list runs out.
type MockClient struct {
	Responses []*Response
	Err       error
	Calls     []Call // records calls sent
}

// Complete records the call and returns the next scripted response.
func (m *MockClient) Complete(ctx context.Context, call Call) (*Response, error) {
	m.Calls = append(m.Calls, call)
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) == 0 {
		return &Response{Content: "", Provider: "mock"}, nil
	}
	resp := m.Responses[0]
	if len(m.Responses) > 1 {
		m.Responses = m.Responses[1:]
	}
	return resp, nil
}
