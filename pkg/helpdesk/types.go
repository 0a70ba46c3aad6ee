package helpdesk

const (
	// HealthPath is probed with a bodiless GET; any 2xx counts as healthy.
	HealthPath = "/health"
	// ChatPath accepts a ChatRequest as JSON.
	ChatPath = "/api/v1/chat/"

	DefaultTopK      = 4
	DefaultMaxTokens = 150
)

// ChatRequest is the body posted to ChatPath.
type ChatRequest struct {
	Query     string `json:"query"`
	TopK      int    `json:"top_k"`
	MaxTokens int    `json:"max_tokens"`
}

// NewChatRequest builds a request with the fixed retrieval parameters used by chat sessions.
func NewChatRequest(query string) ChatRequest {
	return ChatRequest{
		Query:     query,
		TopK:      DefaultTopK,
		MaxTokens: DefaultMaxTokens,
	}
}

// ChatResponse is a successful answer.
type ChatResponse struct {
	Response       string   `json:"response"`
	ContextUsed    string   `json:"context_used"`
	ProcessingTime *float64 `json:"processing_time,omitempty"`
	Query          string   `json:"query"`
	Timestamp      string   `json:"timestamp"`
}

// ErrorResponse is the body returned with non-2xx statuses.
type ErrorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail"`
	Timestamp string `json:"timestamp"`
}

// Message picks the most specific text the backend offered, or "" when it offered none.
func (e ErrorResponse) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Error
}
