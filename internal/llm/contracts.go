package llm

import "context"

// ResponseFormatJSON asks the backend for a single JSON object.
const ResponseFormatJSON = "json_object"

// BackendRequest is one multimodal completion call.
type BackendRequest struct {
	Image          []byte
	MIMEType       string
	System         string
	Prompt         string
	ResponseFormat string
	Temperature    float32
}

// BackendResponse is the raw text a backend returned.
type BackendResponse struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Backend is a hosted multimodal model. Implementations classify failures
// with the common error taxonomy: authentication errors must wrap
// common.ErrAuthentication, retryable failures common.ErrTransientBackend,
// and permanent request failures common.ErrExtractionFailure.
type Backend interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req BackendRequest) (BackendResponse, error)
}
