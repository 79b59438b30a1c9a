package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/nilansh-07/FintelAI/constants"
	"github.com/nilansh-07/FintelAI/internal/common"
)

// ExtractionRequest asks a backend to extract one page under a template and prompt.
type ExtractionRequest struct {
	Page     *Page
	Template string
	Prompt   string
}

// Key identifies the request by content: identical page bytes under the same
// template and prompt share a key across documents.
func (r ExtractionRequest) Key() string {
	h := sha256.New()
	if r.Page != nil {
		h.Write([]byte(r.Page.Hash))
	}
	h.Write([]byte{0})
	h.Write([]byte(r.Template))
	h.Write([]byte{0})
	h.Write([]byte(r.Prompt))
	return hex.EncodeToString(h.Sum(nil))
}

// FieldError is a per-field validation failure.
type FieldError = common.ValidationError

// ErrorDetail is a serializable error carried in results.
type ErrorDetail struct {
	Code    string `json:"code"`
	Status  string `json:"status"` // canonical gRPC code name
	Message string `json:"message"`
	Attempt int    `json:"attempt,omitempty"`
	Page    *int   `json:"page,omitempty"`
}

// NewErrorDetail classifies err into an ErrorDetail.
func NewErrorDetail(err error) ErrorDetail {
	st := common.Status(err)
	return ErrorDetail{
		Code:    common.ErrorCode(err),
		Status:  st.Code().String(),
		Message: st.Message(),
	}
}

// ExtractionResult is the validated outcome of one ExtractionRequest. It is
// the value stored in the extraction cache.
type ExtractionResult struct {
	Key         string                     `json:"key"`
	Raw         string                     `json:"raw"`
	Parsed      any                        `json:"parsed,omitempty"`
	Status      constants.ValidationStatus `json:"status"`
	Errors      []ErrorDetail              `json:"errors,omitempty"`
	FieldErrors []FieldError               `json:"field_errors,omitempty"`
	Repairs     []string                   `json:"repairs,omitempty"`
	Record      *FinancialRecord           `json:"record,omitempty"`
	Latency     time.Duration              `json:"latency"`
	Attempts    int                        `json:"attempts"`
	Backend     string                     `json:"backend"`
	Model       string                     `json:"model"`
	CreatedAt   time.Time                  `json:"created_at"`
	Cached      bool                       `json:"cached"`
}
