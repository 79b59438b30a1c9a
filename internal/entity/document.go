package entity

import (
	"time"

	"github.com/nilansh-07/FintelAI/constants"
)

// Document is a normalized upload. It is immutable once the normalizer returns it.
type Document struct {
	ID           string           `json:"id"` // hex sha256 of the raw upload
	Pages        []*Page          `json:"pages"`
	SourceFormat constants.Format `json:"source_format"`
	UploadedAt   time.Time        `json:"uploaded_at"`
}

// Page is one canonical page image of a Document.
type Page struct {
	Document *Document `json:"-"`
	Index    int       `json:"index"`
	Image    []byte    `json:"-"`
	MIMEType string    `json:"mime_type"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Hash     string    `json:"hash"` // hex sha256 of Image
}
