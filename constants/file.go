package constants

import (
	"bytes"
	"strings"
)

// Format is the source family of an uploaded document.
type Format string

const (
	PDF   Format = "pdf"
	IMAGE Format = "image"
)

// AllowedExtensions holds the file extensions accepted for extraction.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
}

// CanonicalMIMEType is the encoding every normalized page is stored and sent in.
const CanonicalMIMEType = "image/jpeg"

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat maps a file extension to its source family, or "" if unsupported.
func MapExtToFormat(ext string) Format {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "jpg", "jpeg", "png":
		return IMAGE
	default:
		return ""
	}
}

// ParseFormat accepts user-facing format names ("pdf", "image", "jpg", "png", ...).
// Empty input means auto-detect and returns "".
func ParseFormat(s string) (Format, bool) {
	s = NormalizeExt(strings.TrimSpace(s))
	switch s {
	case "":
		return "", true
	case "image", "img":
		return IMAGE, true
	}
	if f := MapExtToFormat(s); f != "" {
		return f, true
	}
	return "", false
}

var (
	magicPDF  = []byte("%PDF-")
	magicJPEG = []byte{0xFF, 0xD8, 0xFF}
	magicPNG  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}
)

// DetectFormat sniffs magic bytes. Leading whitespace before a PDF header is tolerated.
func DetectFormat(b []byte) Format {
	switch {
	case bytes.HasPrefix(bytes.TrimLeft(b[:min(len(b), 1024)], " \t\r\n"), magicPDF):
		return PDF
	case bytes.HasPrefix(b, magicJPEG), bytes.HasPrefix(b, magicPNG):
		return IMAGE
	default:
		return ""
	}
}
