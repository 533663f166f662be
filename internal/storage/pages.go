package storage

import (
	"bytes"
	"mime"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"
)

var pdfMagic = []byte("%PDF-")

// IsPDF reports whether the upload is a PDF, by declared type or by its leading bytes.
func IsPDF(contentType string, data []byte) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "application/pdf" {
		return true
	}
	return bytes.HasPrefix(data, pdfMagic)
}

// CountPages returns the page count of a PDF. Anything else, including a PDF that cannot be
// parsed, counts as one page.
func CountPages(contentType string, data []byte) int {
	if !IsPDF(contentType, data) {
		return 1
	}
	n, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil || n < 1 {
		log.Warn().Err(err).Int("size", len(data)).Msg("Could not count PDF pages, assuming one")
		return 1
	}
	return n
}
