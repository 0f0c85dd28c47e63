package extract

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"unicode"
)

// ErrNotPDF is returned when the downloaded bytes are not a PDF document.
var ErrNotPDF = errors.New("content is not a PDF document")

// ErrNoText is returned when no readable text could be recovered.
var ErrNoText = errors.New("no extractable text in PDF")

// RawTextExtractor recovers printable text runs from uncompressed PDF
// content streams. It covers the plain-text referral PDFs the agency emits;
// deployments receiving compressed or scanned documents plug a full parser
// behind the same port.
type RawTextExtractor struct {
	// MinRunLength is the shortest printable run kept, default 4.
	MinRunLength int
}

var _ PDFTextExtractor = (*RawTextExtractor)(nil)

func (e *RawTextExtractor) ExtractText(_ context.Context, pdf []byte) (string, error) {
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		return "", ErrNotPDF
	}
	minRun := e.MinRunLength
	if minRun <= 0 {
		minRun = 4
	}

	var runs []string
	var current []rune
	flush := func() {
		if len(current) >= minRun {
			runs = append(runs, strings.TrimSpace(string(current)))
		}
		current = current[:0]
	}
	for _, b := range string(pdf) {
		if unicode.IsPrint(b) && b != '�' {
			current = append(current, b)
		} else {
			flush()
		}
	}
	flush()

	text := strings.TrimSpace(strings.Join(runs, "\n"))
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}
