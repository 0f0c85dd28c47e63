// Package extract defines the PDF text and agency-record extraction ports
// consumed by the intake pipeline, plus the built-in adapters.
package extract

import "context"

// PDFTextExtractor turns raw PDF bytes into plain text.
type PDFTextExtractor interface {
	ExtractText(ctx context.Context, pdf []byte) (string, error)
}

// AgencyRecordExtractor locates the agency record number inside the raw
// extracted text and returns the cleaned text alongside it.
type AgencyRecordExtractor interface {
	ExtractRecord(text string) (cleanedText, recordNumber string, err error)
}
