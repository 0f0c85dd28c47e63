package extract

import (
	"errors"
	"regexp"
	"strings"
)

// ErrRecordNotFound is returned when no agency record number appears in the
// referral text.
var ErrRecordNotFound = errors.New("agency record number not found")

// Record-number line as it appears on agency referrals, with the English
// variant some upstream systems emit.
var recordPattern = regexp.MustCompile(
	`(?im)^\s*(?:n[uú]mero\s+do\s+registro|registro|protocolo|record\s+number)\s*[:#]?\s*([A-Z0-9][A-Z0-9./-]{3,})\s*$`)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// RegexAgencyExtractor finds the record number line and normalizes the
// surrounding text.
type RegexAgencyExtractor struct{}

var _ AgencyRecordExtractor = (*RegexAgencyExtractor)(nil)

func (RegexAgencyExtractor) ExtractRecord(text string) (string, string, error) {
	m := recordPattern.FindStringSubmatch(text)
	if m == nil {
		return "", "", ErrRecordNotFound
	}
	record := strings.ToUpper(m[1])

	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		cleaned = append(cleaned, strings.TrimRight(line, " \t"))
	}
	out := strings.TrimSpace(blankRuns.ReplaceAllString(strings.Join(cleaned, "\n"), "\n\n"))
	return out, record, nil
}
