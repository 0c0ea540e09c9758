package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)

// DefaultTemplate yields numbers like INV-25-00042.
const DefaultTemplate = "INV-{YY}-{SEQ5}"

// Prefix is the year-scoped part of the number that sequences are keyed by.
func Prefix(issuedAt time.Time) string {
	return "INV-" + issuedAt.UTC().Format("06") + "-"
}

// FormatInvoiceNumber renders template for the issue time and sequence value.
func FormatInvoiceNumber(template string, issuedAt time.Time, seq int64) (string, error) {
	if template == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}

	issuedAt = issuedAt.UTC()
	out := strings.ReplaceAll(template, "{YYYY}", issuedAt.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", issuedAt.Format("06"))
	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))
	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.ContainsAny(out, "{}") {
		return "", fmt.Errorf("unresolved token in invoice format: %s", out)
	}
	return out, nil
}

// Number formats with DefaultTemplate.
func Number(issuedAt time.Time, seq int64) string {
	out, err := FormatInvoiceNumber(DefaultTemplate, issuedAt, seq)
	if err != nil {
		return ""
	}
	return out
}

// ParseSequence extracts the numeric suffix of a number carrying prefix.
func ParseSequence(prefix, number string) (int64, bool) {
	if !strings.HasPrefix(number, prefix) {
		return 0, false
	}
	seq, err := strconv.ParseInt(strings.TrimPrefix(number, prefix), 10, 64)
	if err != nil || seq <= 0 {
		return 0, false
	}
	return seq, true
}
