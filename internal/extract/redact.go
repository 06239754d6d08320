package extract

import (
	"regexp"
	"strings"
)

// digitRunRE matches runs of 6 or more consecutive digits: long enough to
// be a phone or account number, longer than any plausible amount written in
// a confirmation SMS.
var digitRunRE = regexp.MustCompile(`\d{6,}`)

// RedactDigits masks every run of 6+ digits down to its last 3 digits
// before the text leaves the process. Best-effort privacy, not a
// guarantee: the 6-digit threshold has not been validated against every
// phone number format in the wild.
func RedactDigits(s string) string {
	return digitRunRE.ReplaceAllStringFunc(s, func(run string) string {
		return strings.Repeat("*", len(run)-3) + run[len(run)-3:]
	})
}
