package util

import "regexp"

var (
	reEmail     = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	reSecret    = regexp.MustCompile(`(?i)((?:api|secret|token|key|password)[=:"\s]+)[A-Za-z0-9+/_-]{8,}`)
	reAccessKey = regexp.MustCompile(`\b(?:AKIA|ASIA)[A-Z0-9]{16}\b`)
)

// RedactPII masks emails, credential-looking values and access key ids
// in a log line. Applied to every sample before it leaves the process.
func RedactPII(s string) string {
	s = reEmail.ReplaceAllString(s, "[redacted-email]")
	s = reSecret.ReplaceAllString(s, "${1}[redacted]")
	s = reAccessKey.ReplaceAllString(s, "[redacted-key]")
	return s
}
