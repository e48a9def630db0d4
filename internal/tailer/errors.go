package tailer

import "strings"

// connectivityTerms mark backend errors this core cannot recover from
// locally: expired or missing credentials and network-level failures.
// They are surfaced as fatal so the operator can re-authenticate.
var connectivityTerms = []string{
	"expired",
	"sso",
	"token",
	"credential",
	"connection",
	"network",
	"timeout",
	"access denied",
	"accessdenied",
}

func isConnectivityError(msg string) bool {
	lower := strings.ToLower(msg)
	for _, term := range connectivityTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// humanize turns a raw backend error message into something an operator
// can act on.
func humanize(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "sso") || strings.Contains(lower, "token") || strings.Contains(lower, "expired"):
		return "session has expired; re-authenticate and reconnect (" + msg + ")"
	case strings.Contains(lower, "credential"):
		return "credentials error; check your configuration (" + msg + ")"
	case strings.Contains(lower, "access denied") || strings.Contains(lower, "accessdenied"):
		return "access denied; check the permissions on this log group (" + msg + ")"
	case strings.Contains(lower, "connection") || strings.Contains(lower, "network") || strings.Contains(lower, "timeout"):
		return "unable to reach the log service; check your network connection (" + msg + ")"
	default:
		return msg
	}
}
