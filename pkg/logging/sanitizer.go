package logging

import (
	"regexp"
)

const (
	// MaxStatementLogLength is the maximum length of a SQL statement to log
	MaxStatementLogLength = 200
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, pass=xxx up to the next delimiter
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Bearer tokens and bare JWTs (three base64url segments)
	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`)
	jwtPattern    = regexp.MustCompile(`eyJ[A-Za-z0-9-_]*\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`)

	// user:pass@host in URLs
	urlCredentialsPattern = regexp.MustCompile(`://[^:/\s]+:\S+@`)
)

// SanitizeURL removes credentials from a database URL before logging.
func SanitizeURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	sanitized := urlCredentialsPattern.ReplaceAllString(rawURL, "://"+RedactedText+"@")
	return passwordPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
}

// SanitizeError scrubs credentials and tokens from an error message.
// Driver errors may echo the connection URL; auth errors may echo tokens.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	sanitized := SanitizeURL(err.Error())
	sanitized = bearerPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)
	return jwtPattern.ReplaceAllString(sanitized, RedactedText)
}

// SanitizeStatement truncates a SQL statement for logging.
// Statements are parameterized, so values never appear in them.
func SanitizeStatement(sql string) string {
	return TruncateString(sql, MaxStatementLogLength)
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
