package policy

import (
	"net/url"
	"regexp"
	"strings"
)

const redacted = "xxxxx"

var (
	urlCredentialPattern = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.\-]*://[^:/@\s]+):[^@\s]+@`)
	passwordKVPattern    = regexp.MustCompile(`(?i)\b(password|passwd|pwd)\s*=\s*('[^']*'|\S+)`)
)

// RedactDSN masks the password of a connection string, in either URL or
// key=value form.
func RedactDSN(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return ""
	}
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redacted)
		}
		return u.String()
	}
	out, _ := RedactSecrets(dsn)
	return out
}

// RedactSecrets masks credentials embedded in free text such as driver
// error messages.
func RedactSecrets(input string) (out string, changed bool) {
	out = input

	next := urlCredentialPattern.ReplaceAllString(out, "${1}:"+redacted+"@")
	changed = changed || next != out
	out = next

	next = passwordKVPattern.ReplaceAllString(out, "${1}="+redacted)
	changed = changed || next != out
	out = next

	return out, changed
}
