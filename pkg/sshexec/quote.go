package sshexec

import (
	"net/url"
	"strings"
)

// Quote returns s as a single POSIX shell word.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// Command joins args into a command line, quoting each one.
func Command(args ...string) string {
	quoted := make([]string, 0, len(args))
	for _, a := range args {
		quoted = append(quoted, Quote(a))
	}
	return strings.Join(quoted, " ")
}

func urlEscaped(s string) string {
	return url.UserPassword("", s).String()[1:]
}
