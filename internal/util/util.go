// Package util provides small string helpers shared by the parsers and the command loop.
package util

import "strings"

// ArgSeparator splits a command line into the command and its arguments.
const ArgSeparator = "|"

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// CleanArg trims surrounding whitespace and quotes and unescapes embedded quotes.
func CleanArg(s string) string {
	return FixEscapeQuotes(TrimQuotes(strings.TrimSpace(s)))
}

// SplitCommandLine splits `:CMD:|arg1|arg2` into the command and its raw
// arguments. Blank lines and lines starting with '#' yield an empty command.
func SplitCommandLine(line string) (command string, args []string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", nil
	}
	parts := strings.Split(line, ArgSeparator)
	command = strings.ToUpper(strings.TrimSpace(parts[0]))
	if len(parts) > 1 {
		args = parts[1:]
	}
	return command, args
}
