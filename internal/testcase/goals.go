package testcase

import (
	"regexp"
	"strings"
)

// Goals splits test case content into its non-empty, trimmed lines. Each line
// is synthesized and executed on its own in step mode.
func Goals(content string) []string {
	var goals []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		goals = append(goals, line)
	}
	return goals
}

// Credentials are the named login values found in a test case.
type Credentials struct {
	Username string
	Password string
}

// Empty reports whether neither value was found.
func (c Credentials) Empty() bool {
	return c.Username == "" && c.Password == ""
}

// A credential value must follow its keyword on the same line, after ':',
// '=', "is" or "as", or as a quoted word. A bare mention such as
// "enter username and password" names a field, not a value.
const credentialValue = `\b(?:[ \t]*[:=][ \t]*["']?|[ \t]+(?:is|as)[ \t]+["']?|[ \t]+["'])([^\s"',;]+)`

var (
	usernamePattern = regexp.MustCompile(`(?i)\b(?:username|user name|email)` + credentialValue)
	passwordPattern = regexp.MustCompile(`(?i)\bpassword` + credentialValue)
	loginPattern    = regexp.MustCompile(`(?i)\b(?:log ?in|sign ?in|username|password|credentials?)\b`)
)

// ExtractCredentials pulls the first username and password values out of content.
func ExtractCredentials(content string) Credentials {
	var c Credentials
	if m := usernamePattern.FindStringSubmatch(content); m != nil {
		c.Username = trimValue(m[1])
	}
	if m := passwordPattern.FindStringSubmatch(content); m != nil {
		c.Password = trimValue(m[1])
	}
	return c
}

// IsLoginGoal reports whether a goal line is about authenticating.
func IsLoginGoal(goal string) bool {
	return loginPattern.MatchString(goal)
}

func trimValue(v string) string {
	return strings.TrimRight(v, ".")
}
