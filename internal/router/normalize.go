package router

import (
	"regexp"
	"strings"
)

var handlerTag = regexp.MustCompile(`(?is)<handler>\s*(.*?)\s*</handler>`)

var answerPrefixes = []string{
	"handler:", "route:", "model:", "answer:", "response:", "choice:", "use:",
}

// ExtractHandlerName pulls a candidate handler name out of raw classifier
// output. The structured tag form wins; otherwise known prefixes are
// stripped and the first token of the first line is taken.
func ExtractHandlerName(raw string) string {
	if m := handlerTag.FindStringSubmatch(raw); m != nil {
		return cleanToken(m[1])
	}

	line := strings.TrimSpace(raw)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	lower := strings.ToLower(line)
	for _, p := range answerPrefixes {
		if strings.HasPrefix(lower, p) {
			line = strings.TrimSpace(line[len(p):])
			break
		}
	}
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		line = line[:i]
	}
	return cleanToken(line)
}

func cleanToken(s string) string {
	return strings.Trim(strings.TrimSpace(s), ".,!?;:'\"`*()[]{}<>")
}
