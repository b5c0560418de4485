package events

import (
	"html"
	"regexp"
	"strings"
)

const (
	openTag  = "<event"
	closeTag = "</event>"
)

var attrPattern = regexp.MustCompile(`([A-Za-z_][\w-]*)\s*=\s*(?:"([^"]*)"|'([^']*)')`)

// Malformed describes a fragment the parser discarded.
type Malformed struct {
	Offset   int
	Fragment string
	Reason   string
}

// ParseResult is the outcome of parsing one iteration's output.
type ParseResult struct {
	// Events are the well-formed event tags in source order.
	Events []Event
	// Malformed lists discarded fragments.
	Malformed []Malformed
	// Remainder is the output with every recognized event block removed.
	Remainder string
}

// Parse extracts event tags from agent output. Malformed tags are recorded
// and skipped; parsing always continues with the rest of the output.
func Parse(output string) ParseResult {
	var res ParseResult
	var rest strings.Builder

	pos := 0
	for pos < len(output) {
		start := indexOpenTag(output, pos)
		if start < 0 {
			rest.WriteString(output[pos:])
			break
		}
		rest.WriteString(output[pos:start])

		headEnd := strings.IndexByte(output[start:], '>')
		if headEnd < 0 {
			res.Malformed = append(res.Malformed, Malformed{Offset: start, Fragment: clip(output[start:]), Reason: "unterminated opening tag"})
			rest.WriteString(output[start:])
			break
		}
		headEnd += start
		head := output[start+len(openTag) : headEnd]
		bodyStart := headEnd + 1

		closeAt := strings.Index(output[bodyStart:], closeTag)
		nested := indexOpenTag(output, bodyStart)
		if closeAt < 0 {
			res.Malformed = append(res.Malformed, Malformed{Offset: start, Fragment: clip(output[start:]), Reason: "missing </event>"})
			rest.WriteString(output[start:bodyStart])
			pos = bodyStart
			continue
		}
		closeAt += bodyStart
		if nested >= 0 && nested < closeAt {
			res.Malformed = append(res.Malformed, Malformed{Offset: start, Fragment: clip(output[start:nested]), Reason: "event tag opened before previous one closed"})
			rest.WriteString(output[start:nested])
			pos = nested
			continue
		}

		attrs := parseAttrs(head)
		body := output[bodyStart:closeAt]
		pos = closeAt + len(closeTag)

		t := strings.TrimSpace(attrs["topic"])
		if t == "" {
			res.Malformed = append(res.Malformed, Malformed{Offset: start, Fragment: clip(output[start:pos]), Reason: "missing topic attribute"})
			continue
		}
		res.Events = append(res.Events, Event{
			Topic:   t,
			Payload: strings.TrimSpace(body),
			Target:  strings.TrimSpace(attrs["target"]),
		})
	}
	res.Remainder = rest.String()
	return res
}

// indexOpenTag finds the next "<event" that is followed by whitespace or '>'.
func indexOpenTag(s string, from int) int {
	for from < len(s) {
		i := strings.Index(s[from:], openTag)
		if i < 0 {
			return -1
		}
		i += from
		next := i + len(openTag)
		if next < len(s) {
			switch s[next] {
			case ' ', '\t', '\n', '\r', '>':
				return i
			}
		}
		from = next
	}
	return -1
}

func parseAttrs(head string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrPattern.FindAllStringSubmatch(head, -1) {
		v := m[2]
		if v == "" {
			v = m[3]
		}
		attrs[strings.ToLower(m[1])] = html.UnescapeString(v)
	}
	return attrs
}

func clip(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// ContainsPromise reports whether the completion promise appears in text.
func ContainsPromise(text, promise string, caseSensitive bool) bool {
	if promise == "" {
		return false
	}
	if caseSensitive {
		return strings.Contains(text, promise)
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(promise))
}
