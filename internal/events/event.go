// Package events defines loop events, the agent-output tag parser, the
// observer bus, and the append-only event history.
package events

import (
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/msageha/hatloop/internal/topic"
)

const (
	// TopicTerminate is published once when the loop exits. It is never routed.
	TopicTerminate = "loop.terminate"
	// BlockedSegment marks a topic as a blocked outcome when it is the last segment.
	BlockedSegment = "blocked"
	// UnknownTaskID is used when a blocked payload carries no task id.
	UnknownTaskID = "unknown"
)

// Event is one published event.
type Event struct {
	Topic     string    `json:"topic"`
	Payload   string    `json:"payload"`
	SourceHat string    `json:"source_hat,omitempty"`
	Target    string    `json:"target,omitempty"`
	Iteration int       `json:"iteration"`
	Timestamp time.Time `json:"timestamp"`
}

// IsBlocked reports whether e signals a blocked unit of work.
func (e Event) IsBlocked() bool {
	return topic.LastSegment(e.Topic) == BlockedSegment
}

var taskIDPattern = regexp.MustCompile(`task_id\s*[:=]\s*["']?([^\s"',]+)`)

// ExplicitTaskID returns the task id declared in the payload with a
// task_id marker (task_id="T1", task_id: T1, task_id=T1).
func ExplicitTaskID(payload string) (string, bool) {
	m := taskIDPattern.FindStringSubmatch(payload)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// TaskID returns the explicit task id, else the first non-empty payload line,
// else UnknownTaskID.
func TaskID(payload string) string {
	if id, ok := ExplicitTaskID(payload); ok {
		return id
	}
	for _, line := range strings.Split(payload, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return UnknownTaskID
}

// Format renders e as an event tag.
func Format(e Event) string {
	var sb strings.Builder
	sb.WriteString(`<event topic="`)
	sb.WriteString(html.EscapeString(e.Topic))
	sb.WriteByte('"')
	if e.Target != "" {
		sb.WriteString(` target="`)
		sb.WriteString(html.EscapeString(e.Target))
		sb.WriteByte('"')
	}
	sb.WriteByte('>')
	sb.WriteString(e.Payload)
	sb.WriteString(closeTag)
	return sb.String()
}
