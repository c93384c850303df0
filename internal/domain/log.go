package domain

import "fmt"

// ResolutionLog is the append-only trail of a single resolution.
// It is owned by one resolution and must not be shared between goroutines.
type ResolutionLog struct {
	messages []string
}

// NewResolutionLog creates an empty log.
func NewResolutionLog() *ResolutionLog {
	return &ResolutionLog{}
}

// Logf appends a formatted message.
func (l *ResolutionLog) Logf(format string, args ...any) {
	l.messages = append(l.messages, fmt.Sprintf(format, args...))
}

// Messages returns a copy of the messages in the order they were logged.
func (l *ResolutionLog) Messages() []string {
	out := make([]string, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of logged messages.
func (l *ResolutionLog) Len() int {
	return len(l.messages)
}
