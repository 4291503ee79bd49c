package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nixlim/failloc/internal/quickfix"
)

// logEntry is the JSON structure written by EventLog.
type logEntry struct {
	Timestamp string   `json:"ts"`
	Type      string   `json:"type"`
	Example   string   `json:"example,omitempty"`
	Message   string   `json:"message,omitempty"`
	Backtrace []string `json:"backtrace,omitempty"`
}

// EventLog writes every received callback as a JSON line, for debugging what
// a source fed to the reporters.
type EventLog struct {
	w   io.Writer
	mu  sync.Mutex
	now func() time.Time
}

// NewEventLog creates an EventLog that writes to the given writer.
func NewEventLog(w io.Writer) *EventLog {
	return &EventLog{w: w, now: time.Now}
}

func (l *EventLog) OnFailure(e quickfix.FailureEvent) {
	l.write(logEntry{
		Timestamp: l.timestamp(),
		Type:      "failure",
		Example:   e.ExampleLocation,
		Message:   e.ExceptionMessage,
		Backtrace: e.Backtrace,
	})
}

func (l *EventLog) OnRunComplete() {
	l.write(logEntry{
		Timestamp: l.timestamp(),
		Type:      "finished",
	})
}

func (l *EventLog) timestamp() string {
	return l.now().UTC().Format(time.RFC3339Nano)
}

// write serialises a logEntry as a single line. Serialisation errors are
// dropped so the debug log never disturbs the run.
func (l *EventLog) write(entry logEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "%s\n", data)
}
