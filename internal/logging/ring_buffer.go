// Package logging wires logrus into RenLocalizer's CLI and pipeline: a ring
// buffer retains recent entries for the bubbletea progress view, and a
// throttled hook coalesces noisy non-critical log lines per spec.md §4.5.
package logging

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultBufferSize is the default capacity of the ring buffer.
const DefaultBufferSize = 1000

// LogEntry represents a single log entry stored in the ring buffer.
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Message   string
	Source    string // Source file:line if available
	Fields    map[string]interface{}
}

// ringBuffer is a thread-safe circular buffer of recent log entries. It
// implements logrus.Hook so Configure can register it directly, and backs
// RecentTail for the progress UI's scrolling log view — the only two things
// RenLocalizer actually needs from it, unlike the teacher's generic
// Len/Cap/GetEntries/direct-Write surface built for a standalone log
// inspector.
type ringBuffer struct {
	mu       sync.RWMutex
	entries  []LogEntry
	capacity int
	head     int // index where the next entry will be written
	count    int // number of entries currently in the buffer
	full     bool
}

// newRingBuffer creates a ring buffer with the given capacity. If capacity
// is 0 or negative, DefaultBufferSize is used.
func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &ringBuffer{
		entries:  make([]LogEntry, capacity),
		capacity: capacity,
	}
}

// Levels implements logrus.Hook: every level is captured so RecentTail can
// surface debug-level pipeline chatter, not just warnings and errors.
func (rb *ringBuffer) Levels() []log.Level {
	return log.AllLevels
}

// Fire implements logrus.Hook.
func (rb *ringBuffer) Fire(entry *log.Entry) error {
	source := ""
	if entry.Caller != nil {
		source = formatSource(entry.Caller.File, entry.Caller.Line)
	}

	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}

	fields := make(map[string]interface{}, len(entry.Data))
	for k, v := range entry.Data {
		fields[k] = v
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.writeLocked(LogEntry{
		Timestamp: entry.Time,
		Level:     level,
		Message:   entry.Message,
		Source:    source,
		Fields:    fields,
	})
	return nil
}

func formatSource(file string, line int) string {
	short := file
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' || file[i] == '\\' {
			short = file[i+1:]
			break
		}
	}
	return short + ":" + strconv.Itoa(line)
}

func (rb *ringBuffer) writeLocked(entry LogEntry) {
	rb.entries[rb.head] = entry
	rb.head = (rb.head + 1) % rb.capacity
	if rb.count < rb.capacity {
		rb.count++
	} else {
		rb.full = true
	}
}

// getEntries returns a copy of all entries in the buffer, oldest first.
func (rb *ringBuffer) getEntries() []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.count == 0 {
		return []LogEntry{}
	}

	result := make([]LogEntry, rb.count)
	if rb.full {
		copied := copy(result, rb.entries[rb.head:])
		copy(result[copied:], rb.entries[:rb.head])
	} else {
		copy(result, rb.entries[:rb.count])
	}

	for i := range result {
		if result[i].Fields != nil {
			fieldsCopy := make(map[string]interface{}, len(result[i].Fields))
			for k, v := range result[i].Fields {
				fieldsCopy[k] = v
			}
			result[i].Fields = fieldsCopy
		}
	}
	return result
}

// getRecentEntries returns a copy of the n most recent entries, oldest
// first. If n is <= 0 or covers the whole buffer, every entry is returned.
func (rb *ringBuffer) getRecentEntries(n int) []LogEntry {
	entries := rb.getEntries()
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[len(entries)-n:]
}

// clear removes all entries, so a later run sharing the process does not
// see an earlier run's tail.
func (rb *ringBuffer) clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.head = 0
	rb.count = 0
	rb.full = false
	for i := range rb.entries {
		rb.entries[i] = LogEntry{}
	}
}

// globalBuffer is the process-wide ring buffer Configure registers as a
// logrus hook; RecentTail and ClearGlobalBuffer are the only exported doors
// into it.
var globalBuffer = newRingBuffer(DefaultBufferSize)

// RecentTail renders the n most recent log entries as plain strings
// ("[LEVEL] message"), oldest first, for the bubbletea progress view's
// scrolling log tail (cmd/renlocalizer's progressModel). Pass n <= 0 for the
// entire retained buffer.
func RecentTail(n int) []string {
	entries := globalBuffer.getRecentEntries(n)
	tail := make([]string, len(entries))
	for i, e := range entries {
		tail[i] = fmt.Sprintf("[%s] %s", strings.ToUpper(e.Level), e.Message)
	}
	return tail
}

// ClearGlobalBuffer empties the global ring buffer, so a caller running
// several pipelines in one process can start each run with an empty log
// tail.
func ClearGlobalBuffer() {
	globalBuffer.clear()
}
