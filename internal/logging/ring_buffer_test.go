package logging

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBufferWrapsAround(t *testing.T) {
	rb := newRingBuffer(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, rb.Fire(&log.Entry{Logger: log.StandardLogger(), Message: string(rune('a' + i))}))
	}
	entries := rb.getEntries()
	assert.Len(t, entries, 3)
	assert.Equal(t, "c", entries[0].Message)
	assert.Equal(t, "e", entries[2].Message)
}

func TestRingBufferFireCapturesFields(t *testing.T) {
	rb := newRingBuffer(10)
	entry := &log.Entry{
		Logger:  log.StandardLogger(),
		Time:    time.Now(),
		Level:   log.InfoLevel,
		Message: "hello",
		Data:    log.Fields{"stage": "parsing"},
	}
	require := require.New(t)
	require.NoError(rb.Fire(entry))
	entries := rb.getEntries()
	require.Len(entries, 1)
	require.Equal("hello", entries[0].Message)
	require.Equal("parsing", entries[0].Fields["stage"])
}

func TestRingBufferClearEmptiesBuffer(t *testing.T) {
	rb := newRingBuffer(5)
	require.NoError(t, rb.Fire(&log.Entry{Logger: log.StandardLogger(), Message: "x"}))
	rb.clear()
	assert.Empty(t, rb.getEntries())
}

func TestRecentTailFormatsLevelAndMessage(t *testing.T) {
	globalBuffer.clear()
	defer globalBuffer.clear()

	require.NoError(t, globalBuffer.Fire(&log.Entry{Logger: log.StandardLogger(), Level: log.WarnLevel, Message: "archive extraction failed"}))
	require.NoError(t, globalBuffer.Fire(&log.Entry{Logger: log.StandardLogger(), Level: log.InfoLevel, Message: "saving translation files"}))

	tail := RecentTail(1)
	require.Len(t, tail, 1)
	assert.Equal(t, "[INFO] saving translation files", tail[0])

	full := RecentTail(0)
	require.Len(t, full, 2)
	assert.Equal(t, "[WARN] archive extraction failed", full[0])
}

func TestClearGlobalBufferEmptiesRecentTail(t *testing.T) {
	globalBuffer.clear()
	require.NoError(t, globalBuffer.Fire(&log.Entry{Logger: log.StandardLogger(), Message: "x"}))
	ClearGlobalBuffer()
	assert.Empty(t, RecentTail(0))
}

type collectingHook struct {
	entries []*log.Entry
}

func (h *collectingHook) Levels() []log.Level { return log.AllLevels }
func (h *collectingHook) Fire(e *log.Entry) error {
	h.entries = append(h.entries, e)
	return nil
}

func TestThrottledHookCoalescesInfoButNotErrors(t *testing.T) {
	collector := &collectingHook{}
	hook := NewThrottledHook(collector, time.Hour)

	base := time.Now()
	for i := 0; i < 5; i++ {
		_ = hook.Fire(&log.Entry{Logger: log.StandardLogger(), Time: base, Level: log.InfoLevel, Message: "tick"})
	}
	assert.Len(t, collector.entries, 1, "only the first info entry should fire within the interval")

	_ = hook.Fire(&log.Entry{Logger: log.StandardLogger(), Time: base, Level: log.ErrorLevel, Message: "boom"})
	assert.Len(t, collector.entries, 2, "errors must bypass the throttle")
}
