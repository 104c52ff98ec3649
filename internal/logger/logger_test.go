package logger

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriterLogger_FormatsCategory(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)

	l.LogClaim("order-1", "courier-a", true)

	out := buf.String()
	assert.Contains(t, out, "[CLAIM")
	assert.Contains(t, out, "order-1 by courier-a - won")
	assert.Contains(t, out, "logger_test.go")
}

func TestWriterLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)
	l.SetLevel(WARN)

	l.Info("SYNC", "dropped")
	l.LogSync("courier", "dropped too")
	l.Warn("SYNC", "kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
}

func TestWriterLogger_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Info("TEST", "line")
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, strings.Count(buf.String(), "\n"))
}
