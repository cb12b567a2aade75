package logging

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]LogLevel{
		"trace": TRACE, "DEBUG": DEBUG, "": INFO, "warn": WARN, "error": ERROR,
	} {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestWriterLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger("net", &buf, INFO)

	l.Debug("скрыто")
	l.Info("пакет %d", 7)
	assert.Equal(t, "[INFO] [net] пакет 7\n", buf.String())
	assert.False(t, l.Enabled(DEBUG))

	buf.Reset()
	l.SetLevel(TRACE)
	l.LogProtocolError("127.0.0.1:1", errors.New("bad ack"), []byte{1, 2, 3})
	assert.Contains(t, buf.String(), "[DEBUG] [net] Protocol error from 127.0.0.1:1: bad ack")
	assert.Contains(t, buf.String(), "Raw data (3 bytes)")
}

func TestNilLoggerIsSilent(t *testing.T) {
	var l *Logger
	assert.False(t, l.Enabled(ERROR))
	assert.NotPanics(t, func() { l.Error("ничего") })
}

func TestHexDumpTruncates(t *testing.T) {
	assert.Equal(t, "No data", HexDump(nil))
	dump := HexDump(make([]byte, 1000))
	assert.Equal(t, 16, bytes.Count([]byte(dump), []byte("\n")))
}

func TestManagerReusesLoggers(t *testing.T) {
	lm := &LoggerManager{loggers: make(map[string]*Logger)}
	a := lm.MustGetLogger(ComponentStorage)
	b := lm.MustGetLogger(ComponentStorage)
	assert.Same(t, a, b)
	lm.MustGetLogger(ComponentGame)
	assert.Equal(t, []string{ComponentGame, ComponentStorage}, lm.Components())

	lm.SetAllLevels(ERROR)
	assert.False(t, a.Enabled(WARN))

	require.NoError(t, lm.CloseAll())
	assert.Empty(t, lm.Components())
}
