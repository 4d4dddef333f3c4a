package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug": LevelDebug,
		"INFO":  LevelInfo,
		"Warn":  LevelWarn,
		"error": LevelError,
		"FATAL": LevelFatal,
	}
	for in, want := range cases {
		got, ok := ParseLevel(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	got, ok := ParseLevel("verbose")
	assert.False(t, ok)
	assert.Equal(t, LevelInfo, got)
}

func TestSetLogLevelFiltersMessages(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := ReplaceCore(core)
	defer restore()
	defer SetLogLevel("INFO")

	SetLogLevel("WARN")
	assert.Equal(t, LevelWarn, CurrentLevel())

	Infof("dropped %d", 1)
	Warnf("kept %d", 2)
	Errorf("kept %d", 3)

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "kept 2", entries[0].Message)
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
		assert.Equal(t, "kept 3", entries[1].Message)
	}
}

func TestSetLogLevelUnknownDefaultsToInfo(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := ReplaceCore(core)
	defer restore()

	SetLogLevel("loud")
	assert.Equal(t, LevelInfo, CurrentLevel())
	assert.Equal(t, 1, logs.FilterMessageSnippet("Unknown log level").Len())
}

func TestSetEncoding(t *testing.T) {
	assert.NoError(t, SetEncoding("json"))
	assert.NoError(t, SetEncoding("console"))
	assert.Error(t, SetEncoding("xml"))
}
