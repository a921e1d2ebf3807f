package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, _, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestSetLevel(t *testing.T) {
	require.NoError(t, Init(Options{Level: "info", Service: "itemservice"}))
	assert.False(t, Get().Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, SetLevel("debug"))
	assert.True(t, Get().Core().Enabled(zapcore.DebugLevel))

	assert.Error(t, SetLevel("loud"))
}
