package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAutoUsesJSONOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "debug", "auto")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger.WithField("component", "test").Info("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "test", entry["component"])
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "info", "text")
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(nil, "verbose", "text")
	assert.Error(t, err)

	_, err = New(nil, "info", "yaml")
	assert.Error(t, err)
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}
