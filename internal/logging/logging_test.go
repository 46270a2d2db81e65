package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", "json")

	l.Info("dropped")
	l.Warn("kept", "scheme_id", 7)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, float64(7), rec["scheme_id"])
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "debug", "text").With("component", "deploy")
	l.Debug("hello")
	assert.Contains(t, buf.String(), "component=deploy")
	assert.Contains(t, buf.String(), "msg=hello")
}
