package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("info", false, &buf)
	require.Nil(t, err)
	logger.Info().Str("task_id", "abc").Msg("task finished")
	logger.Debug().Msg("hidden")

	var entry map[string]any
	require.Nil(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	require.Equal(t, "info", entry["level"])
	require.Equal(t, "abc", entry["task_id"])
	require.Equal(t, "task finished", entry["message"])
	require.Contains(t, entry, "time")
	require.NotContains(t, buf.String(), "hidden")
}

func TestPrettyOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("DEBUG", true, &buf)
	require.Nil(t, err)
	logger.Debug().Str("name", "job").Msg("queued")
	require.Contains(t, buf.String(), "queued")
	require.Contains(t, buf.String(), "name=job")
	require.NotContains(t, buf.String(), "\x1b[")
}

func TestInvalidLevel(t *testing.T) {
	_, err := New("loud", false, &bytes.Buffer{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "loud")
}
