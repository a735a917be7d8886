package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForServiceBeforeInit(t *testing.T) {
	saved := structuredLogger
	structuredLogger = nil
	t.Cleanup(func() { structuredLogger = saved })

	log := ForService("triage")
	require.NotNil(t, log)

	// Must be callable, not just non-nil.
	log.Info("startup before logging is configured")
}

func TestForServiceCarriesServiceAttribute(t *testing.T) {
	var structured bytes.Buffer
	SetOutput(&structured, io.Discard)
	t.Cleanup(func() { SetOutput(io.Discard, io.Discard) })

	ForService("worker").Info("worker line")

	var record map[string]any
	require.NoError(t, json.Unmarshal(structured.Bytes(), &record))
	assert.Equal(t, "worker", record["service"])
	assert.Equal(t, "worker line", record["msg"])
}

func TestSetLevelFiltersBothLoggers(t *testing.T) {
	var structured, human bytes.Buffer
	SetOutput(&structured, &human)
	t.Cleanup(func() { SetOutput(io.Discard, io.Discard) })

	SetLevel(LevelFatal)
	t.Cleanup(func() { Init() })

	Info("suppressed")
	HumanReadable().Info("also suppressed")

	assert.Zero(t, structured.Len())
	assert.Zero(t, human.Len())
}
