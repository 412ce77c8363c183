package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForServiceBeforeInit(t *testing.T) {
	saved := structuredLogger
	structuredLogger = nil
	t.Cleanup(func() { structuredLogger = saved })

	logger := ForService("datastore")
	require.NotNil(t, logger)
	assert.NotPanics(t, func() {
		logger.Info("store opened", "path", "roadwatch.db")
	})
}

func TestForServiceCarriesServiceAttribute(t *testing.T) {
	saved := structuredLogger
	t.Cleanup(func() { structuredLogger = saved })

	var structured, human bytes.Buffer
	SetOutput(&structured, &human)

	ForService("pipeline").Info("phase complete", "phase", "detection")

	out := structured.String()
	assert.Contains(t, out, `"service":"pipeline"`)
	assert.Contains(t, out, `"phase":"detection"`)
}
