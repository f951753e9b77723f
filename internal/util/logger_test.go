package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitLoggerReplacesGlobal(t *testing.T) {
	require.NoError(t, InitLogger("development"))
	assert.Same(t, GetLogger(), zap.L())

	require.NoError(t, InitLogger("production"))
	assert.Same(t, GetLogger(), zap.L())
}

func TestGetLoggerWithoutInit(t *testing.T) {
	logger = nil
	assert.NotNil(t, GetLogger())
}
