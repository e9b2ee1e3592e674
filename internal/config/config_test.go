package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// No config file in the test working directory: defaults apply.
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "release", cfg.Mode)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "queue", cfg.PairingPolicy)
	require.Equal(t, 30*time.Second, cfg.AcceptTimeout)
	require.Equal(t, 2*time.Second, cfg.LivenessPulse)
	require.Equal(t, "direct", cfg.Outbound)
	require.Equal(t, int64(32768), cfg.ReadLimit)
	require.Equal(t, 10, cfg.CallLimit)
	require.Equal(t, 30*time.Second, cfg.CallInterval)
}
