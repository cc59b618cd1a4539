package profiling

import (
	"testing"

	"contaminer/pkg/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
)

func TestProfilingDisabledWithoutAddress(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	require.NoError(t, ProvideProfiling(lc, &config.Config{}))
	lc.RequireStart().RequireStop()
}

func TestNewConfig(t *testing.T) {
	cfg := &config.Config{AppName: "contaminer", AppEnv: "production"}
	cfg.Pyroscope.Addr = "http://pyroscope:4040"

	pc := NewConfig(cfg)
	require.Equal(t, "contaminer", pc.ApplicationName)
	require.Equal(t, "http://pyroscope:4040", pc.ServerAddress)
	require.Equal(t, "production", pc.Tags["env"])
}
