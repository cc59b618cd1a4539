package otelcol

import (
	"context"
	"testing"

	"contaminer/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestNewTracerProviderWithoutExport(t *testing.T) {
	cfg := &config.Config{AppName: "contaminer"}

	tp, err := NewTracerProvider(cfg)
	require.NoError(t, err)
	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestNewTracerProviderRejectsUnknownProtocol(t *testing.T) {
	cfg := &config.Config{}
	cfg.Otel.Addr = "localhost:4317"
	cfg.Otel.Protocol = "carrier-pigeon"

	_, err := NewTracerProvider(cfg)
	require.Error(t, err)
}
