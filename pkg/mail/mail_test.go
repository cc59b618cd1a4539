package mail

import (
	"context"
	"errors"
	"testing"

	"contaminer/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestNewFromConfigWithoutHost(t *testing.T) {
	s, err := NewFromConfig(&config.Config{})
	require.NoError(t, err)
	require.IsType(t, Nop{}, s)
	require.NoError(t, s.Send(context.Background(), Message{To: []string{"a@example.com"}}))
}

func TestNewSMTPSender(t *testing.T) {
	cfg := &config.Config{}
	cfg.Mail.Host = "smtp.example.com"
	cfg.Mail.Port = 587
	cfg.Mail.From = "contaminer@example.com"

	s, err := NewFromConfig(cfg)
	require.NoError(t, err)
	require.IsType(t, &SMTPSender{}, s)
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	require.NoError(t, r.Send(context.Background(), Message{Subject: "Job complete"}))
	require.Len(t, r.Sent(), 1)

	r.Err = errors.New("smtp down")
	require.Error(t, r.Send(context.Background(), Message{}))
	require.Len(t, r.Sent(), 1)
}
