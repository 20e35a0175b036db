package natsbroker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfig_URL(t *testing.T) {
	cfg := Config{Address: "nats.internal", Port: 4222}
	require.Equal(t, "nats://nats.internal:4222", cfg.url())
}

func TestConnect_RejectsPartialTLSMaterial(t *testing.T) {
	b := New(Config{Address: "127.0.0.1", Port: 4222, TLSCert: "/tmp/cert.pem"}, nil)
	err := b.Connect(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "tls_cert and tls_key")
}
