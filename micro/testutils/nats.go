// Package testutils starts an in-process NATS server with JetStream for tests.
package testutils

import (
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/argus-labs/tabletop/micro"
)

type NATS struct {
	Server *server.Server
}

// NewNATS runs a JetStream-enabled server on a random port for the duration of the test.
func NewNATS(t *testing.T) *NATS {
	t.Helper()

	opts := &server.Options{
		Host:                  "127.0.0.1",
		Port:                  -1,
		NoLog:                 true,
		NoSigs:                true,
		MaxControlLine:        4096,
		DisableShortFirstPing: true,
		JetStream:             true,
		StoreDir:              t.TempDir(),
	}
	s := test.RunServer(opts)
	t.Cleanup(s.Shutdown)
	return &NATS{Server: s}
}

// NewClient connects a client that is closed when the test ends.
func (n *NATS) NewClient(t *testing.T) *micro.Client {
	t.Helper()

	c, err := micro.NewClient(
		micro.WithNATSConfig(micro.NATSConfig{Name: t.Name(), URL: n.Server.ClientURL()}),
		micro.WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}
