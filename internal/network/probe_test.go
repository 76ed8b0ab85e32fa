package network

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	assert.NoError(t, Probe(context.Background(), ln.Addr().String()))
}

func TestProbeUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	err = Probe(context.Background(), addr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestProbeAny(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedAddr := closed.Addr().String()
	closed.Close()

	got, err := ProbeAny(context.Background(), []string{closedAddr, ln.Addr().String()}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, ln.Addr().String(), got)
}

func TestProbeAnyEmpty(t *testing.T) {
	_, err := ProbeAny(context.Background(), nil, time.Second)
	require.Error(t, err)
}
