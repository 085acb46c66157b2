package p2p_test

import (
	"bytes"
	"testing"

	"github.com/pbcoin/pbcoin/internal/p2p"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFramedRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"hello":"world"}`)

	require.NoError(t, p2p.WriteFramed(&buf, payload))
	got, err := p2p.ReadFramed(&buf)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestWriteReadEnvelopeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	env := p2p.Ok(p2p.PingPong, "src", "dst", "pub", map[string]int{"n": 1})

	require.NoError(t, p2p.WriteEnvelope(&buf, env))
	got, err := p2p.ReadEnvelope(&buf)
	require.NoError(t, err)

	require.Equal(t, env.Status, got.Status)
	require.Equal(t, env.Type, got.Type)
	require.Equal(t, env.SrcAddr, got.SrcAddr)
	require.JSONEq(t, string(env.Data), string(got.Data))
}

func TestReadFramedRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("99999999")
	_, err := p2p.ReadFramed(&buf)
	require.ErrorIs(t, err, p2p.ErrFrameTooLarge)
}

func TestAddrEqual(t *testing.T) {
	a := p2p.Addr{IP: "127.0.0.1", Port: 9000, PubKey: "abc"}
	b := p2p.Addr{IP: "127.0.0.1", Port: 9000, PubKey: "abc"}
	c := p2p.Addr{IP: "127.0.0.1", Port: 9001, PubKey: "abc"}

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}
