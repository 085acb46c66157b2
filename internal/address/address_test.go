package address_test

import (
	"crypto/sha256"
	"math/big"
	"testing"

	"github.com/pbcoin/pbcoin/internal/address"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := address.Generate()
	require.NoError(t, err)

	msg := sha256.Sum256([]byte("hello pbcoin"))
	r, s := address.Sign(msg[:], kp)

	ok, err := address.Verify(msg[:], r, s, address.EncodePublic(kp.Public))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyRejectsBadRange(t *testing.T) {
	kp, err := address.Generate()
	require.NoError(t, err)

	msg := sha256.Sum256([]byte("hello pbcoin"))
	_, err = address.Verify(msg[:], big.NewInt(0), big.NewInt(0), address.EncodePublic(kp.Public))
	require.ErrorIs(t, err, address.ErrBadRange)
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	kp, err := address.Generate()
	require.NoError(t, err)

	msg := sha256.Sum256([]byte("hello pbcoin"))
	r, s := address.Sign(msg[:], kp)

	tampered := sha256.Sum256([]byte("goodbye pbcoin"))
	ok, err := address.Verify(tampered[:], r, s, address.EncodePublic(kp.Public))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEncodeDecodePublicRoundTrip(t *testing.T) {
	kp, err := address.Generate()
	require.NoError(t, err)

	encoded := address.EncodePublicB64(kp.Public)
	decoded, err := address.DecodePublicB64(encoded)
	require.NoError(t, err)
	require.True(t, kp.Public.IsEqual(decoded))
}
