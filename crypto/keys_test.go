package crypto

import (
	"os"
	"path/filepath"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestKeyRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	restored, err := PrivateKeyFromBytes(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address(), restored.PubKey().Address())
}

func TestAddressEncoding(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	addr := key.PubKey().Address()
	decoded, err := DecodeAddress(addr.String())
	require.NoError(t, err)
	require.Equal(t, addr, decoded)

	_, err = DecodeAddress("deadbeef")
	require.Error(t, err)
	_, err = DecodeAddress("0x1234")
	require.Error(t, err)
}

func TestSignProducesRecoverableSignature(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	digest := ethcrypto.Keccak256([]byte("payload"))
	sig, err := key.Sign(digest)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	recovered, err := ethcrypto.SigToPub(digest, sig)
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().Bytes(), ethcrypto.PubkeyToAddress(*recovered).Bytes())

	_, err = key.Sign([]byte("short"))
	require.Error(t, err)
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "market.json")
	require.NoError(t, SaveToKeystore(path, key, "passphrase"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadFromKeystore(path, "passphrase")
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address(), loaded.PubKey().Address())

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}
