package crypto

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if scryptN != keystore.StandardScryptN || scryptP != keystore.StandardScryptP {
		fmt.Fprintln(os.Stderr, "keystore must default to standard scrypt cost")
		os.Exit(1)
	}
	scryptN, scryptP = keystore.LightScryptN, keystore.LightScryptP
	os.Exit(m.Run())
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "operator.json")
	require.NoError(t, SaveToKeystore(path, key, "correct horse"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadFromKeystore(path, "correct horse")
	require.NoError(t, err)
	require.Equal(t, key.Address(), loaded.Address())

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}

func TestSaveToKeystoreValidatesInput(t *testing.T) {
	require.Error(t, SaveToKeystore("", nil, "x"))
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	require.Error(t, SaveToKeystore("", key, "x"))
}
