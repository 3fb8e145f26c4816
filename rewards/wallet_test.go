// Copyright 2024 The go-kadvault Authors
// This file is part of the go-kadvault library.
//
// The go-kadvault library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-kadvault library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-kadvault library. If not, see <http://www.gnu.org/licenses/>.

package rewards

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHardCodedKeysParse(t *testing.T) {
	require.NotNil(t, FoundationPK)
	require.NotNil(t, NetworkRoyaltiesPK)
	require.False(t, FoundationPK.Equal(NetworkRoyaltiesPK))
}

func TestPubkeyHexRoundTrip(t *testing.T) {
	pk, err := PubkeyFromHex(FoundationPK.Hex())
	require.NoError(t, err)
	require.True(t, pk.Equal(FoundationPK))
}

func TestWalletCreateAndReload(t *testing.T) {
	root := t.TempDir()

	w, err := LoadWallet(root)
	require.NoError(t, err)
	addr := w.MainPubkey()
	require.NotNil(t, addr)
	require.NoError(t, w.Close())

	// A second load must find the persisted key, not mint a new one.
	w2, err := LoadWallet(root)
	require.NoError(t, err)
	defer w2.Close()
	require.True(t, w2.MainPubkey().Equal(addr))
}

func TestWalletLockExcludesSecondInstance(t *testing.T) {
	root := t.TempDir()

	w, err := LoadWallet(root)
	require.NoError(t, err)
	defer w.Close()

	_, err = LoadWallet(root)
	require.Error(t, err)
}

func TestGeneratedKeysDiffer(t *testing.T) {
	a, err := GenerateSecretKey()
	require.NoError(t, err)
	b, err := GenerateSecretKey()
	require.NoError(t, err)
	require.NotEqual(t, a.Bytes(), b.Bytes())
}
