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
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/tsdb/fileutil"
)

const (
	// WalletDirName is the wallet directory under the node's root directory.
	WalletDirName = "wallet"

	secretKeyFileName = "main_secret_key"
	lockFileName      = "LOCK"
)

// LocalWallet holds the node's reward key, loaded once at start. The wallet
// directory is flock-guarded so two nodes cannot share a reward key store.
type LocalWallet struct {
	dir     string
	key     *MainSecretKey
	pubkey  *MainPubkey
	dirLock fileutil.Releaser
}

// LoadWallet opens the wallet under rootDir, creating and persisting a fresh
// reward key when none exists yet.
func LoadWallet(rootDir string) (*LocalWallet, error) {
	dir := filepath.Join(rootDir, WalletDirName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	release, _, err := fileutil.Flock(filepath.Join(dir, lockFileName))
	if err != nil {
		return nil, fmt.Errorf("wallet directory %s is locked by another instance: %w", dir, err)
	}

	key, err := loadOrCreateKey(filepath.Join(dir, secretKeyFileName))
	if err != nil {
		release.Release()
		return nil, err
	}
	pub, err := key.MainPubkey()
	if err != nil {
		release.Release()
		return nil, err
	}
	return &LocalWallet{dir: dir, key: key, pubkey: pub, dirLock: release}, nil
}

func loadOrCreateKey(path string) (*MainSecretKey, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil || len(raw) != SKSize {
			return nil, fmt.Errorf("corrupt reward key file %s", path)
		}
		var b [SKSize]byte
		copy(b[:], raw)
		return SecretKeyFromBytes(b)
	case os.IsNotExist(err):
		key, err := GenerateSecretKey()
		if err != nil {
			return nil, err
		}
		raw := key.Bytes()
		if err := os.WriteFile(path, []byte(hex.EncodeToString(raw[:])), 0600); err != nil {
			return nil, err
		}
		return key, nil
	default:
		return nil, err
	}
}

// MainPubkey returns the wallet's payment address.
func (w *LocalWallet) MainPubkey() *MainPubkey { return w.pubkey }

// Dir returns the wallet directory.
func (w *LocalWallet) Dir() string { return w.dir }

// Close releases the wallet directory lock.
func (w *LocalWallet) Close() error {
	if w.dirLock == nil {
		return nil
	}
	err := w.dirLock.Release()
	w.dirLock = nil
	return err
}
