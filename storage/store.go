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

// Package storage implements the node's local record store on top of
// leveldb, fronted by an in-memory hot cache.
package storage

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/kadvault/go-kadvault/common"
	"github.com/kadvault/go-kadvault/protocol"
	"github.com/kadvault/go-kadvault/rewards"
)

const (
	// DefaultMaxRecords bounds how many records a store accepts before
	// rejecting writes.
	DefaultMaxRecords = 4096

	// baseStoreCost is the quote for an empty store, in nanos. The quote
	// doubles for every tenth of the store that fills up.
	baseStoreCost rewards.NanoTokens = 10

	cacheSizeBytes = 32 * 1024 * 1024
	storeDirName   = "record_store"
)

var recordPrefix = []byte("r")

// ErrStoreFull is returned by Put once the record cap is reached.
var ErrStoreFull = errors.New("record store is full")

// RecordStore persists records under the node's root directory. All methods
// are safe for concurrent use; writes are serialised by the store, not by the
// callers.
type RecordStore struct {
	db    *leveldb.DB
	cache *fastcache.Cache
	max   int

	mu    sync.RWMutex
	count int

	logger log.Logger
}

// Open opens (or creates) the record store under rootDir.
func Open(rootDir string, maxRecords int) (*RecordStore, error) {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	db, err := leveldb.OpenFile(filepath.Join(rootDir, storeDirName), nil)
	if err != nil {
		return nil, err
	}
	s := &RecordStore{
		db:     db,
		cache:  fastcache.New(cacheSizeBytes),
		max:    maxRecords,
		logger: log.New("db", "records"),
	}
	if err := s.countRecords(); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info("Opened record store", "records", s.count, "max", s.max)
	return s, nil
}

func (s *RecordStore) countRecords() error {
	iter := s.db.NewIterator(util.BytesPrefix(recordPrefix), nil)
	defer iter.Release()
	n := 0
	for iter.Next() {
		n++
	}
	s.count = n
	return iter.Error()
}

func recordKey(id common.Id) []byte {
	return append(append([]byte(nil), recordPrefix...), id[:]...)
}

// Put stores a record, overwriting any previous value under the same key.
func (s *RecordStore) Put(rec *protocol.Record) error {
	data, err := rlp.EncodeToBytes(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existed, err := s.db.Has(recordKey(rec.Key), nil)
	if err != nil {
		return err
	}
	if !existed && s.count >= s.max {
		return ErrStoreFull
	}
	if err := s.db.Put(recordKey(rec.Key), data, nil); err != nil {
		return err
	}
	if !existed {
		s.count++
	}
	s.cache.Set(rec.Key[:], data)
	s.logger.Trace("Stored record", "key", rec.Key, "size", len(rec.Value))
	return nil
}

// Get returns the record stored under key, or (nil, nil) when absent.
func (s *RecordStore) Get(key common.Id) (*protocol.Record, error) {
	var data []byte
	if cached, ok := s.cache.HasGet(nil, key[:]); ok {
		data = cached
	} else {
		stored, err := s.db.Get(recordKey(key), nil)
		if err == ldberrors.ErrNotFound {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		data = stored
		s.cache.Set(key[:], data)
	}
	rec := new(protocol.Record)
	if err := rlp.DecodeBytes(data, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Has reports whether a record is stored under key.
func (s *RecordStore) Has(key common.Id) (bool, error) {
	if s.cache.Has(key[:]) {
		return true, nil
	}
	return s.db.Has(recordKey(key), nil)
}

// Remove deletes the record under key, if any. Used when a write fails
// validation after the fact.
func (s *RecordStore) Remove(key common.Id) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existed, err := s.db.Has(recordKey(key), nil)
	if err != nil {
		return err
	}
	if !existed {
		return nil
	}
	if err := s.db.Delete(recordKey(key), nil); err != nil {
		return err
	}
	s.cache.Del(key[:])
	s.count--
	return nil
}

// Keys enumerates the keys of all locally held records.
func (s *RecordStore) Keys() ([]common.Id, error) {
	iter := s.db.NewIterator(util.BytesPrefix(recordPrefix), nil)
	defer iter.Release()
	var keys []common.Id
	for iter.Next() {
		keys = append(keys, common.BytesToId(iter.Key()[len(recordPrefix):]))
	}
	return keys, iter.Error()
}

// Count returns the number of stored records.
func (s *RecordStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// StoreCost quotes the price of storing one more record. The quote doubles
// with every tenth of used capacity, so full stores price themselves out of
// new uploads.
func (s *RecordStore) StoreCost() (rewards.NanoTokens, error) {
	s.mu.RLock()
	used := s.count
	s.mu.RUnlock()

	step := uint(used * 10 / s.max)
	if step > 9 {
		step = 9
	}
	return baseStoreCost << step, nil
}

// Close flushes and closes the backing database.
func (s *RecordStore) Close() error {
	s.cache.Reset()
	return s.db.Close()
}
