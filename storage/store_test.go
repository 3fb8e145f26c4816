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

package storage

import (
	"bytes"
	"testing"

	"github.com/kadvault/go-kadvault/common"
	"github.com/kadvault/go-kadvault/protocol"
)

func openTestStore(t *testing.T, max int) *RecordStore {
	t.Helper()
	s, err := Open(t.TempDir(), max)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t, 0)

	rec := &protocol.Record{
		Key:   common.ContentId([]byte("some record")),
		Value: []byte("payload"),
	}
	if err := s.Put(rec); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(rec.Key)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !bytes.Equal(got.Value, rec.Value) {
		t.Fatalf("got %v, want %v", got, rec)
	}
	ok, err := s.Has(rec.Key)
	if err != nil || !ok {
		t.Fatalf("Has = %v, %v", ok, err)
	}
}

func TestGetMissingRecord(t *testing.T) {
	s := openTestStore(t, 0)
	got, err := s.Get(common.ContentId([]byte("nothing here")))
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil record, got %v", got)
	}
}

func TestRemoveAndCount(t *testing.T) {
	s := openTestStore(t, 0)
	key := common.ContentId([]byte("doomed"))
	if err := s.Put(&protocol.Record{Key: key, Value: []byte("x")}); err != nil {
		t.Fatal(err)
	}
	if s.Count() != 1 {
		t.Fatalf("count = %d, want 1", s.Count())
	}
	if err := s.Remove(key); err != nil {
		t.Fatal(err)
	}
	if s.Count() != 0 {
		t.Fatalf("count after remove = %d, want 0", s.Count())
	}
	// Removing an absent key is a no-op.
	if err := s.Remove(key); err != nil {
		t.Fatal(err)
	}
}

func TestStoreFull(t *testing.T) {
	s := openTestStore(t, 2)
	for i := byte(0); i < 2; i++ {
		if err := s.Put(&protocol.Record{Key: common.ContentId([]byte{i}), Value: []byte{i}}); err != nil {
			t.Fatal(err)
		}
	}
	err := s.Put(&protocol.Record{Key: common.ContentId([]byte("overflow")), Value: []byte("x")})
	if err != ErrStoreFull {
		t.Fatalf("err = %v, want ErrStoreFull", err)
	}
	// Overwriting an existing key is still allowed at capacity.
	if err := s.Put(&protocol.Record{Key: common.ContentId([]byte{0}), Value: []byte("new")}); err != nil {
		t.Fatal(err)
	}
}

func TestStoreCostGrowsWithOccupancy(t *testing.T) {
	s := openTestStore(t, 10)
	empty, err := s.StoreCost()
	if err != nil {
		t.Fatal(err)
	}
	for i := byte(0); i < 5; i++ {
		if err := s.Put(&protocol.Record{Key: common.ContentId([]byte{i}), Value: []byte{i}}); err != nil {
			t.Fatal(err)
		}
	}
	half, err := s.StoreCost()
	if err != nil {
		t.Fatal(err)
	}
	if half <= empty {
		t.Fatalf("cost at half occupancy %v not above empty cost %v", half, empty)
	}
}

func TestKeysEnumeration(t *testing.T) {
	s := openTestStore(t, 0)
	want := map[common.Id]bool{}
	for i := byte(0); i < 5; i++ {
		key := common.ContentId([]byte{i})
		want[key] = true
		if err := s.Put(&protocol.Record{Key: key, Value: []byte{i}}); err != nil {
			t.Fatal(err)
		}
	}
	keys, err := s.Keys()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != len(want) {
		t.Fatalf("got %d keys, want %d", len(keys), len(want))
	}
	for _, k := range keys {
		if !want[k] {
			t.Fatalf("unexpected key %s", k)
		}
	}
}
