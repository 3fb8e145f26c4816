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

package network

import (
	"testing"
	"time"
)

// fakeClock drives a ContinuousBootstrap through simulated time.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func (c *fakeClock) set(base time.Time, d time.Duration) { c.t = base.Add(d) }

func newTestBootstrap() (*ContinuousBootstrap, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := NewContinuousBootstrap()
	b.now = clock.now
	return b, clock
}

func TestShallDiscoverBeforeFirstTrigger(t *testing.T) {
	b, _ := newTestBootstrap()
	for _, buckets := range []uint64{0, 1, 50, 256} {
		if !b.ShallDiscover(buckets) {
			t.Fatalf("never-triggered scheduler refused discovery at %d buckets", buckets)
		}
	}
}

func TestDiscoveryBackoff(t *testing.T) {
	b, clock := newTestBootstrap()
	base := clock.t

	b.Initiated()

	// With 2 non-empty buckets the next wave is due at +60s.
	clock.set(base, 59*time.Second)
	if b.ShallDiscover(2) {
		t.Error("discovery due at 59s with 2 buckets")
	}
	clock.set(base, 61*time.Second)
	if !b.ShallDiscover(2) {
		t.Error("discovery not due at 61s with 2 buckets")
	}

	// With 10 buckets the threshold moves to +300s.
	clock.set(base, 299*time.Second)
	if b.ShallDiscover(10) {
		t.Error("discovery due at 299s with 10 buckets")
	}
	clock.set(base, 300*time.Second)
	if !b.ShallDiscover(10) {
		t.Error("discovery not due at exactly 300s with 10 buckets")
	}
}

func TestZeroBucketsAlwaysDue(t *testing.T) {
	b, _ := newTestBootstrap()
	b.Initiated()
	if !b.ShallDiscover(0) {
		t.Error("zero non-empty buckets should make discovery immediately due")
	}
}

func TestLastTriggeredMonotone(t *testing.T) {
	b, clock := newTestBootstrap()

	b.Initiated()
	first, ok := b.LastTriggered()
	if !ok {
		t.Fatal("trigger not recorded")
	}

	// A clock that runs backwards must not move the stamp backwards.
	clock.advance(-10 * time.Second)
	b.Initiated()
	second, _ := b.LastTriggered()
	if second.Before(first) {
		t.Fatalf("last trigger moved backwards: %v -> %v", first, second)
	}

	clock.advance(30 * time.Second)
	b.Initiated()
	third, _ := b.LastTriggered()
	if third.Before(second) {
		t.Fatalf("last trigger moved backwards: %v -> %v", second, third)
	}
}
