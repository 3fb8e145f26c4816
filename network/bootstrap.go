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
	"sync"
	"time"

	"github.com/kadvault/go-kadvault/params"
)

// ContinuousBootstrap tracks the continuous network discovery process and
// decides when the next wave of closest-peer queries is due. The interval
// between waves grows linearly with routing table coverage: a node with a
// nearly full table rarely discovers, a fresh node discovers immediately.
type ContinuousBootstrap struct {
	mu            sync.Mutex
	triggered     bool
	lastTriggered time.Time

	now func() time.Time // for tests
}

// NewContinuousBootstrap returns a scheduler that has never triggered.
func NewContinuousBootstrap() *ContinuousBootstrap {
	return &ContinuousBootstrap{now: time.Now}
}

// ShallDiscover reports whether a new discovery wave is due. Before the first
// trigger it always is; afterwards the wave is due once
// nonEmptyBuckets * BootstrapInterval has elapsed since the last trigger.
func (b *ContinuousBootstrap) ShallDiscover(nonEmptyBuckets uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.triggered {
		return true
	}
	interval := time.Duration(nonEmptyBuckets) * params.BootstrapInterval
	return !b.now().Before(b.lastTriggered.Add(interval))
}

// Initiated records that a discovery wave has been sent. The trigger
// timestamp never moves backwards.
func (b *ContinuousBootstrap) Initiated() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t := b.now(); t.After(b.lastTriggered) {
		b.lastTriggered = t
	}
	b.triggered = true
}

// LastTriggered returns the time of the last wave and whether one happened.
func (b *ContinuousBootstrap) LastTriggered() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastTriggered, b.triggered
}
