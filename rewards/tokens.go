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
	"errors"
	"fmt"
)

// NanoTokens is a token amount in the smallest unit. One token is 10^9 nanos.
type NanoTokens uint64

// NanosPerToken is the subdivision of a whole token.
const NanosPerToken = 1_000_000_000

// ErrTokenOverflow is returned by checked arithmetic on token amounts.
var ErrTokenOverflow = errors.New("token amount overflow")

// Add returns n + other, failing on wrap-around.
func (n NanoTokens) Add(other NanoTokens) (NanoTokens, error) {
	sum := n + other
	if sum < n {
		return 0, ErrTokenOverflow
	}
	return sum, nil
}

// AsUint64 returns the raw nano count.
func (n NanoTokens) AsUint64() uint64 { return uint64(n) }

func (n NanoTokens) String() string {
	whole := uint64(n) / NanosPerToken
	frac := uint64(n) % NanosPerToken
	return fmt.Sprintf("%d.%09d", whole, frac)
}
