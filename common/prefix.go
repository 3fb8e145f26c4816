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

package common

import "math/bits"

// CommonPrefixLen counts the leading bits shared by a and b. Identical
// identifiers share all IdBits bits; e.g. 11110000 and 11111111 share 4.
func CommonPrefixLen(a, b Id) int {
	for i := 0; i < IdLength; i++ {
		if a[i] != b[i] {
			return i*8 + bits.LeadingZeros8(a[i]^b[i])
		}
	}
	return IdBits
}

// FlipBit returns a copy of id with the bit at position i (counting from the
// most significant bit) inverted. It is used to construct identifiers at an
// exact common-prefix length from a reference point.
func FlipBit(id Id, i int) Id {
	if i < 0 || i >= IdBits {
		return id
	}
	out := id
	out[i/8] ^= 0x80 >> uint(i%8)
	return out
}
