// Copyright (c) 2015 The Decred developers
// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainhash

import (
	"io"

	"golang.org/x/crypto/blake2b"
)

// HashB calculates hash(b) and returns the resulting bytes.
func HashB(b []byte) []byte {
	hash := blake2b.Sum256(b)
	return hash[:]
}

// HashH calculates hash(b) and returns the resulting bytes as a Hash.
func HashH(b []byte) Hash {
	return Hash(blake2b.Sum256(b))
}

// HashRaw calculates hash(w) where w is the resulting bytes from the given
// serialize function and returns the resulting bytes as a Hash.
func HashRaw(serialize func(w io.Writer) error) Hash {
	// A nil key never fails, and the encoder can only fail on nil pointers
	// or out of memory, both of which would panic at run time anyway.
	h, _ := blake2b.New256(nil)
	_ = serialize(h)

	var res Hash
	h.Sum(res[:0])
	return res
}
