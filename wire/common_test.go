// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// TestVarIntNonCanonical ensures variable length integers that are not encoded
// canonically return the expected error.
func TestVarIntNonCanonical(t *testing.T) {
	tests := []struct {
		name string // Test name for easier identification
		in   []byte // Value to decode
	}{
		{"0 encoded with 3 bytes", []byte{0xfd, 0x00, 0x00}},
		{"max single-byte value encoded with 3 bytes",
			[]byte{0xfd, 0xfc, 0x00}},
		{"0 encoded with 5 bytes", []byte{0xfe, 0x00, 0x00, 0x00, 0x00}},
		{"max three-byte value encoded with 5 bytes",
			[]byte{0xfe, 0xff, 0xff, 0x00, 0x00}},
		{"0 encoded with 9 bytes",
			[]byte{0xff, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
		{"max five-byte value encoded with 9 bytes",
			[]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x00}},
	}

	t.Logf("Running %d tests", len(tests))
	for i, test := range tests {
		val, err := ReadVarInt(bytes.NewReader(test.in))
		if err == nil {
			t.Errorf("ReadVarInt #%d (%s) succeeded with %d", i,
				test.name, val)
			continue
		}
		if val != 0 {
			t.Errorf("ReadVarInt #%d (%s)\n got: %d want: 0", i,
				test.name, val)
		}
	}
}

// TestVarIntSerializeSize tests the serialize size for variable length
// integers.
func TestVarIntSerializeSize(t *testing.T) {
	tests := []struct {
		val  uint64 // Value to get the serialized size for
		size int    // Expected serialized size
	}{
		// Single byte
		{0, 1},
		// Max single byte
		{0xfc, 1},
		// Min 2-byte
		{0xfd, 3},
		// Max 2-byte
		{0xffff, 3},
		// Min 4-byte
		{0x10000, 5},
		// Max 4-byte
		{0xffffffff, 5},
		// Min 8-byte
		{0x100000000, 9},
		// Max 8-byte
		{0xffffffffffffffff, 9},
	}

	t.Logf("Running %d tests", len(tests))
	for i, test := range tests {
		var buf bytes.Buffer
		if err := WriteVarInt(&buf, test.val); err != nil {
			t.Errorf("WriteVarInt #%d: %v", i, err)
			continue
		}
		if size := VarIntSerializeSize(test.val); size != test.size ||
			buf.Len() != test.size {

			t.Errorf("VarIntSerializeSize #%d got: %d (wrote %d), "+
				"want: %d", i, size, buf.Len(), test.size)
		}
	}
}

// TestVarBytes ensures byte arrays round trip and oversized or truncated
// encodings are refused.
func TestVarBytes(t *testing.T) {
	payload := bytes.Repeat([]byte{0xab}, 300)

	var buf bytes.Buffer
	if err := WriteVarBytes(&buf, payload); err != nil {
		t.Fatalf("WriteVarBytes: %v", err)
	}
	if buf.Len() != varBytesSerializeSize(payload) {
		t.Fatalf("serialized %d bytes, size reports %d", buf.Len(),
			varBytesSerializeSize(payload))
	}
	encoded := buf.Bytes()

	got, err := ReadVarBytes(bytes.NewReader(encoded), 300, "payload")
	if err != nil {
		t.Fatalf("ReadVarBytes: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("ReadVarBytes returned a different payload")
	}

	_, err = ReadVarBytes(bytes.NewReader(encoded), 299, "payload")
	if !errors.Is(err, ErrTxTooBig) {
		t.Fatalf("ReadVarBytes over the limit: got %v, want %v", err,
			ErrTxTooBig)
	}

	_, err = ReadVarBytes(bytes.NewReader(encoded[:100]), 300, "payload")
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("ReadVarBytes truncated: got %v, want %v", err,
			io.ErrUnexpectedEOF)
	}
}
