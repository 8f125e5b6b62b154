// Package fingerprint derives deterministic content identifiers for the
// ordered input list of a pipeline stage. Two stages with identical input
// content always produce identical fingerprints, independent of process,
// machine, filesystem path or map iteration order.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DisplayLen is the number of hex characters kept from the SHA-256 digest.
const DisplayLen = 16

// ID is a fixed-length lowercase hex fingerprint, safe for use as a file or
// directory name component.
type ID string

func (id ID) String() string { return string(id) }

type inputKind int

const (
	kindBytes inputKind = iota
	kindJSON
	kindValue
)

// Input is one element of a stage's ordered input list.
type Input struct {
	kind  inputKind
	name  string
	data  []byte
	value any
}

// Bytes wraps a raw byte input such as a source document, a prior stage
// artifact or a transform script body. The name only identifies the input
// in error messages; it does not participate in the hash.
func Bytes(name string, data []byte) Input {
	return Input{kind: kindBytes, name: name, data: data}
}

// String wraps a UTF-8 string input.
func String(name, s string) Input {
	return Input{kind: kindBytes, name: name, data: []byte(s)}
}

// JSON wraps an encoded JSON value. It is canonicalized before hashing, so
// key order and whitespace do not affect the fingerprint.
func JSON(name string, raw []byte) Input {
	return Input{kind: kindJSON, name: name, data: raw}
}

// Value wraps a Go value that is marshalled and canonicalized. Values
// containing non-finite floats are rejected with a SerializationError;
// there is no sentinel coercion.
func Value(name string, v any) Input {
	return Input{kind: kindValue, name: name, value: v}
}

// SerializationError reports an input that could not be canonicalized.
type SerializationError struct {
	Input string
	Cause error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("fingerprint: cannot canonicalize input %q: %v", e.Input, e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }

// canonical returns the exact bytes an input contributes to the hash.
func (in Input) canonical() ([]byte, error) {
	switch in.kind {
	case kindBytes:
		return in.data, nil
	case kindJSON:
		var v any
		if err := json.Unmarshal(in.data, &v); err != nil {
			return nil, err
		}
		// encoding/json emits object keys in sorted order, which makes the
		// re-encoded form canonical.
		return json.Marshal(v)
	case kindValue:
		b, err := json.Marshal(in.value)
		if err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, err
		}
		return json.Marshal(v)
	}
	return nil, fmt.Errorf("unknown input kind %d", in.kind)
}

// Compute hashes the ordered inputs into an ID. Every input is framed with
// a big-endian uint64 length prefix before hashing, so adjacent inputs can
// never be confused ("ab","c" and "a","bc" hash differently).
func Compute(inputs ...Input) (ID, error) {
	h := sha256.New()
	var prefix [8]byte
	for i, in := range inputs {
		body, err := in.canonical()
		if err != nil {
			name := in.name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return "", &SerializationError{Input: name, Cause: err}
		}
		binary.BigEndian.PutUint64(prefix[:], uint64(len(body)))
		h.Write(prefix[:])
		h.Write(body)
	}
	return ID(hex.EncodeToString(h.Sum(nil))[:DisplayLen]), nil
}

// Checksum returns the full 64-character hex SHA-256 of data. Used to
// record source document checksums in stage metadata.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
