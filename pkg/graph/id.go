package graph

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/google/uuid"
)

// Id is the set of identifier types a datastore can be instantiated with.
// Identifiers must be comparable, losslessly serializable and binary-encodable
// so backends can use them as storage keys. Numeric, textual and random
// 128-bit identifiers are all valid instantiations with different collision
// and ordering properties.
type Id interface {
	uint64 | string | uuid.UUID
}

// EncodeId renders an identifier as a key-safe byte string. Encodings sort the
// same way the identifier's natural order does: uint64 is big-endian, strings
// and uuids are their raw bytes.
func EncodeId[I Id](id I) []byte {
	switch v := any(id).(type) {
	case uint64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v)
		return b[:]
	case string:
		return []byte(v)
	case uuid.UUID:
		b := make([]byte, len(v))
		copy(b, v[:])
		return b
	}
	panic("graph: unhandled id instantiation")
}

// DecodeId is the inverse of EncodeId.
func DecodeId[I Id](b []byte) (I, error) {
	var id I
	switch p := any(&id).(type) {
	case *uint64:
		if len(b) != 8 {
			return id, &ValidationError{Kind: InvalidValue}
		}
		*p = binary.BigEndian.Uint64(b)
	case *string:
		*p = string(b)
	case *uuid.UUID:
		u, err := uuid.FromBytes(b)
		if err != nil {
			return id, &ValidationError{Kind: InvalidValue}
		}
		*p = u
	}
	return id, nil
}

// AppendId appends a length-prefixed encoding of id to dst, for use as one
// segment of a composite storage key.
func AppendId[I Id](dst []byte, id I) []byte {
	enc := EncodeId(id)
	dst = binary.AppendUvarint(dst, uint64(len(enc)))
	return append(dst, enc...)
}

// AppendType appends a length-prefixed type segment to dst.
func AppendType(dst []byte, t Type) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(t)))
	return append(dst, t...)
}

// ConsumeId reads one length-prefixed identifier segment from b and returns
// the identifier and the remaining bytes.
func ConsumeId[I Id](b []byte) (I, []byte, error) {
	var id I
	n, read := binary.Uvarint(b)
	if read <= 0 || uint64(len(b)-read) < n {
		return id, nil, &ValidationError{Kind: InvalidValue}
	}
	id, err := DecodeId[I](b[read : read+int(n)])
	if err != nil {
		return id, nil, err
	}
	return id, b[read+int(n):], nil
}

// ConsumeType reads one length-prefixed type segment from b.
func ConsumeType(b []byte) (Type, []byte, error) {
	n, read := binary.Uvarint(b)
	if read <= 0 || uint64(len(b)-read) < n {
		return "", nil, &ValidationError{Kind: InvalidValue}
	}
	return Type(b[read : read+int(n)]), b[read+int(n):], nil
}

// NextId derives the successor of an identifier: the smallest identifier that
// sorts strictly after id. Backends use it to form exclusive lower bounds for
// ordered range scans. The derivation fails with CannotIncrementId when the
// identifier space is exhausted (uint64 at its maximum, a uuid of all 0xff
// bytes); string identifiers gain a trailing NUL and never exhaust.
func NextId[I Id](id I) (I, error) {
	switch p := any(&id).(type) {
	case *uint64:
		if *p == math.MaxUint64 {
			return id, &ValidationError{Kind: CannotIncrementId}
		}
		*p++
	case *string:
		*p += "\x00"
	case *uuid.UUID:
		for i := len(p) - 1; i >= 0; i-- {
			if p[i] < 0xff {
				p[i]++
				return id, nil
			}
			p[i] = 0
		}
		return id, &ValidationError{Kind: CannotIncrementId}
	}
	return id, nil
}

// CompareIds orders identifiers by their encoded form.
func CompareIds[I Id](a, b I) int {
	return bytes.Compare(EncodeId(a), EncodeId(b))
}
