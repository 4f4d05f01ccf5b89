package memo

import (
	"context"
	"encoding/binary"
	"fmt"
	"reflect"
)

// Digest is the pluggable cryptographic hash backing every fingerprint in one
// store. internal/digest provides SHA-256 (default) and BLAKE2b
// implementations; any type with a matching Sum method satisfies this
// interface structurally, so internal/digest never needs to import this
// package (SPEC_FULL.md §2.2, §4.2).
type Digest interface {
	Sum(data []byte) []byte
}

// Scalar type tags. These are part of the canonical encoding and must never
// be renumbered once a store has been written with them.
const (
	tagNil byte = 0x10 + iota
	tagBool
	tagInt
	tagString
	tagBytes
)

const (
	seqSentinel    byte = 0x01
	mapSentinel    byte = 0x01
	mapKeyValueSep byte = 0x03
	joinSep        byte = 0x00
)

// Fingerprint computes the deterministic fingerprint of an arbitrary value
// tree using the digest configured on ctx (see Engine.Context); a context
// carrying no digest uses SHA-256.
// It is the exported entry point described in SPEC_FULL.md §4.2.
func Fingerprint(ctx context.Context, v Value) ([]byte, error) {
	return fingerprintValue(digestFromContext(ctx), v)
}

// fingerprintValue is total over Kind and recursive. Composite kinds encode
// to a byte buffer per the SPEC_FULL.md §4.2 table and then hash that buffer
// with d; Node delegates directly to the node's own fingerprint.
func fingerprintValue(d Digest, v Value) ([]byte, error) {
	return fingerprintVisiting(d, v, map[uintptr]bool{})
}

func fingerprintVisiting(d Digest, v Value, onStack map[uintptr]bool) ([]byte, error) {
	switch v.Kind {
	case KindNil:
		return d.Sum([]byte{tagNil}), nil
	case KindBool:
		b := byte(0)
		if v.Bool {
			b = 1
		}
		return d.Sum([]byte{tagBool, b}), nil
	case KindInt:
		buf := make([]byte, 9)
		buf[0] = tagInt
		binary.LittleEndian.PutUint64(buf[1:], uint64(v.Int))
		return d.Sum(buf), nil
	case KindString:
		return d.Sum(lengthPrefixed(tagString, []byte(v.Str))), nil
	case KindBytes:
		return d.Sum(lengthPrefixed(tagBytes, v.Bytes)), nil
	case KindModule:
		content, err := readModuleSource(v.Module)
		if err != nil {
			return nil, err
		}
		return d.Sum(content), nil
	case KindNode:
		if v.Node == nil {
			return nil, fmt.Errorf("memo: nil Node in value tree")
		}
		fp, err := v.Node.Fingerprint(context.Background())
		if err != nil {
			return nil, err
		}
		return fp, nil
	case KindSeq:
		if ptr, ok := sliceIdentity(v.Seq); ok {
			if onStack[ptr] {
				return nil, ErrCyclicValue
			}
			onStack[ptr] = true
			defer delete(onStack, ptr)
		}
		buf := []byte{seqSentinel}
		for i, e := range v.Seq {
			if i > 0 {
				buf = append(buf, joinSep)
			}
			fp, err := fingerprintVisiting(d, e, onStack)
			if err != nil {
				return nil, err
			}
			buf = append(buf, fp...)
		}
		buf = append(buf, seqSentinel)
		return d.Sum(buf), nil
	case KindMap:
		if ptr, ok := mapIdentity(v.Map); ok {
			if onStack[ptr] {
				return nil, ErrCyclicValue
			}
			onStack[ptr] = true
			defer delete(onStack, ptr)
		}
		sorted, err := sortMapEntriesByKeyFingerprint(d, v.Map)
		if err != nil {
			return nil, err
		}
		buf := []byte{mapSentinel}
		for i, e := range sorted {
			if i > 0 {
				buf = append(buf, joinSep)
			}
			kfp, err := fingerprintVisiting(d, e.Key, onStack)
			if err != nil {
				return nil, err
			}
			vfp, err := fingerprintVisiting(d, e.Value, onStack)
			if err != nil {
				return nil, err
			}
			buf = append(buf, kfp...)
			buf = append(buf, mapKeyValueSep)
			buf = append(buf, vfp...)
		}
		return d.Sum(buf), nil
	default:
		return nil, fmt.Errorf("memo: unknown Kind %v", v.Kind)
	}
}

func lengthPrefixed(tag byte, data []byte) []byte {
	buf := make([]byte, 1+8+len(data))
	buf[0] = tag
	binary.LittleEndian.PutUint64(buf[1:9], uint64(len(data)))
	copy(buf[9:], data)
	return buf
}

// sliceIdentity and mapIdentity recover the backing-array pointer of a slice
// so the cycle guard above can detect a value tree that shares storage with
// itself (SPEC_FULL.md §9 "cyclic references" design note — the serializer
// SHOULD detect and reject cycles rather than loop). Ordinary Value trees
// built via the Seq/Map constructors never alias this way; the guard exists
// for callers who hand-construct a Value sharing slice storage.
func sliceIdentity(s []Value) (uintptr, bool) {
	if len(s) == 0 {
		return 0, false
	}
	return reflect.ValueOf(s).Pointer(), true
}

func mapIdentity(m []MapEntry) (uintptr, bool) {
	if len(m) == 0 {
		return 0, false
	}
	return reflect.ValueOf(m).Pointer(), true
}
