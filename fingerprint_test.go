package memo

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func fingerprintOf(t *testing.T, v Value) []byte {
	t.Helper()
	fp, err := Fingerprint(context.Background(), v)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	return fp
}

// TestFingerprint_MapKeyOrderInsensitive verifies SPEC_FULL.md §8's
// "Mapping-order insensitivity": two maps built from the same entries in a
// different insertion order must fingerprint identically, since
// fingerprintVisiting sorts KindMap entries by key fingerprint before
// hashing.
func TestFingerprint_MapKeyOrderInsensitive(t *testing.T) {
	m1 := Map(
		Entry(Str("a"), Int(1)),
		Entry(Str("b"), Int(2)),
		Entry(Str("c"), Int(3)),
	)
	m2 := Map(
		Entry(Str("c"), Int(3)),
		Entry(Str("a"), Int(1)),
		Entry(Str("b"), Int(2)),
	)

	fp1 := fingerprintOf(t, m1)
	fp2 := fingerprintOf(t, m2)
	if diff := cmp.Diff(fp1, fp2); diff != "" {
		t.Errorf("expected identical fingerprints regardless of map insertion order (-fp1 +fp2):\n%s", diff)
	}
}

// TestFingerprint_MapKeyOrderInsensitive_DifferentValuesDiffer is the
// negative complement: maps that differ in content, not just order, must
// still fingerprint differently.
func TestFingerprint_MapKeyOrderInsensitive_DifferentValuesDiffer(t *testing.T) {
	m1 := Map(Entry(Str("a"), Int(1)), Entry(Str("b"), Int(2)))
	m2 := Map(Entry(Str("a"), Int(1)), Entry(Str("b"), Int(99)))

	fp1 := fingerprintOf(t, m1)
	fp2 := fingerprintOf(t, m2)
	if cmp.Equal(fp1, fp2) {
		t.Error("expected different fingerprints for maps with different values")
	}
}

// TestFingerprint_SeqOrderSensitive verifies SPEC_FULL.md §8's "Sequence-order
// sensitivity": reordering the elements of a Seq must change its
// fingerprint, since fingerprintVisiting hashes Seq elements in position
// order with no sorting step.
func TestFingerprint_SeqOrderSensitive(t *testing.T) {
	s1 := Seq(Int(1), Int(2), Int(3))
	s2 := Seq(Int(3), Int(2), Int(1))

	fp1 := fingerprintOf(t, s1)
	fp2 := fingerprintOf(t, s2)
	if cmp.Equal(fp1, fp2) {
		t.Error("expected reordering a Seq's elements to change its fingerprint")
	}

	// Same order, same elements: must be stable and reproducible.
	s3 := Seq(Int(1), Int(2), Int(3))
	fp3 := fingerprintOf(t, s3)
	if diff := cmp.Diff(fp1, fp3); diff != "" {
		t.Errorf("expected identical Seqs to fingerprint identically (-fp1 +fp3):\n%s", diff)
	}
}

// TestFingerprint_CyclicSeq_ReturnsErrCyclicValue verifies the §9 design
// note's cycle guard: a Seq whose backing array aliases a Value reachable
// from itself is rejected with ErrCyclicValue rather than recursing forever.
func TestFingerprint_CyclicSeq_ReturnsErrCyclicValue(t *testing.T) {
	backing := make([]Value, 1)
	backing[0] = Value{Kind: KindSeq, Seq: backing}

	_, err := Fingerprint(context.Background(), backing[0])
	if !errors.Is(err, ErrCyclicValue) {
		t.Errorf("Fingerprint on a self-referential Seq = %v, want ErrCyclicValue", err)
	}
}

// TestFingerprint_CyclicMap_ReturnsErrCyclicValue mirrors the Seq case for
// KindMap, whose cycle guard keys on the entry slice's backing array.
func TestFingerprint_CyclicMap_ReturnsErrCyclicValue(t *testing.T) {
	backing := make([]MapEntry, 1)
	cyc := Value{Kind: KindMap, Map: backing}
	backing[0] = MapEntry{Key: Str("self"), Value: cyc}

	_, err := Fingerprint(context.Background(), cyc)
	if !errors.Is(err, ErrCyclicValue) {
		t.Errorf("Fingerprint on a self-referential Map = %v, want ErrCyclicValue", err)
	}
}

// TestFingerprint_ScalarsDistinguishKindAndContent guards against scalar
// kinds collapsing into the same encoding (e.g. an empty string and nil).
func TestFingerprint_ScalarsDistinguishKindAndContent(t *testing.T) {
	values := []Value{Nil(), Bool(false), Bool(true), Int(0), Str(""), Bytes(nil)}
	seen := make(map[string]Value)
	for _, v := range values {
		fp := fingerprintOf(t, v)
		key := string(fp)
		if prior, ok := seen[key]; ok {
			t.Errorf("Kind %v and Kind %v fingerprint identically", prior.Kind, v.Kind)
		}
		seen[key] = v
	}
}
