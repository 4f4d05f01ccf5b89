package memo

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Kind discriminates the closed sum type that every fingerprintable value
// belongs to (SPEC_FULL.md §3, §9 "tagged union" design note). Value is used
// both as the in-memory fingerprint-encoding intermediate representation and
// as the literal on-disk JSON serialization of deps sets and results.
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindString
	KindBytes
	KindSeq
	KindMap
	KindNode
	KindModule
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindSeq:
		return "seq"
	case KindMap:
		return "map"
	case KindNode:
		return "node"
	case KindModule:
		return "module"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MapEntry is a single key/value pair of a KindMap Value. Key order as stored
// here is insertion order; canonical (sorted-by-key-fingerprint) order is
// computed only at fingerprint time, never baked into the on-disk encoding,
// so a map round-trips exactly as authored.
type MapEntry struct {
	Key   Value
	Value Value
}

// Value is the tagged union over every type that may appear as a task
// argument, return value, or recorded dependency (SPEC_FULL.md §3).
//
// Exactly one of the typed fields is meaningful, selected by Kind. A Value is
// usually constructed via the package-level constructors (Str, Int, ...)
// rather than by setting fields directly.
type Value struct {
	Kind Kind

	Bool   bool
	Int    int64
	Str    string
	Bytes  []byte
	Seq    []Value
	Map    []MapEntry
	Node   Node
	Module string // absolute path to a source file, for KindModule
}

func Nil() Value                { return Value{Kind: KindNil} }
func Bool(b bool) Value         { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value         { return Value{Kind: KindInt, Int: i} }
func Str(s string) Value        { return Value{Kind: KindString, Str: s} }
func Bytes(b []byte) Value      { return Value{Kind: KindBytes, Bytes: b} }
func Seq(vs ...Value) Value     { return Value{Kind: KindSeq, Seq: vs} }
func Map(entries ...MapEntry) Value {
	return Value{Kind: KindMap, Map: entries}
}
func NodeValue(n Node) Value { return Value{Kind: KindNode, Node: n} }
func Module(sourcePath string) Value {
	return Value{Kind: KindModule, Module: sourcePath}
}

// Entry builds a MapEntry, the usual way map values are constructed.
func Entry(key, value Value) MapEntry {
	return MapEntry{Key: key, Value: value}
}

// walkNodes invokes fn on every Node reachable from v, recursing through Seq
// elements and both the key and value positions of Map entries (SPEC_FULL.md
// §9, third resolved open question: restore/store recursion crosses mapping
// values, and symmetrically their keys, since keys may themselves be nodes).
func walkNodes(v Value, fn func(Node) error) error {
	return walkNodesVisited(v, fn, map[*Value]bool{})
}

func walkNodesVisited(v Value, fn func(Node) error, seen map[*Value]bool) error {
	switch v.Kind {
	case KindNode:
		if v.Node == nil {
			return nil
		}
		return fn(v.Node)
	case KindSeq:
		if len(v.Seq) > 0 {
			id := &v.Seq[0]
			if seen[id] {
				return ErrCyclicValue
			}
			seen[id] = true
			defer delete(seen, id)
		}
		for i := range v.Seq {
			if err := walkNodesVisited(v.Seq[i], fn, seen); err != nil {
				return err
			}
		}
		return nil
	case KindMap:
		if len(v.Map) > 0 {
			id := &v.Map[0].Key
			if seen[id] {
				return ErrCyclicValue
			}
			seen[id] = true
			defer delete(seen, id)
		}
		for i := range v.Map {
			if err := walkNodesVisited(v.Map[i].Key, fn, seen); err != nil {
				return err
			}
			if err := walkNodesVisited(v.Map[i].Value, fn, seen); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}

// jsonValue is the wire shape used to (de)serialize a Value. Node values are
// encoded via their path plus a type tag; fromJSONValue reconstructs them as
// *FileNode on decode.
type jsonValue struct {
	Kind   string      `json:"kind"`
	Bool   bool        `json:"bool,omitempty"`
	Int    int64       `json:"int,omitempty"`
	Str    string      `json:"str,omitempty"`
	Bytes  string      `json:"bytes,omitempty"` // base64
	Seq    []jsonValue `json:"seq,omitempty"`
	Map    []jsonEntry `json:"map,omitempty"`
	Node   *jsonNode   `json:"node,omitempty"`
	Module string      `json:"module,omitempty"`
}

// jsonNode is the wire shape of a FileNode: its path plus the content hash
// recorded the last time Store ran, so Restore can locate the blob without
// re-deriving it from current (possibly stale or absent) file content.
type jsonNode struct {
	Path        string `json:"path"`
	ContentHash string `json:"content_hash,omitempty"`
}

type jsonEntry struct {
	Key   jsonValue `json:"key"`
	Value jsonValue `json:"value"`
}

// MarshalJSON renders a Value to its canonical wire form.
func (v Value) MarshalJSON() ([]byte, error) {
	jv, err := toJSONValue(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jv)
}

func toJSONValue(v Value) (jsonValue, error) {
	jv := jsonValue{Kind: v.Kind.String()}
	switch v.Kind {
	case KindNil:
	case KindBool:
		jv.Bool = v.Bool
	case KindInt:
		jv.Int = v.Int
	case KindString:
		jv.Str = v.Str
	case KindBytes:
		jv.Bytes = base64.StdEncoding.EncodeToString(v.Bytes)
	case KindSeq:
		jv.Seq = make([]jsonValue, len(v.Seq))
		for i, e := range v.Seq {
			ev, err := toJSONValue(e)
			if err != nil {
				return jsonValue{}, err
			}
			jv.Seq[i] = ev
		}
	case KindMap:
		jv.Map = make([]jsonEntry, len(v.Map))
		for i, e := range v.Map {
			kv, err := toJSONValue(e.Key)
			if err != nil {
				return jsonValue{}, err
			}
			vv, err := toJSONValue(e.Value)
			if err != nil {
				return jsonValue{}, err
			}
			jv.Map[i] = jsonEntry{Key: kv, Value: vv}
		}
	case KindNode:
		fn, ok := v.Node.(*FileNode)
		if !ok {
			return jsonValue{}, fmt.Errorf("memo: cannot serialize Node of type %T", v.Node)
		}
		jv.Node = &jsonNode{Path: fn.Path, ContentHash: fn.ContentHash}
	case KindModule:
		jv.Module = v.Module
	default:
		return jsonValue{}, fmt.Errorf("memo: unknown Kind %v", v.Kind)
	}
	return jv, nil
}

// UnmarshalJSON parses a Value from its canonical wire form. Node fields are
// reconstructed as *FileNode; callers needing a different Node implementation
// should not round-trip through JSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return err
	}
	val, err := fromJSONValue(jv)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

func fromJSONValue(jv jsonValue) (Value, error) {
	switch jv.Kind {
	case "nil":
		return Nil(), nil
	case "bool":
		return Bool(jv.Bool), nil
	case "int":
		return Int(jv.Int), nil
	case "string":
		return Str(jv.Str), nil
	case "bytes":
		b, err := base64.StdEncoding.DecodeString(jv.Bytes)
		if err != nil {
			return Value{}, fmt.Errorf("memo: decoding bytes value: %w", err)
		}
		return Bytes(b), nil
	case "seq":
		vs := make([]Value, len(jv.Seq))
		for i, e := range jv.Seq {
			ev, err := fromJSONValue(e)
			if err != nil {
				return Value{}, err
			}
			vs[i] = ev
		}
		return Seq(vs...), nil
	case "map":
		entries := make([]MapEntry, len(jv.Map))
		for i, e := range jv.Map {
			kv, err := fromJSONValue(e.Key)
			if err != nil {
				return Value{}, err
			}
			vv, err := fromJSONValue(e.Value)
			if err != nil {
				return Value{}, err
			}
			entries[i] = MapEntry{Key: kv, Value: vv}
		}
		return Map(entries...), nil
	case "node":
		if jv.Node == nil {
			return Value{}, fmt.Errorf("memo: node value missing node payload")
		}
		fn := NodeFromPath(jv.Node.Path)
		fn.ContentHash = jv.Node.ContentHash
		return NodeValue(fn), nil
	case "module":
		return Module(jv.Module), nil
	default:
		return Value{}, fmt.Errorf("memo: unknown Kind %q", jv.Kind)
	}
}

// sortMapEntriesByKeyFingerprint returns a copy of entries sorted by the
// fingerprint of each entry's key, per SPEC_FULL.md §4.2/§9: keyed-mapping
// encoding MUST NOT depend on iteration order of the implementation's map
// type (Go's own map iteration order is randomized per-process, making this
// doubly necessary here, not just a portability nicety).
func sortMapEntriesByKeyFingerprint(d Digest, entries []MapEntry) ([]MapEntry, error) {
	type keyed struct {
		fp    []byte
		entry MapEntry
	}
	ks := make([]keyed, len(entries))
	for i, e := range entries {
		fp, err := fingerprintValue(d, e.Key)
		if err != nil {
			return nil, fmt.Errorf("memo: fingerprinting map key %d: %w", i, err)
		}
		ks[i] = keyed{fp: fp, entry: e}
	}
	sort.Slice(ks, func(i, j int) bool {
		return compareBytes(ks[i].fp, ks[j].fp) < 0
	})
	out := make([]MapEntry, len(ks))
	for i, k := range ks {
		out[i] = k.entry
	}
	return out, nil
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// readModuleSource reads the content a KindModule Value fingerprints against.
func readModuleSource(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading module source %q: %v", ErrMissingInput, path, err)
	}
	return b, nil
}
