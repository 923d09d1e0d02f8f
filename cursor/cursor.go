// Package cursor implements the executor's opaque continuation token
// (spec.md §3 "Cursor", §4.E "pagination and cursor continuation"):
// per-sub-query DynamoDB continuation keys plus a compact
// deduplication record, serialized to an opaque string callers may
// store and re-submit verbatim (spec.md §9 "Cursor opacity").
//
// The encode/decode scheme is adapted from the teacher's L85 codec
// (datalog/codec/l85.go), a lexicographically-sortable base85 variant
// the teacher uses for fixed-width content hashes; here it wraps a
// variable-length gob payload instead of a fixed 20/32-byte digest,
// plus a leading version byte and a checksum so a corrupted or
// foreign-origin cursor fails fast instead of silently mis-paginating.
package cursor

import (
	"bytes"
	"encoding/gob"
	"errors"
	"hash/crc32"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func init() {
	gob.Register(&types.AttributeValueMemberS{})
	gob.Register(&types.AttributeValueMemberN{})
	gob.Register(&types.AttributeValueMemberBOOL{})
	gob.Register(&types.AttributeValueMemberNULL{})
	gob.Register(&types.AttributeValueMemberSS{})
	gob.Register(&types.AttributeValueMemberNS{})
	gob.Register(&types.AttributeValueMemberB{})
	gob.Register(&types.AttributeValueMemberM{})
	gob.Register(&types.AttributeValueMemberL{})
}

// ErrMalformedCursor is returned when a cursor string fails checksum
// or structural validation.
var ErrMalformedCursor = errors.New("cursor: malformed")

const cursorVersion byte = 1

// SubQueryState is one sub-query's continuation position: the store's
// LastEvaluatedKey (nil once the sub-query is exhausted) and whether
// it has been fully drained.
type SubQueryState struct {
	LastKey   map[string]types.AttributeValue
	Exhausted bool
}

// Cursor is the executor's continuation state for one paginated
// traversal of a single Plan.
type Cursor struct {
	SubQueries map[string]SubQueryState
	Dedup      *Dedup
}

// New creates an empty cursor ready to drive a fresh traversal,
// sizing its dedup filter for the given page size.
func New(pageSize int) *Cursor {
	return &Cursor{
		SubQueries: map[string]SubQueryState{},
		Dedup:      NewDedup(pageSize),
	}
}

// wireCursor is the gob-serialized shape; Dedup is flattened to its
// binary form since gob doesn't know how to traverse *bitset.BitSet
// without help, even though Dedup implements BinaryMarshaler.
type wireCursor struct {
	SubQueries map[string]SubQueryState
	DedupBytes []byte
}

// Encode serializes c to an opaque string safe for callers to store
// and re-submit (spec.md §9 "Cursor opacity").
func Encode(c *Cursor) (string, error) {
	w := wireCursor{SubQueries: c.SubQueries}
	if c.Dedup != nil {
		b, err := c.Dedup.MarshalBinary()
		if err != nil {
			return "", err
		}
		w.DedupBytes = b
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(w); err != nil {
		return "", err
	}
	return encodeOpaque(buf.Bytes()), nil
}

// Decode reverses Encode. An empty string decodes to a fresh cursor
// with no continuation state — the "start from the beginning" case.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return New(0), nil
	}
	raw, err := decodeOpaque(s)
	if err != nil {
		return nil, err
	}

	var w wireCursor
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&w); err != nil {
		return nil, ErrMalformedCursor
	}

	c := &Cursor{SubQueries: w.SubQueries}
	if len(w.DedupBytes) > 0 {
		d := &Dedup{}
		if err := d.UnmarshalBinary(w.DedupBytes); err != nil {
			return nil, err
		}
		c.Dedup = d
	} else {
		c.Dedup = NewDedup(1)
	}
	return c, nil
}

// encodeOpaque wraps payload with a version byte and a CRC32
// checksum, then renders it in the teacher's L85 alphabet.
func encodeOpaque(payload []byte) string {
	framed := make([]byte, 1+4+len(payload))
	framed[0] = cursorVersion
	sum := crc32.ChecksumIEEE(payload)
	framed[1] = byte(sum >> 24)
	framed[2] = byte(sum >> 16)
	framed[3] = byte(sum >> 8)
	framed[4] = byte(sum)
	copy(framed[5:], payload)
	return encodeL85(framed)
}

func decodeOpaque(s string) ([]byte, error) {
	framed, err := decodeL85(s)
	if err != nil {
		return nil, ErrMalformedCursor
	}
	if len(framed) < 5 || framed[0] != cursorVersion {
		return nil, ErrMalformedCursor
	}
	payload := framed[5:]
	want := uint32(framed[1])<<24 | uint32(framed[2])<<16 | uint32(framed[3])<<8 | uint32(framed[4])
	if crc32.ChecksumIEEE(payload) != want {
		return nil, ErrMalformedCursor
	}
	return payload, nil
}
