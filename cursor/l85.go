package cursor

import "fmt"

// l85Alphabet is a lexicographically-sortable base85 alphabet, the
// same encoding the teacher uses for its content-addressed keys
// (datalog/codec.L85Alphabet) — adapted here for arbitrary-length
// cursor payloads rather than fixed 20/32-byte digests.
const l85Alphabet = "!$%&()+,-./" +
	"0123456789:;<=>@" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ[]_`" +
	"abcdefghijklmnopqrstuvwxyz{}"

var l85Decode [256]byte

func init() {
	for i, c := range l85Alphabet {
		l85Decode[byte(c)] = byte(i + 1)
	}
}

func encodeL85(src []byte) string {
	if len(src) == 0 {
		return ""
	}
	out := make([]byte, 0, len(src)*5/4+5)

	for i := 0; i+4 <= len(src); i += 4 {
		v := uint32(src[i])<<24 | uint32(src[i+1])<<16 | uint32(src[i+2])<<8 | uint32(src[i+3])
		chars := encode5(v)
		out = append(out, chars[:]...)
	}

	if rem := len(src) % 4; rem > 0 {
		var padded [4]byte
		copy(padded[:], src[len(src)-rem:])
		v := uint32(padded[0])<<24 | uint32(padded[1])<<16 | uint32(padded[2])<<8 | uint32(padded[3])
		chars := encode5(v)
		out = append(out, chars[:rem+1]...)
	}
	return string(out)
}

func encode5(v uint32) [5]byte {
	var chars [5]byte
	for j := 4; j >= 0; j-- {
		chars[j] = l85Alphabet[v%85]
		v /= 85
	}
	return chars
}

func decodeL85(src string) ([]byte, error) {
	if len(src) == 0 {
		return []byte{}, nil
	}
	for i, c := range src {
		if c >= 256 || l85Decode[byte(c)] == 0 {
			return nil, fmt.Errorf("cursor: invalid character at position %d: %c", i, c)
		}
	}

	out := make([]byte, 0, len(src)*4/5+4)
	for i := 0; i+5 <= len(src); i += 5 {
		v := decode5(src[i : i+5])
		out = append(out, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}

	if rem := len(src) % 5; rem > 0 {
		numBytes := rem - 1
		if numBytes <= 0 {
			return nil, fmt.Errorf("cursor: incomplete trailing group")
		}
		padded := src[len(src)-rem:]
		// encodeL85 dropped the group's low digits, so pad with the
		// highest digit to land back inside the original bytes' range.
		for len(padded) < 5 {
			padded += string(l85Alphabet[len(l85Alphabet)-1])
		}
		v := decode5(padded)
		bytes4 := [4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
		// Several trailing groups decode to the same bytes; accept only
		// the one encodeL85 produces, so altered text is not accepted.
		var back [4]byte
		copy(back[:], bytes4[:numBytes])
		if chars := encode5(uint32(back[0])<<24 | uint32(back[1])<<16 | uint32(back[2])<<8 | uint32(back[3])); string(chars[:rem]) != src[len(src)-rem:] {
			return nil, fmt.Errorf("cursor: non-canonical trailing group")
		}
		out = append(out, bytes4[:numBytes]...)
	}
	return out, nil
}

func decode5(s string) uint32 {
	v := uint32(0)
	for j := 0; j < 5; j++ {
		v = v*85 + uint32(l85Decode[s[j]]-1)
	}
	return v
}
