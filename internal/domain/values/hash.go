package values

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest used to identify template bodies and
// parameter sets.
type Hash [32]byte

// domainKey is a 32-byte key for BLAKE3 keyed hashing. The same bytes
// hash differently in each domain.
type domainKey [32]byte

// Domain keys are the ASCII domain name zero-padded to 32 bytes.
// Changing them invalidates every persisted cache entry.
var (
	contentDomainKey = domainKey{
		'f', 'r', 'a', 'g', 'm', 'e', 'n', 't', '.', 'c', 'o', 'n', 't', 'e', 'n', 't',
		'.', 'v', '1', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	paramsDomainKey = domainKey{
		'f', 'r', 'a', 'g', 'm', 'e', 'n', 't', '.', 'p', 'a', 'r', 'a', 'm', 's', '.',
		'v', '1', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// paramsEncMode produces Core Deterministic CBOR: map keys are sorted, so
// equal parameter sets encode to identical bytes regardless of insertion order.
var paramsEncMode cbor.EncMode

func init() {
	var err error
	paramsEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("values: CBOR encoder initialization failed: " + err.Error())
	}
}

// HashContent computes the content-domain hash of a flattened template body.
func HashContent(body string) Hash {
	return keyedHash(contentDomainKey, []byte(body))
}

// HashParams computes the params-domain hash of a parameter set.
// Values must be CBOR-encodable (strings, slices and string-keyed maps).
func HashParams(params map[string]any) (Hash, error) {
	if params == nil {
		params = map[string]any{}
	}
	encoded, err := paramsEncMode.Marshal(params)
	if err != nil {
		return Hash{}, fmt.Errorf("encoding parameters: %w", err)
	}
	return keyedHash(paramsDomainKey, encoded), nil
}

func keyedHash(key domainKey, data []byte) Hash {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("values: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var result Hash
	copy(result[:], hasher.Sum(nil))
	return result
}

// ParseHash parses a 64-character hex string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	if len(decoded) != len(h) {
		return h, fmt.Errorf("invalid hash %q: expected %d bytes, got %d", s, len(h), len(decoded))
	}
	copy(h[:], decoded)
	return h, nil
}

// String returns the hex encoding
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 12 hex characters, for logs.
func (h Hash) Short() string {
	return h.String()[:12]
}

// IsZero returns true if this is the zero value
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MarshalText implements encoding.TextMarshaler
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
