package snapshot

import (
	"bytes"
	"fmt"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// NormalizerJSONCanonical rewrites both sides to RFC 8785 canonical JSON before
// comparing. Key order and insignificant whitespace stop mattering.
const NormalizerJSONCanonical = "json-canonical"

type normalizer func([]byte) ([]byte, error)

var normalizers = map[string]normalizer{
	NormalizerJSONCanonical: func(b []byte) ([]byte, error) {
		return jsoncanonicalizer.Transform(bytes.TrimSpace(b))
	},
}

// KnownNormalizer reports whether name can be used in a case declaration
func KnownNormalizer(name string) bool {
	_, ok := normalizers[name]
	return ok
}

// ValidateNormalizers returns an error naming the first unknown normalizer
func ValidateNormalizers(names []string) error {
	for _, name := range names {
		if !KnownNormalizer(name) {
			return fmt.Errorf("unknown normalizer %q", name)
		}
	}
	return nil
}

// normalizeLineEndings is the only normalization applied to every comparison
func normalizeLineEndings(b []byte) []byte {
	return bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
}

func normalize(b []byte, names []string) ([]byte, error) {
	out := normalizeLineEndings(b)
	for _, name := range names {
		fn, ok := normalizers[name]
		if !ok {
			return nil, fmt.Errorf("unknown normalizer %q", name)
		}
		var err error
		if out, err = fn(out); err != nil {
			return nil, fmt.Errorf("normalizer %s: %w", name, err)
		}
	}
	return out, nil
}
