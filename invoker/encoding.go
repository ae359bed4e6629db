package invoker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

const (
	EncodingRaw  = "raw"
	EncodingUTF8 = "utf-8"
)

var errInvalidUTF8 = errors.New("invalid UTF-8 byte sequence")

// decoder converts captured bytes into UTF-8 text
type decoder func([]byte) ([]byte, error)

var encodingAliases = map[string]string{
	"utf8":    EncodingUTF8,
	"latin1":  "iso-8859-1",
	"latin-1": "iso-8859-1",
}

func lookupDecoder(name string) (decoder, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if alias, ok := encodingAliases[name]; ok {
		name = alias
	}

	switch name {
	case "", EncodingRaw:
		return func(b []byte) ([]byte, error) { return b, nil }, nil
	case EncodingUTF8:
		return func(b []byte) ([]byte, error) {
			if !utf8.Valid(b) {
				return nil, errInvalidUTF8
			}
			return b, nil
		}, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
	return transcoder(enc), nil
}

func transcoder(enc encoding.Encoding) decoder {
	return func(b []byte) ([]byte, error) {
		return enc.NewDecoder().Bytes(b)
	}
}
