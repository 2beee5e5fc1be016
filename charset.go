package ftp

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

// charsetCodec holds the resolved encoding.Encoding for a non-UTF-8
// control channel (spec section 6's "encoding" configuration key). UTF-8
// and an empty name both mean "no translation" and are represented by a
// nil *charsetCodec on the Client, since golang.org/x/text's UTF-8
// codec would otherwise be a no-op wrapped in extra allocations.
type charsetCodec struct {
	name string
	enc  encoding.Encoding
}

// resolveCharset looks up name in the IANA registry first (covering the
// common aliases like "ISO-8859-1", "Shift_JIS", "Windows-1252"), then
// falls back to the legacy charmap table for names IANA doesn't index.
func resolveCharset(name string) (*charsetCodec, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || strings.EqualFold(trimmed, "UTF-8") || strings.EqualFold(trimmed, "UTF8") {
		return nil, nil
	}

	if enc, err := ianaindex.IANA.Encoding(trimmed); err == nil && enc != nil {
		return &charsetCodec{name: trimmed, enc: enc}, nil
	}

	for _, cm := range charmap.All {
		if named, ok := cm.(fmt.Stringer); ok && strings.EqualFold(named.String(), trimmed) {
			return &charsetCodec{name: trimmed, enc: cm}, nil
		}
	}

	return nil, fmt.Errorf("ftp: unrecognized charset %q", name)
}

// decodeReader wraps r so reads come back as UTF-8, for control channels
// using a legacy charset. Line splitting and the three-digit response
// code happen after this decode, per spec section 9's documented
// assumption that the code prefix itself is always plain ASCII.
func (cc *charsetCodec) decodeReader(r io.Reader) io.Reader {
	if cc == nil {
		return r
	}
	return cc.enc.NewDecoder().Reader(r)
}

// encodeCommand renders cmd (a UTF-8 Go string) into the control
// channel's configured charset.
func (c *Client) encodeCommand(cmd string) (string, error) {
	if c.enc == nil {
		return cmd, nil
	}
	out, err := c.enc.enc.NewEncoder().String(cmd)
	if err != nil {
		return "", err
	}
	return out, nil
}
