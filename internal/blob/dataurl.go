package blob

import (
	"encoding/base64"
	"errors"
	"strings"
)

// ErrBadDataURL indicates a malformed encoded attachment.
var ErrBadDataURL = errors.New("malformed data url")

const base64Marker = ";base64,"

// Attachment is a decoded data-URL payload. Ext is the media subtype,
// e.g. "png" for "image/png".
type Attachment struct {
	Ext  string
	Data []byte
}

// DecodeDataURL parses an encoded attachment of the form
// "data:image/png;base64,<payload>" (the "data:" prefix is optional).
func DecodeDataURL(raw string) (Attachment, error) {
	meta, payload, ok := strings.Cut(raw, base64Marker)
	if !ok {
		return Attachment{}, ErrBadDataURL
	}
	meta = strings.TrimPrefix(meta, "data:")

	_, subtype, ok := strings.Cut(meta, "/")
	if !ok || subtype == "" {
		return Attachment{}, ErrBadDataURL
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Attachment{}, ErrBadDataURL
	}

	return Attachment{Ext: subtype, Data: data}, nil
}
