package multivu

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// Content types understood by the codec.
const (
	// ContentTypeJSON is the content type every peer speaks.
	ContentTypeJSON = "text/json"
	// ContentTypeMsgpack carries the same envelope as a msgpack map.
	ContentTypeMsgpack = "binary/msgpack"
)

// EncodingUTF8 is the default content encoding.
const EncodingUTF8 = "utf-8"

// contentCodec serializes the Content envelope for one content type.
// Text codecs produce UTF-8 which the frame layer transcodes to the
// requested content-encoding; binary codecs ignore the encoding.
type contentCodec interface {
	Marshal(c Content) ([]byte, error)
	Unmarshal(data []byte, c *Content) error
	Textual() bool
}

type jsonCodec struct{}

func (jsonCodec) Marshal(c Content) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (jsonCodec) Unmarshal(data []byte, c *Content) error {
	return json.Unmarshal(data, c)
}

func (jsonCodec) Textual() bool { return true }

type msgpackCodec struct{}

func (msgpackCodec) Marshal(c Content) ([]byte, error) {
	return msgpack.Marshal(c)
}

func (msgpackCodec) Unmarshal(data []byte, c *Content) error {
	return msgpack.Unmarshal(data, c)
}

func (msgpackCodec) Textual() bool { return false }

var contentCodecs = map[string]contentCodec{
	ContentTypeJSON:    jsonCodec{},
	ContentTypeMsgpack: msgpackCodec{},
}

func lookupCodec(contentType string) (contentCodec, error) {
	codec, ok := contentCodecs[strings.ToLower(contentType)]
	if !ok {
		return nil, &FrameError{
			Kind: FrameErrorUnsupported,
			Msg:  "content-type " + contentType,
			Err:  ErrUnsupportedContent,
		}
	}
	return codec, nil
}

// lookupEncoding resolves a content-encoding label. A nil Encoding means the
// bytes are already UTF-8.
func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(name) {
	case "utf-8", "utf8":
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, &FrameError{
			Kind: FrameErrorUnsupported,
			Msg:  "content-encoding " + name,
			Err:  ErrUnsupportedContent,
		}
	}
	return enc, nil
}

func encodeText(data []byte, name string) ([]byte, error) {
	enc, err := lookupEncoding(name)
	if err != nil || enc == nil {
		return data, err
	}
	out, err := enc.NewEncoder().Bytes(data)
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorContent, Msg: "content not representable in " + name, Err: err}
	}
	return out, nil
}

func decodeText(data []byte, name string) ([]byte, error) {
	enc, err := lookupEncoding(name)
	if err != nil || enc == nil {
		return data, err
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorContent, Msg: "content is not valid " + name, Err: err}
	}
	return out, nil
}
