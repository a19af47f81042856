// Package multivu implements the length-prefixed JSON protocol used to drive
// a remote MultiVu instrument session over one persistent TCP connection.
//
// A frame on the wire is a 2-byte big-endian header length, a JSON header
// describing the payload, and the payload itself:
//
//	[uint16 BE header_length][header JSON][content bytes]
//
// The Server answers one request at a time from one client at a time; the
// Client issues at most one request at a time and blocks until the matching
// response arrives.
package multivu

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"unicode/utf8"
)

// Reserved actions interpreted by the server before generic dispatch.
const (
	ActionStart = "START"
	ActionClose = "CLOSE"
	ActionExit  = "EXIT"
)

const (
	protoHeaderLength = 2
	maxHeaderLength   = math.MaxUint16
)

// Header is the JSON header that follows the protoheader.
type Header struct {
	ByteOrder       string `json:"byteorder"`
	ContentType     string `json:"content-type"`
	ContentEncoding string `json:"content-encoding"`
	ContentLength   uint32 `json:"content-length"`
}

var requiredHeaderFields = []string{"byteorder", "content-type", "content-encoding", "content-length"}

// Content is the envelope exchanged by both roles.
type Content struct {
	Action string `json:"action" msgpack:"action"`
	Query  string `json:"query" msgpack:"query"`
	Result string `json:"result" msgpack:"result"`
}

var nativeByteOrder = func() string {
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], 1)
	if b[0] == 1 {
		return "little"
	}
	return "big"
}()

// EncodeFrame serializes content and returns the complete frame bytes.
func EncodeFrame(content Content, contentType, contentEncoding string) ([]byte, error) {
	codec, err := lookupCodec(contentType)
	if err != nil {
		return nil, err
	}

	payload, err := codec.Marshal(content)
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorContent, Msg: "failed to encode content", Err: err}
	}
	if codec.Textual() {
		if payload, err = encodeText(payload, contentEncoding); err != nil {
			return nil, err
		}
	}

	header, err := encodeHeader(Header{
		ByteOrder:       nativeByteOrder,
		ContentType:     contentType,
		ContentEncoding: contentEncoding,
		ContentLength:   uint32(len(payload)),
	})
	if err != nil {
		return nil, err
	}

	frame := make([]byte, protoHeaderLength+len(header)+len(payload))
	binary.BigEndian.PutUint16(frame, uint16(len(header)))
	copy(frame[protoHeaderLength:], header)
	copy(frame[protoHeaderLength+len(header):], payload)
	return frame, nil
}

func encodeHeader(h Header) ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorHeader, Msg: "failed to encode header", Err: err}
	}
	if len(data) > maxHeaderLength {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("header length %d exceeds maximum %d", len(data), maxHeaderLength),
			Err:  ErrHeaderTooLarge,
		}
	}
	return data, nil
}

// DecodeHeaderLength reads the protoheader. It reports false until buf holds
// at least two bytes.
func DecodeHeaderLength(buf []byte) (uint16, bool) {
	if len(buf) < protoHeaderLength {
		return 0, false
	}
	return binary.BigEndian.Uint16(buf), true
}

// DecodeHeader decodes the first n bytes of buf as the JSON header. It
// reports false until buf holds n bytes. buf is not consumed.
func DecodeHeader(buf []byte, n uint16) (*Header, bool, error) {
	if len(buf) < int(n) {
		return nil, false, nil
	}
	raw := buf[:n]
	if !utf8.Valid(raw) {
		return nil, false, &FrameError{Kind: FrameErrorHeader, Msg: "header is not UTF-8", Err: ErrMalformedHeader}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, false, &FrameError{Kind: FrameErrorHeader, Msg: "header is not a JSON object: " + err.Error(), Err: ErrMalformedHeader}
	}
	for _, name := range requiredHeaderFields {
		if _, ok := fields[name]; !ok {
			return nil, false, &FrameError{Kind: FrameErrorHeader, Msg: "missing required header field " + name, Err: ErrMalformedHeader}
		}
	}

	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, false, &FrameError{Kind: FrameErrorHeader, Msg: "invalid header field: " + err.Error(), Err: ErrMalformedHeader}
	}
	return &h, true, nil
}

// DecodeContent decodes the first length bytes of buf as a Content of the
// given type and encoding. It reports false until buf holds length bytes.
// buf is not consumed.
func DecodeContent(buf []byte, length uint32, contentType, contentEncoding string) (*Content, bool, error) {
	if uint64(len(buf)) < uint64(length) {
		return nil, false, nil
	}

	codec, err := lookupCodec(contentType)
	if err != nil {
		return nil, false, err
	}

	data := buf[:length]
	if codec.Textual() {
		if data, err = decodeText(data, contentEncoding); err != nil {
			return nil, false, err
		}
	}

	var c Content
	if err := codec.Unmarshal(data, &c); err != nil {
		return nil, false, &FrameError{Kind: FrameErrorContent, Msg: "failed to decode content", Err: err}
	}
	return &c, true, nil
}
