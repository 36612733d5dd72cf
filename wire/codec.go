package wire

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/zstd"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Codec turns messages into wire bytes and back. With compression enabled the
// JSON body is wrapped in a zstd frame; Decode sniffs the frame magic so a
// consumer accepts both compressed and plain producers.
type Codec struct {
	compress bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

// zstd frame magic, little-endian 0xFD2FB528.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// NewCodec builds a codec. The zstd encoder/decoder are stateless in EncodeAll
// mode and shared across goroutines safely.
func NewCodec(compress bool) (*Codec, error) {
	c := &Codec{compress: compress}
	var err error
	if c.enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)); err != nil {
		return nil, fmt.Errorf("wire: zstd encoder: %w", err)
	}
	if c.dec, err = zstd.NewReader(nil); err != nil {
		return nil, fmt.Errorf("wire: zstd decoder: %w", err)
	}
	return c, nil
}

// Encode serializes a message, compressing when the codec was built with
// compression on.
func (c *Codec) Encode(m *Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal %s: %w", m.Type, err)
	}
	if !c.compress {
		return body, nil
	}
	return c.enc.EncodeAll(body, make([]byte, 0, len(body)/2)), nil
}

// Decode parses wire bytes into a message and validates the envelope.
func (c *Codec) Decode(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("wire: empty message")
	}
	body := data
	if hasZstdMagic(data) {
		var err error
		body, err = c.dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("wire: decompress: %w", err)
		}
	}
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("wire: unmarshal: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func hasZstdMagic(data []byte) bool {
	if len(data) < len(zstdMagic) {
		return false
	}
	for i, b := range zstdMagic {
		if data[i] != b {
			return false
		}
	}
	return true
}
