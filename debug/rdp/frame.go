package rdp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidLength is returned when a frame's length prefix is not a
// decimal integer. The stream cannot be resynchronized after it.
var ErrInvalidLength = errors.New("invalid message size")

// maxPrefixDigits bounds the length prefix so a peer cannot make the decoder
// buffer an endless prefix.
const maxPrefixDigits = 10

// Message is one decoded protocol packet. Packets are always JSON objects.
type Message map[string]interface{}

// Request is an outbound packet addressed to an actor.
type Request struct {
	To        string `json:"to"`
	Type      string `json:"type"`
	AddonPath string `json:"addonPath,omitempty"`
}

// Encode serializes msg as `<byte length>:<json>`.
func Encode(msg interface{}) ([]byte, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal packet: %w", err)
	}
	out := make([]byte, 0, len(raw)+maxPrefixDigits+1)
	out = strconv.AppendInt(out, int64(len(raw)), 10)
	out = append(out, ':')
	out = append(out, raw...)
	return out, nil
}

type decoderState int

const (
	awaitingDelimiter decoderState = iota
	awaitingBody
)

// Decoder reassembles packets from arbitrarily chunked input.
//
// buf[off:] holds the bytes of the frame being decoded plus anything received
// after it. In awaitingDelimiter, buf[off:scan] is a validated run of digits.
// In awaitingBody, the body starts at bodyStart and is length bytes long.
// Every byte is inspected once, and consumed frames are compacted away once
// per Feed.
type Decoder struct {
	// OnMalformed, when set, is told about bodies that are not JSON objects.
	// Such packets are dropped and decoding continues.
	OnMalformed func(body []byte, err error)

	buf       []byte
	off       int
	state     decoderState
	scan      int
	bodyStart int
	length    int
	err       error
}

// Feed appends chunk and returns every packet completed by it.
// Once a length prefix is rejected, Feed keeps returning ErrInvalidLength.
func (d *Decoder) Feed(chunk []byte) ([]Message, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.buf = append(d.buf, chunk...)

	var out []Message
	defer d.compact()
	for {
		switch d.state {
		case awaitingDelimiter:
			found, err := d.scanPrefix()
			if err != nil {
				d.err = err
				return out, err
			}
			if !found {
				return out, nil
			}
		case awaitingBody:
			end := d.bodyStart + d.length
			if len(d.buf) < end {
				return out, nil
			}
			if msg, ok := d.decodeBody(d.buf[d.bodyStart:end]); ok {
				out = append(out, msg)
			}
			// whatever followed the frame belongs to the next one
			d.off = end
			d.scan = end
			d.state = awaitingDelimiter
		}
	}
}

// compact drops the frames consumed by the last Feed.
func (d *Decoder) compact() {
	if d.off == 0 {
		return
	}
	n := copy(d.buf, d.buf[d.off:])
	d.buf = d.buf[:n]
	d.scan -= d.off
	if d.state == awaitingBody {
		d.bodyStart -= d.off
	}
	d.off = 0
}

// Buffered returns the number of bytes held for incomplete frames.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func (d *Decoder) scanPrefix() (bool, error) {
	for ; d.scan < len(d.buf); d.scan++ {
		c := d.buf[d.scan]
		if c == ':' {
			if d.scan == d.off {
				return false, fmt.Errorf("%w: empty length prefix", ErrInvalidLength)
			}
			n, err := strconv.Atoi(string(d.buf[d.off:d.scan]))
			if err != nil {
				return false, fmt.Errorf("%w: %q", ErrInvalidLength, d.buf[d.off:d.scan])
			}
			d.length = n
			d.bodyStart = d.scan + 1
			d.state = awaitingBody
			return true, nil
		}
		if c < '0' || c > '9' {
			return false, fmt.Errorf("%w: unexpected byte %q in length prefix", ErrInvalidLength, c)
		}
		if d.scan-d.off >= maxPrefixDigits {
			return false, fmt.Errorf("%w: length prefix longer than %d digits", ErrInvalidLength, maxPrefixDigits)
		}
	}
	return false, nil
}

func (d *Decoder) decodeBody(body []byte) (Message, bool) {
	var msg Message
	err := json.Unmarshal(body, &msg)
	if err == nil && msg == nil {
		err = errors.New("packet is not a JSON object")
	}
	if err != nil {
		if d.OnMalformed != nil {
			d.OnMalformed(append([]byte(nil), body...), err)
		}
		return nil, false
	}
	return msg, true
}
