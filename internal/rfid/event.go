package rfid

import "encoding/binary"

// EventSize is the size of a struct input_event on 64-bit Linux.
const EventSize = 24

const (
	evKey    = 1
	keyPress = 1
	keyEnter = 28
)

// Event is a decoded input_event without its timestamp.
type Event struct {
	Type  uint16
	Code  uint16
	Value int32
}

// DecodeEvent decodes a little-endian input_event. It reports false when b is
// shorter than EventSize.
func DecodeEvent(b []byte) (Event, bool) {
	if len(b) < EventSize {
		return Event{}, false
	}
	return Event{
		Type:  binary.LittleEndian.Uint16(b[16:18]),
		Code:  binary.LittleEndian.Uint16(b[18:20]),
		Value: int32(binary.LittleEndian.Uint32(b[20:24])),
	}, true
}

// EncodeEvent is the inverse of DecodeEvent with a zero timestamp.
func EncodeEvent(ev Event) []byte {
	b := make([]byte, EventSize)
	binary.LittleEndian.PutUint16(b[16:18], ev.Type)
	binary.LittleEndian.PutUint16(b[18:20], ev.Code)
	binary.LittleEndian.PutUint32(b[20:24], uint32(ev.Value))
	return b
}

// digit maps the top-row number key codes KEY_1..KEY_0 to characters.
func digit(code uint16) (byte, bool) {
	switch {
	case code >= 2 && code <= 10:
		return byte('1' + code - 2), true
	case code == 11:
		return '0', true
	}
	return 0, false
}

// Decoder turns key presses from a keyboard-emulating reader into tags.
type Decoder struct {
	buf []byte
}

// Feed consumes one event. On Enter it returns the buffered digits and true,
// unless the buffer is empty. Other keys are ignored.
func (d *Decoder) Feed(ev Event) (string, bool) {
	if ev.Type != evKey || ev.Value != keyPress {
		return "", false
	}
	if ev.Code == keyEnter {
		tag := string(d.buf)
		d.buf = d.buf[:0]
		return tag, tag != ""
	}
	if c, ok := digit(ev.Code); ok {
		d.buf = append(d.buf, c)
	}
	return "", false
}

// Pending returns the digits read since the last Enter.
func (d *Decoder) Pending() string {
	return string(d.buf)
}
