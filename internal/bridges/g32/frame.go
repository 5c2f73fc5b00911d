package g32

import "bytes"

// Framer splits the relay byte stream into PacketSize records.
//
// The relay stream has no length prefix: a record starts at the two-byte
// header and runs for PacketSize bytes. Bytes before a header are
// discarded. A frame that later fails to decode does not reset the
// buffer; scanning simply continues after it.
//
// Thread Safety: Not safe for concurrent use. Each session owns one.
type Framer struct {
	buf []byte
}

// Write appends stream bytes to the buffer. Call Next until it reports
// false after every Write so the buffer stays bounded.
func (f *Framer) Write(p []byte) {
	f.buf = append(f.buf, p...)
}

// Next returns the next complete record, or false when more bytes are
// needed. The returned slice is a copy and stays valid after further
// writes.
func (f *Framer) Next() ([]byte, bool) {
	f.discardUntilHeader()
	if len(f.buf) < PacketSize {
		return nil, false
	}

	frame := make([]byte, PacketSize)
	copy(frame, f.buf[:PacketSize])
	f.buf = f.buf[PacketSize:]
	return frame, true
}

// Buffered returns the number of bytes waiting for a complete record.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Reset drops all buffered bytes.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}

// discardUntilHeader drops bytes before the first header. Without a
// header only a trailing first header byte is kept, since the second
// byte may still be in flight.
func (f *Framer) discardUntilHeader() {
	idx := bytes.Index(f.buf, packetHeader)
	switch {
	case idx == 0:
		return
	case idx > 0:
		f.buf = append(f.buf[:0], f.buf[idx:]...)
	case len(f.buf) > 0 && f.buf[len(f.buf)-1] == packetHeader[0]:
		f.buf = append(f.buf[:0], packetHeader[0])
	default:
		f.buf = f.buf[:0]
	}
}
