package decoder

import (
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/tideworn/logbook/internal/dive"
	"github.com/tideworn/logbook/internal/transport"
)

// Simulated-device log protocol, little endian throughout.
//
// Request (host -> device):
//
//	'L' 'O' 'G' fpLen fingerprint...   -- send entries newer than fingerprint
//
// Response (device -> host), repeated per dive, newest last:
//
//	'D' 'H' payloadLen(uint16) payload checksum(byte)
//
// where payload is:
//
//	fpLen(byte) fingerprint
//	start(int64, unix seconds)
//	interval(uint16, seconds between samples)
//	maxDepth(uint16, cm) avgDepth(uint16, cm)
//	minTemp(int16, 0.1°C) maxTemp(int16, 0.1°C)
//	flags(byte: bit0 rebreather, bit1 deco required)
//	mixCount(byte) { o2(byte) he(byte) }...
//	sampleCount(uint16) { depth(uint16, cm) temp(int16, 0.1°C) }...
//
// and checksum is the XOR of all payload bytes. The stream ends with
// 'D' 'E'.
const (
	frameDive = 0x48 // 'H'
	frameEnd  = 0x45 // 'E'
)

// ReadTimeout bounds each blocking read while decoding. The device streams
// continuously once asked; a stall this long means the link died.
const ReadTimeout = 5 * time.Second

// FrameDecoder decodes the simulated log protocol from a Stream.
type FrameDecoder struct {
	stream  transport.Stream
	device  dive.DeviceID
	name    string
	timeout time.Duration
}

// Open sends the log request for entries newer than since (nil for the full
// log) and returns a decoder positioned before the first dive.
func Open(stream transport.Stream, device dive.DeviceID, name string, since dive.Fingerprint) (*FrameDecoder, error) {
	req := append([]byte{'L', 'O', 'G', byte(len(since))}, since...)
	if err := stream.Write(req, ReadTimeout); err != nil {
		return nil, err
	}
	return &FrameDecoder{stream: stream, device: device, name: name, timeout: ReadTimeout}, nil
}

// Next implements Decoder.
func (fd *FrameDecoder) Next() (*dive.Dive, error) {
	head := make([]byte, 2)
	if err := fd.readFull(head); err != nil {
		return nil, err
	}
	if head[0] != 'D' {
		return nil, &ProtocolError{Msg: "bad frame magic"}
	}
	switch head[1] {
	case frameEnd:
		return nil, io.EOF
	case frameDive:
	default:
		return nil, &ProtocolError{Msg: "unknown frame type"}
	}

	sizeBuf := make([]byte, 2)
	if err := fd.readFull(sizeBuf); err != nil {
		return nil, err
	}
	payload := make([]byte, binary.LittleEndian.Uint16(sizeBuf))
	if err := fd.readFull(payload); err != nil {
		return nil, err
	}
	check := make([]byte, 1)
	if err := fd.readFull(check); err != nil {
		return nil, err
	}

	if xor(payload) != check[0] {
		// The frame was consumed in full, so the stream is still aligned
		// on a frame boundary; the next dive can be decoded.
		return nil, &ProtocolError{Msg: "checksum mismatch", Recoverable: true}
	}

	d, err := fd.parsePayload(payload)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (fd *FrameDecoder) parsePayload(p []byte) (*dive.Dive, error) {
	r := &payloadReader{buf: p}

	fpLen := r.byte()
	fp := r.bytes(int(fpLen))
	start := r.int64()
	interval := int(r.uint16())
	maxDepth := float64(r.uint16()) / 100
	avgDepth := float64(r.uint16()) / 100
	minTemp := float64(r.int16()) / 10
	maxTemp := float64(r.int16()) / 10
	flags := r.byte()

	d := &dive.Dive{
		Device:       fd.device,
		DeviceName:   fd.name,
		Start:        time.Unix(start, 0).UTC(),
		MaxDepth:     maxDepth,
		AvgDepth:     avgDepth,
		MinTemp:      minTemp,
		MaxTemp:      maxTemp,
		Rebreather:   flags&0x01 != 0,
		DecoRequired: flags&0x02 != 0,
		Fingerprint:  dive.Fingerprint(fp),
	}

	mixCount := int(r.byte())
	for i := 0; i < mixCount; i++ {
		d.AddGasMix(dive.GasMix{O2: int(r.byte()), He: int(r.byte())})
	}

	sampleCount := int(r.uint16())
	for i := 0; i < sampleCount; i++ {
		d.Samples = append(d.Samples, dive.Sample{
			Offset:      i * interval,
			Depth:       float64(r.uint16()) / 100,
			Temperature: float64(r.int16()) / 10,
		})
	}

	if r.failed {
		return nil, &ProtocolError{Msg: "truncated dive payload", Recoverable: true}
	}

	if last, ok := d.LastSample(); ok {
		d.BottomTime = time.Duration(last.Offset) * time.Second
		d.End = d.Start.Add(d.BottomTime)
	} else {
		d.End = d.Start
	}
	return d, nil
}

// readFull fills buf from the stream, tolerating short reads. Each blocking
// wait is bounded by the decoder timeout; transport errors pass through
// unwrapped so the session can map ErrDisconnected/ErrTimeout directly.
func (fd *FrameDecoder) readFull(buf []byte) error {
	off := 0
	for off < len(buf) {
		n, err := fd.stream.Read(buf[off:], fd.timeout)
		if err != nil {
			return err
		}
		off += n
	}
	return nil
}

func xor(p []byte) byte {
	var c byte
	for _, b := range p {
		c ^= b
	}
	return c
}

// payloadReader cursors over a dive payload, latching any overrun instead
// of returning an error per field.
type payloadReader struct {
	buf    []byte
	off    int
	failed bool
}

func (r *payloadReader) take(n int) []byte {
	if r.failed || r.off+n > len(r.buf) {
		r.failed = true
		return make([]byte, n)
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out
}

func (r *payloadReader) byte() byte { return r.take(1)[0] }

func (r *payloadReader) bytes(n int) []byte {
	return append([]byte(nil), r.take(n)...)
}

func (r *payloadReader) uint16() uint16 { return binary.LittleEndian.Uint16(r.take(2)) }

func (r *payloadReader) int16() int16 { return int16(binary.LittleEndian.Uint16(r.take(2))) }

func (r *payloadReader) int64() int64 { return int64(binary.LittleEndian.Uint64(r.take(8))) }

// Encode renders one dive as a protocol frame. The simulated peripheral
// and tests use it to produce device traffic; a real computer obviously
// ships its own firmware.
func Encode(d *dive.Dive, interval int) []byte {
	var p []byte
	p = append(p, byte(len(d.Fingerprint)))
	p = append(p, d.Fingerprint...)
	p = binary.LittleEndian.AppendUint64(p, uint64(d.Start.Unix()))
	p = binary.LittleEndian.AppendUint16(p, uint16(interval))
	p = binary.LittleEndian.AppendUint16(p, uint16(d.MaxDepth*100))
	p = binary.LittleEndian.AppendUint16(p, uint16(d.AvgDepth*100))
	p = binary.LittleEndian.AppendUint16(p, uint16(int16(d.MinTemp*10)))
	p = binary.LittleEndian.AppendUint16(p, uint16(int16(d.MaxTemp*10)))
	var flags byte
	if d.Rebreather {
		flags |= 0x01
	}
	if d.DecoRequired {
		flags |= 0x02
	}
	p = append(p, flags)
	p = append(p, byte(len(d.GasMixes)))
	for _, m := range d.GasMixes {
		p = append(p, byte(m.O2), byte(m.He))
	}
	p = binary.LittleEndian.AppendUint16(p, uint16(len(d.Samples)))
	for _, sm := range d.Samples {
		p = binary.LittleEndian.AppendUint16(p, uint16(sm.Depth*100))
		p = binary.LittleEndian.AppendUint16(p, uint16(int16(sm.Temperature*10)))
	}

	frame := []byte{'D', frameDive}
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(p)))
	frame = append(frame, p...)
	frame = append(frame, xor(p))
	return frame
}

// EncodeEnd renders the end-of-log marker.
func EncodeEnd() []byte {
	return []byte{'D', frameEnd}
}

// IsRecoverable reports whether err is a protocol error the session can
// skip past.
func IsRecoverable(err error) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Recoverable
	}
	return false
}
