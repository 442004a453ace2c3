package stream

import "bytes"

var (
	frameDelimiter = []byte("\n\n")
	dataPrefix     = []byte("data:")
)

// Decoder turns an event-stream body into frames. Bytes are buffered until a
// blank line completes a frame, so frames may span any number of reads and a
// read may carry any number of frames.
type Decoder struct {
	buf     []byte
	seen    int
	skipped int
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends a chunk and returns the frames it completed, in order.
func (d *Decoder) Feed(chunk []byte) []Frame {
	for _, b := range chunk {
		if b != '\r' {
			d.buf = append(d.buf, b)
		}
	}

	var frames []Frame
	consumed := 0
	for {
		i := bytes.Index(d.buf[consumed:], frameDelimiter)
		if i < 0 {
			break
		}
		if f, ok := d.decode(d.buf[consumed : consumed+i]); ok {
			frames = append(frames, f)
		}
		consumed += i + len(frameDelimiter)
	}
	if consumed > 0 {
		d.buf = append([]byte(nil), d.buf[consumed:]...)
	}
	return frames
}

// Flush decodes whatever remains once the body has ended.
func (d *Decoder) Flush() []Frame {
	rest := d.buf
	d.buf = nil
	if len(bytes.TrimSpace(rest)) == 0 {
		return nil
	}
	if f, ok := d.decode(rest); ok {
		return []Frame{f}
	}
	return nil
}

// Seen counts complete frames, including keep-alives and skipped ones.
func (d *Decoder) Seen() int {
	return d.seen
}

// Skipped counts frames dropped because their payload did not decode.
func (d *Decoder) Skipped() int {
	return d.skipped
}

func (d *Decoder) decode(raw []byte) (Frame, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Frame{}, false
	}
	d.seen++

	var payload [][]byte
	for _, line := range bytes.Split(raw, []byte("\n")) {
		if !bytes.HasPrefix(line, dataPrefix) {
			continue // event:, id:, retry: and ":" comments
		}
		value := bytes.TrimPrefix(line[len(dataPrefix):], []byte(" "))
		payload = append(payload, value)
	}
	if len(payload) == 0 {
		return Frame{}, false
	}

	f, ok := parseFrame(bytes.Join(payload, []byte("\n")))
	if !ok {
		d.skipped++
		return Frame{}, false
	}
	return f, true
}
