// Package capture reads and writes frame capture files. Capture file is
// stream of CBOR encoded records, one per frame, so captures can be appended
// to and replayed through the client as any other transport.
package capture

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	j1939 "github.com/mkalda/go-j1939-client"
)

// record is single captured frame. CAN ID is stored in wire form so captures
// stay valid even when header parsing rules would change.
type record struct {
	TimeUnixMicro int64  `cbor:"1,keyasint"`
	CANID         uint32 `cbor:"2,keyasint"`
	Data          []byte `cbor:"3,keyasint"`
}

// Writer writes frames as capture records. Implements j1939.RawFrameWriter.
type Writer struct {
	destination io.Writer
	encoder     *cbor.Encoder
}

func NewWriter(destination io.Writer) *Writer {
	return &Writer{
		destination: destination,
		encoder:     cbor.NewEncoder(destination),
	}
}

func (w *Writer) WriteRawFrame(frame j1939.RawFrame) error {
	if frame.Length > 8 {
		return fmt.Errorf("%w: frame length can not exceed 8 bytes", j1939.ErrInvalidParameter)
	}
	err := w.encoder.Encode(record{
		TimeUnixMicro: frame.Time.UnixMicro(),
		CANID:         frame.Header.CANID(),
		Data:          append([]byte{}, frame.Data[:frame.Length]...),
	})
	if err != nil {
		return fmt.Errorf("capture record encode failure: %w", err)
	}
	return nil
}

// Close closes destination when it is io.Closer.
func (w *Writer) Close() error {
	if closer, ok := w.destination.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Reader replays frames from capture records. Implements
// j1939.RawFrameReader, reads return io.EOF when capture runs out.
type Reader struct {
	source  io.Reader
	decoder *cbor.Decoder
}

func NewReader(source io.Reader) *Reader {
	return &Reader{
		source:  source,
		decoder: cbor.NewDecoder(source),
	}
}

func (r *Reader) Initialize() error {
	return nil
}

func (r *Reader) ReadRawFrame(ctx context.Context) (j1939.RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return j1939.RawFrame{}, err
	}

	var rec record
	if err := r.decoder.Decode(&rec); err != nil {
		if err == io.EOF {
			return j1939.RawFrame{}, io.EOF
		}
		return j1939.RawFrame{}, fmt.Errorf("capture record decode failure: %w", err)
	}
	if len(rec.Data) > 8 {
		return j1939.RawFrame{}, fmt.Errorf("capture record has invalid data length: %v", len(rec.Data))
	}

	frame := j1939.RawFrame{
		Time:   time.UnixMicro(rec.TimeUnixMicro).In(time.UTC),
		Header: j1939.ParseCANID(rec.CANID),
		Length: uint8(len(rec.Data)),
	}
	copy(frame.Data[:], rec.Data)
	return frame, nil
}

// Close closes source when it is io.Closer.
func (r *Reader) Close() error {
	if closer, ok := r.source.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
