package j1939

import (
	"context"
)

type RawFrameReader interface {
	ReadRawFrame(ctx context.Context) (RawFrame, error)
	Initialize() error
	Close() error
}

type RawFrameWriter interface {
	WriteRawFrame(RawFrame) error
	Close() error
}

type RawFrameReadWriter interface {
	RawFrameReader
	RawFrameWriter
}
