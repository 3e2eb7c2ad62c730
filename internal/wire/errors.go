package wire

import "errors"

var (
	// ErrFrameTooShort is returned when a frame is shorter than the
	// fixed protocol header.
	ErrFrameTooShort = errors.New("frame shorter than protocol header")

	// ErrBadMagic is returned when a frame does not begin with the
	// protocol magic bytes.
	ErrBadMagic = errors.New("frame missing protocol magic")

	// ErrUnknownSubtype is returned for a subtype byte outside
	// START/DATA/END.
	ErrUnknownSubtype = errors.New("unknown frame subtype")

	// ErrTruncatedPayload is returned when a subtype-specific payload
	// is shorter than its fixed fields.
	ErrTruncatedPayload = errors.New("truncated frame payload")

	// ErrBadControlMessage is returned when a non-protocol frame cannot
	// be parsed as a structured control message.
	ErrBadControlMessage = errors.New("unparseable control message")

	// ErrBadRasterHeader is returned when a compressed spectrogram
	// buffer does not begin with the raster header.
	ErrBadRasterHeader = errors.New("invalid compressed raster header")
)
