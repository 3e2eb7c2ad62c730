package wire

import "fmt"

// Compressed raster stream constants. The stream begins with a
// two-byte marker and the raster dimensions, followed by run-length
// encoded 4-bit samples.
const (
	rasterMagic0 = 0x53
	rasterMagic1 = 0x50

	// maxRunLength is the longest run a single (length, value) pair can
	// express.
	maxRunLength = 127

	// nibbleScale maps a 4-bit sample back to 8-bit range: 15*17 = 255.
	nibbleScale = 17
)

// Decompress decodes a compressed spectrogram stream into an 8-bit
// grayscale raster of exactly width*height bytes. Short streams are
// zero-padded and overlong streams truncated, so a raster of the
// declared shape always comes back when the header is valid.
func Decompress(stream []byte) (pixels []byte, width, height int, err error) {
	if len(stream) < 4 {
		return nil, 0, 0, fmt.Errorf("%w: %d bytes", ErrBadRasterHeader, len(stream))
	}
	if stream[0] != rasterMagic0 || stream[1] != rasterMagic1 {
		return nil, 0, 0, fmt.Errorf("%w: bad magic 0x%02x 0x%02x", ErrBadRasterHeader, stream[0], stream[1])
	}
	width = int(stream[2])
	height = int(stream[3])
	if width == 0 || height == 0 {
		return nil, 0, 0, fmt.Errorf("%w: zero dimension %dx%d", ErrBadRasterHeader, width, height)
	}

	// Undo the run-length layer. A byte with the high bit set is a
	// literal packed sample; otherwise it is a run length followed by
	// the repeated packed byte.
	var packed []byte
	body := stream[4:]
	for i := 0; i < len(body); {
		b := body[i]
		if b&0x80 != 0 {
			packed = append(packed, b&0x7F)
			i++
			continue
		}
		if i+1 >= len(body) {
			// Trailing run length with no value byte; the tail was lost
			// in transit. Keep what decoded so far.
			break
		}
		run := int(b)
		val := body[i+1]
		for n := 0; n < run; n++ {
			packed = append(packed, val)
		}
		i += 2
	}

	// Undo the 4-bit packing: each byte holds two samples.
	pixels = make([]byte, 0, len(packed)*2)
	for _, b := range packed {
		pixels = append(pixels, (b>>4)*nibbleScale, (b&0x0F)*nibbleScale)
	}

	want := width * height
	if len(pixels) > want {
		pixels = pixels[:want]
	} else if len(pixels) < want {
		pixels = append(pixels, make([]byte, want-len(pixels))...)
	}
	return pixels, width, height, nil
}

// Compress encodes an 8-bit grayscale raster into the compressed
// stream format. It is the inverse of Decompress for quantized input:
// Decompress(Compress(p, w, h)) returns p with every sample rounded to
// the nearest multiple of 17.
func Compress(pixels []byte, width, height int) []byte {
	// Quantize to 4 bits and pack two samples per byte. Odd-length
	// input gets a zero sample appended.
	packed := make([]byte, 0, (len(pixels)+1)/2)
	for i := 0; i < len(pixels); i += 2 {
		hi := pixels[i] / nibbleScale
		var lo byte
		if i+1 < len(pixels) {
			lo = pixels[i+1] / nibbleScale
		}
		packed = append(packed, hi<<4|lo)
	}

	out := []byte{rasterMagic0, rasterMagic1, byte(width), byte(height)}
	for i := 0; i < len(packed); {
		run := 1
		for i+run < len(packed) && packed[i+run] == packed[i] && run < maxRunLength {
			run++
		}
		// Values with the high bit set cannot be literals, and runs of
		// three or more are cheaper as pairs.
		if packed[i]&0x80 != 0 || run >= 3 {
			out = append(out, byte(run), packed[i])
		} else {
			for n := 0; n < run; n++ {
				out = append(out, 0x80|packed[i])
			}
		}
		i += run
	}
	return out
}
