// Package pixfmt maps native camera pixel format names to the encoding
// names used on the image output topic, together with the memory layout of
// each native format.
package pixfmt

import (
	"sort"
	"strings"
)

// Output encodings.
const (
	Mono8       = "mono8"
	Mono16      = "mono16"
	RGB8        = "rgb8"
	BGR8        = "bgr8"
	RGBA8       = "rgba8"
	BGRA8       = "bgra8"
	BayerRGGB8  = "bayer_rggb8"
	BayerBGGR8  = "bayer_bggr8"
	BayerGBRG8  = "bayer_gbrg8"
	BayerGRBG8  = "bayer_grbg8"
	BayerRGGB16 = "bayer_rggb16"
	BayerBGGR16 = "bayer_bggr16"
	BayerGBRG16 = "bayer_gbrg16"
	BayerGRBG16 = "bayer_grbg16"
	YUV422      = "yuv422"
)

// Format describes one native pixel format.
type Format struct {
	Name     string // native name, e.g. "BayerRG12"
	Encoding string // output encoding, e.g. "bayer_rggb16"
	// BitsPerPixel of the delivered buffer. Formats narrower than 16 bit
	// that map to a 16 bit encoding are delivered widened.
	BitsPerPixel int
}

var table = []Format{
	{"Mono8", Mono8, 8},
	{"Mono10", Mono16, 16},
	{"Mono12", Mono16, 16},
	{"Mono14", Mono16, 16},
	{"Mono16", Mono16, 16},
	{"RGB8", RGB8, 24},
	{"BGR8", BGR8, 24},
	{"RGBa8", RGBA8, 32},
	{"BGRa8", BGRA8, 32},
	{"BayerRG8", BayerRGGB8, 8},
	{"BayerBG8", BayerBGGR8, 8},
	{"BayerGB8", BayerGBRG8, 8},
	{"BayerGR8", BayerGRBG8, 8},
	{"BayerRG10", BayerRGGB16, 16},
	{"BayerRG12", BayerRGGB16, 16},
	{"BayerRG16", BayerRGGB16, 16},
	{"BayerBG10", BayerBGGR16, 16},
	{"BayerBG12", BayerBGGR16, 16},
	{"BayerBG16", BayerBGGR16, 16},
	{"BayerGB10", BayerGBRG16, 16},
	{"BayerGB12", BayerGBRG16, 16},
	{"BayerGB16", BayerGBRG16, 16},
	{"BayerGR10", BayerGRBG16, 16},
	{"BayerGR12", BayerGRBG16, 16},
	{"BayerGR16", BayerGRBG16, 16},
	{"YCbCr422_8", YUV422, 16},
	{"YCbCr422_8_CbYCrY", YUV422, 16},
	{"YUV422_8", YUV422, 16},
	{"YUV422_8_UYVY", YUV422, 16},
}

var byName map[string]Format

func init() {
	byName = make(map[string]Format, len(table))
	for _, f := range table {
		byName[normalize(f.Name)] = f
	}
}

// Some devices report the same format with different capitalization,
// e.g. "YCBCR422_8" vs "YCbCr422_8".
func normalize(name string) string {
	return strings.ToLower(name)
}

// Lookup returns the format description for a native name.
func Lookup(name string) (Format, bool) {
	f, ok := byName[normalize(name)]
	return f, ok
}

// Encoding translates a native pixel format into the output encoding.
// Unknown formats return "" and false.
func Encoding(name string) (string, bool) {
	f, ok := Lookup(name)
	if !ok {
		return "", false
	}
	return f.Encoding, true
}

// FrameSize returns the buffer size in bytes for a width x height image.
func (f Format) FrameSize(width, height int) int {
	return width * height * f.BitsPerPixel / 8
}

// Step returns the row length in bytes.
func (f Format) Step(width int) int {
	return width * f.BitsPerPixel / 8
}

// All returns every known format sorted by native name.
func All() []Format {
	out := make([]Format, len(table))
	copy(out, table)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the native names of every known format.
func Names() []string {
	formats := All()
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = f.Name
	}
	return names
}
