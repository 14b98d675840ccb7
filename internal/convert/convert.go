// Package convert turns raw packed 4:2:2 camera planes into display-ready
// RGBA and decode-ready grayscale images.
//
// The converter is a pure function: no shared state, no I/O, deterministic
// for a given plane and mirror flag. Malformed input (a byte buffer shorter
// than stride*height) degrades to a partially blank image, never an error.
package convert

import (
	"image"

	"github.com/samuelcolvin/qrcam/internal/types"
)

// Packed 4:2:2 stores 2 luma samples and one shared chroma pair per 4-byte
// group, ordered [U, Y0, V, Y1]. Two bytes per pixel, so the pixel width of
// a plane is Stride/2.
const (
	bytesPerPixel = 2
	bytesPerGroup = 4
)

// Convert unpacks one packed 4:2:2 plane into an RGBA image and a grayscale
// image of width Stride/2 and the plane's height.
//
// When mirror is true the output is the exact horizontal flip of the
// unmirrored output: pixel pairs are sourced from the reflected group index
// and the two luma samples within each group are swapped, so column c of the
// mirrored image equals column width-1-c of the straight one.
//
// Any 4-byte group whose source offset would run past the end of the buffer
// is skipped; the corresponding pixels keep their zero value.
func Convert(plane types.Plane, mirror bool) (*image.RGBA, *image.Gray) {
	width := int(plane.Stride) / bytesPerPixel
	height := int(plane.Height)
	stride := int(plane.Stride)

	rgba := image.NewRGBA(image.Rect(0, 0, width, height))
	gray := image.NewGray(image.Rect(0, 0, width, height))

	groups := width / 2
	data := plane.Data

	for row := 0; row < height; row++ {
		for x := 0; x < groups; x++ {
			src := x
			if mirror {
				src = groups - 1 - x
			}

			off := row*stride + src*bytesPerGroup
			if off+3 >= len(data) {
				continue
			}

			u := data[off]
			y0 := data[off+1]
			v := data[off+2]
			y1 := data[off+3]

			if mirror {
				// A reflected group lands with its two pixels in
				// reverse order.
				y0, y1 = y1, y0
			}

			r0, g0, b0 := yuvToRGB(y0, u, v)
			r1, g1, b1 := yuvToRGB(y1, u, v)

			p := rgba.PixOffset(2*x, row)
			rgba.Pix[p+0] = r0
			rgba.Pix[p+1] = g0
			rgba.Pix[p+2] = b0
			rgba.Pix[p+3] = 0xff
			rgba.Pix[p+4] = r1
			rgba.Pix[p+5] = g1
			rgba.Pix[p+6] = b1
			rgba.Pix[p+7] = 0xff

			// Grayscale keeps the raw luma samples, no range adjustment.
			q := gray.PixOffset(2*x, row)
			gray.Pix[q+0] = y0
			gray.Pix[q+1] = y1
		}
	}

	return rgba, gray
}

// yuvToRGB applies the BT.601 conversion for one luma sample and its shared
// chroma pair, rounding and clamping each channel to [0,255].
func yuvToRGB(y, u, v byte) (r, g, b byte) {
	yf := float32(y)
	uf := float32(u) - 128
	vf := float32(v) - 128

	r = clamp(yf + 1.402*vf)
	g = clamp(yf - 0.344136*uf - 0.714136*vf)
	b = clamp(yf + 1.772*uf)
	return r, g, b
}

func clamp(v float32) byte {
	v += 0.5 // round half up
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
