package decode

import (
	"image"

	"github.com/samuelcolvin/qrcam/internal/types"
)

// Engine scans a grayscale image for machine-readable symbols.
//
// Implementations are configured once at construction (symbology set,
// search options) and must be safe for repeated calls from a single
// goroutine. Finding nothing is not an error: an empty slice with a nil
// error means the image was scanned and contained no symbols.
type Engine interface {
	Decode(img *image.Gray) ([]types.ScanResult, error)
}
