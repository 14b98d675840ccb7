package decode

import (
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	multiqr "github.com/makiuchi-d/gozxing/multi/qrcode"

	"github.com/samuelcolvin/qrcam/internal/types"
)

// ZXingEngine is the default Engine, backed by the pure-Go zxing port.
//
// The search is fixed at construction for the lifetime of the engine: QR
// symbology only, and no inverted-polarity pass (gozxing scans normal
// polarity only), trading search breadth for per-sample latency.
type ZXingEngine struct {
	reader *multiqr.QRCodeMultiReader
	hints  map[gozxing.DecodeHintType]interface{}
}

// NewZXingEngine creates a QR-only engine.
func NewZXingEngine() *ZXingEngine {
	return &ZXingEngine{
		reader: multiqr.NewQRCodeMultiReader().(*multiqr.QRCodeMultiReader),
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_POSSIBLE_FORMATS: []gozxing.BarcodeFormat{
				gozxing.BarcodeFormat_QR_CODE,
			},
		},
	}
}

// Decode scans the image for QR codes. Finding nothing returns an empty
// slice and a nil error; only binarization or reader failures are errors.
func (e *ZXingEngine) Decode(img *image.Gray) ([]types.ScanResult, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("decode: binarize: %w", err)
	}

	found, err := e.reader.DecodeMultiple(bmp, e.hints)
	if err != nil {
		if _, ok := err.(gozxing.NotFoundException); ok {
			return nil, nil
		}
		return nil, fmt.Errorf("decode: zxing: %w", err)
	}

	results := make([]types.ScanResult, 0, len(found))
	for _, r := range found {
		tl, br := extremalCorners(r.GetResultPoints())
		results = append(results, types.ScanResult{
			Text:        r.GetText(),
			TopLeft:     tl,
			BottomRight: br,
		})
	}
	return results, nil
}

// extremalCorners reduces the engine's located points (a quadrilateral or
// finder-pattern triple) to the two extremal corners carried downstream.
func extremalCorners(points []gozxing.ResultPoint) (tl, br image.Point) {
	if len(points) == 0 {
		return tl, br
	}

	minX, minY := points[0].GetX(), points[0].GetY()
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		x, y := p.GetX(), p.GetY()
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}
	}

	tl = image.Point{X: int(minX + 0.5), Y: int(minY + 0.5)}
	br = image.Point{X: int(maxX + 0.5), Y: int(maxY + 0.5)}
	return tl, br
}
