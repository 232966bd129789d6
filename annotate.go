package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// Detection is one detected object. XYWH is center-x, center-y,
// width, height in pixels, the convention the detector reports.
type Detection struct {
	Name string    `json:"name"`
	XYWH []float64 `json:"xywh"`
}

// detectionPayload matches the detected_objects form field.
type detectionPayload struct {
	DetectedObjects []Detection `json:"detected_objects"`
}

// ParseDetections decodes the detected_objects JSON payload.
func ParseDetections(raw string) ([]Detection, error) {
	var payload detectionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse detections: %w", err)
	}
	return payload.DetectedObjects, nil
}

// boxPalette cycles per detection index.
var boxPalette = []color.RGBA{
	{R: 230, G: 57, B: 70, A: 255},
	{R: 46, G: 196, B: 182, A: 255},
	{R: 255, G: 159, B: 28, A: 255},
	{R: 69, G: 123, B: 157, A: 255},
	{R: 144, G: 190, B: 109, A: 255},
	{R: 155, G: 93, B: 229, A: 255},
}

// AnnotateImage draws each detection's box and label onto the frame
// and re-encodes it as PNG. Detections without a full xywh are
// skipped.
func AnnotateImage(frame []byte, detections []Detection) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	dc := gg.NewContextForImage(img)
	dc.SetFontFace(basicfont.Face7x13)

	for i, det := range detections {
		if len(det.XYWH) != 4 {
			continue
		}
		w := det.XYWH[2]
		h := det.XYWH[3]
		x := det.XYWH[0] - w/2
		y := det.XYWH[1] - h/2

		c := boxPalette[i%len(boxPalette)]
		dc.SetColor(c)
		dc.SetLineWidth(2)
		dc.DrawRectangle(x, y, w, h)
		dc.Stroke()

		if det.Name == "" {
			continue
		}

		// Label background sits just above the box, clamped to the
		// canvas when the box touches the top edge.
		tw, th := dc.MeasureString(det.Name)
		ly := y - th - 4
		if ly < 0 {
			ly = y
		}
		dc.SetColor(c)
		dc.DrawRectangle(x, ly, tw+6, th+4)
		dc.Fill()
		dc.SetRGB(1, 1, 1)
		dc.DrawString(det.Name, x+3, ly+th)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("failed to encode annotated frame: %w", err)
	}
	return buf.Bytes(), nil
}
