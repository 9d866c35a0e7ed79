// Package compositor turns a raw provider image into the final card: the
// image is downscaled to bounds, a semi-transparent band is anchored at the
// bottom and the station label is rendered into it with an auto-fitted font
// size. When the source bytes are unusable a generated placeholder takes
// their place.
package compositor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Config holds compositing parameters.
type Config struct {
	MaxWidth          int     // downscale bound, px
	MaxHeight         int     // downscale bound, px
	BaseFontSize      float64 // auto-fit starting point, pt
	MinFontSize       float64 // auto-fit floor, pt
	FontSizeStep      float64 // auto-fit shrink step, pt
	WatermarkFontSize float64 // starting size of the watermark line, pt
	JPEGQuality       int     // re-encode quality, 1-100
	PlaceholderWidth  int
	PlaceholderHeight int
	Notice            string // static watermark notice, may be empty
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxWidth:          1280,
		MaxHeight:         960,
		BaseFontSize:      48,
		MinFontSize:       12,
		FontSizeStep:      2,
		WatermarkFontSize: 16,
		JPEGQuality:       85,
		PlaceholderWidth:  800,
		PlaceholderHeight: 600,
		Notice:            "weathercards",
	}
}

// Label is the text rendered into the bottom band.
type Label struct {
	Name        string
	Temperature *float64
}

// Text formats the label line: name plus the measurement at one decimal with
// unit suffix, or N/A when the measurement is absent.
func (l Label) Text() string {
	if l.Temperature == nil {
		return l.Name + " N/A"
	}
	return fmt.Sprintf("%s %.1f°C", l.Name, *l.Temperature)
}

// Compositor renders cards. Safe for concurrent use; faces are created per
// call, only the parsed font is shared.
type Compositor struct {
	cfg Config
	ttf *opentype.Font
}

// New parses the embedded font once and returns a ready Compositor.
func New(cfg Config) (*Compositor, error) {
	ttf, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded font: %w", err)
	}
	return &Compositor{cfg: cfg, ttf: ttf}, nil
}

const bandPadding = 12

// Compose overlays the label band and watermark onto the source image and
// re-encodes it as JPEG. Undecodable or empty source bytes degrade to the
// generated placeholder instead of failing.
func (c *Compositor) Compose(src []byte, label Label, timestamp string) ([]byte, error) {
	if len(src) == 0 {
		return c.Placeholder(label), nil
	}
	decoded, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return c.Placeholder(label), nil
	}

	canvas := c.scaleToBounds(decoded)
	bounds := canvas.Bounds()

	// Bottom band sized from the base font, capped to a third of the image.
	bandHeight := int(c.cfg.BaseFontSize) + 2*bandPadding
	if max := bounds.Dy() / 3; bandHeight > max {
		bandHeight = max
	}
	bandTop := bounds.Max.Y - bandHeight
	bandRect := image.Rect(bounds.Min.X, bandTop, bounds.Max.X, bounds.Max.Y)
	draw.Draw(canvas, bandRect, image.NewUniform(color.NRGBA{0, 0, 0, 160}), image.Point{}, draw.Over)

	availWidth := bounds.Dx() - 2*bandPadding
	availHeight := bandHeight - 2*bandPadding
	face := c.fitFace(label.Text(), c.cfg.BaseFontSize, availWidth, availHeight)
	drawText(canvas, face, label.Text(), bounds.Min.X+bandPadding, bandTop+bandPadding, color.White)

	if mark := c.watermarkText(timestamp); mark != "" {
		markFace := c.fitFace(mark, c.cfg.WatermarkFontSize, availWidth, bandTop-bounds.Min.Y)
		markHeight := faceHeight(markFace)
		// Placed directly above the band so the two lines never overlap.
		drawText(canvas, markFace, mark, bounds.Min.X+bandPadding, bandTop-markHeight-4, color.NRGBA{255, 255, 255, 200})
	}

	return c.encode(canvas)
}

// Placeholder generates a solid-color card with a centered label. It never
// fails; there is no further fallback level below it.
func (c *Compositor) Placeholder(label Label) []byte {
	w, h := c.cfg.PlaceholderWidth, c.cfg.PlaceholderHeight
	if w <= 0 {
		w = 800
	}
	if h <= 0 {
		h = 600
	}

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.NRGBA{38, 70, 83, 255}), image.Point{}, draw.Src)

	text := label.Name
	if text == "" {
		text = "unavailable"
	}
	face := c.fitFace(text, c.cfg.BaseFontSize, w-2*bandPadding, h/2)
	width := font.MeasureString(face, text).Ceil()
	x := (w - width) / 2
	if x < bandPadding {
		x = bandPadding
	}
	y := (h - faceHeight(face)) / 2
	drawText(canvas, face, text, x, y, color.White)

	out, err := c.encode(canvas)
	if err != nil {
		// jpeg.Encode on a valid RGBA cannot realistically fail, but the
		// contract is no failure, so return a minimal gray JPEG anyway.
		var buf bytes.Buffer
		_ = jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1)), nil)
		return buf.Bytes()
	}
	return out
}

// scaleToBounds downscales preserving aspect ratio; images already inside the
// bounds are copied unscaled.
func (c *Compositor) scaleToBounds(src image.Image) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	scale := 1.0
	if c.cfg.MaxWidth > 0 && w > c.cfg.MaxWidth {
		scale = float64(c.cfg.MaxWidth) / float64(w)
	}
	if c.cfg.MaxHeight > 0 && h > c.cfg.MaxHeight {
		if s := float64(c.cfg.MaxHeight) / float64(h); s < scale {
			scale = s
		}
	}

	outW, outH := w, h
	if scale < 1.0 {
		outW = int(float64(w) * scale)
		outH = int(float64(h) * scale)
		if outW < 1 {
			outW = 1
		}
		if outH < 1 {
			outH = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

// fitFace runs the monotone auto-fit: shrink from the starting size in fixed
// steps until the text fits both dimensions or the floor is reached.
func (c *Compositor) fitFace(text string, startSize float64, maxWidth, maxHeight int) font.Face {
	size := startSize
	for {
		face := c.newFace(size)
		if textFits(face, text, maxWidth, maxHeight) || size-c.cfg.FontSizeStep < c.cfg.MinFontSize {
			return face
		}
		size -= c.cfg.FontSizeStep
	}
}

func (c *Compositor) newFace(size float64) font.Face {
	face, err := opentype.NewFace(c.ttf, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}

func textFits(face font.Face, text string, maxWidth, maxHeight int) bool {
	if maxWidth <= 0 || maxHeight <= 0 {
		return false
	}
	width := font.MeasureString(face, text).Ceil()
	return width <= maxWidth && faceHeight(face) <= maxHeight
}

func faceHeight(face font.Face) int {
	m := face.Metrics()
	return (m.Ascent + m.Descent).Ceil()
}

// drawText renders text with its top-left corner at (x, y).
func drawText(dst draw.Image, face font.Face, text string, x, y int, col color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(x),
			Y: fixed.I(y) + face.Metrics().Ascent,
		},
	}
	d.DrawString(text)
}

// watermarkText joins the static notice and the localized timestamp; either
// part may be empty, and the whole line is omitted when both are.
func (c *Compositor) watermarkText(timestamp string) string {
	switch {
	case c.cfg.Notice == "" && timestamp == "":
		return ""
	case c.cfg.Notice == "":
		return timestamp
	case timestamp == "":
		return c.cfg.Notice
	default:
		return c.cfg.Notice + " · " + timestamp
	}
}

func (c *Compositor) encode(img image.Image) ([]byte, error) {
	quality := c.cfg.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
