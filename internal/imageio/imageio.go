// Package imageio decodes JPEG and PNG files into packed RGB8 images.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for files that are neither JPEG nor PNG.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Size is an image's dimensions in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Image is a packed, row-major RGB8 image. len(Pix) == Width*Height*3.
type Image struct {
	Size Size
	Pix  []byte
}

// Read decodes the image at path. The format is chosen by extension.
func Read(path string) (Image, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	var decode func(io.Reader) (image.Image, error)
	switch ext {
	case "jpg", "jpeg":
		decode = jpeg.Decode
	case "png":
		decode = png.Decode
	case "":
		return Image{}, fmt.Errorf("%w: missing file extension", ErrUnsupportedFormat)
	default:
		return Image{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return Image{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, err := decode(f)
	if err != nil {
		return Image{}, fmt.Errorf("decode %s: %w", ext, err)
	}
	return FromImage(img), nil
}

// FromImage converts any image.Image to RGB8, dropping alpha.
func FromImage(img image.Image) Image {
	b := img.Bounds()
	out := Image{
		Size: Size{Width: b.Dx(), Height: b.Dy()},
		Pix:  make([]byte, 0, b.Dx()*b.Dy()*3),
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			out.Pix = append(out.Pix, c.R, c.G, c.B)
		}
	}
	return out
}

// EncodePNG encodes img as PNG.
func EncodePNG(img Image) ([]byte, error) {
	if len(img.Pix) != img.Size.Width*img.Size.Height*3 {
		return nil, fmt.Errorf("pixel buffer length %d does not match size %s", len(img.Pix), img.Size)
	}
	rgba := image.NewRGBA(image.Rect(0, 0, img.Size.Width, img.Size.Height))
	for i, j := 0, 0; i < len(img.Pix); i, j = i+3, j+4 {
		rgba.Pix[j] = img.Pix[i]
		rgba.Pix[j+1] = img.Pix[i+1]
		rgba.Pix[j+2] = img.Pix[i+2]
		rgba.Pix[j+3] = 0xff
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
