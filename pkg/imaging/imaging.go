package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"docshot/pkg/errors"
)

// Format identifies an on-disk raster encoding
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
	FormatTIFF Format = "tiff"
	FormatBMP  Format = "bmp"
)

// FormatForPath picks the encoding from a file extension
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return FormatPNG, nil
	case ".jpg", ".jpeg":
		return FormatJPEG, nil
	case ".gif":
		return FormatGIF, nil
	case ".tif", ".tiff":
		return FormatTIFF, nil
	case ".bmp":
		return FormatBMP, nil
	default:
		return "", errors.Newf(errors.ErrorTypeImageTool, "format", "unsupported image extension %q", filepath.Ext(path))
	}
}

// Decode parses raw image bytes (any registered format)
func Decode(data []byte) (*image.RGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeImageTool, "decode", err)
	}
	return toRGBA(img), nil
}

// Resize scales img by the given width and height percentages
func Resize(img image.Image, pctW, pctH float64) (*image.RGBA, error) {
	if pctW <= 0 || pctH <= 0 {
		return nil, errors.Newf(errors.ErrorTypeImageTool, "resize", "invalid scale %.2f%% x %.2f%%", pctW, pctH)
	}
	b := img.Bounds()
	w := int(math.Round(float64(b.Dx()) * pctW / 100))
	h := int(math.Round(float64(b.Dy()) * pctH / 100))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst, nil
}

// Crop cuts a w x h region whose top-left corner is (x, y). The region is
// clamped to the image, so asking for more than exists returns what is there.
func Crop(img image.Image, w, h, x, y int) (*image.RGBA, error) {
	if w <= 0 || h <= 0 {
		return nil, errors.Newf(errors.ErrorTypeImageTool, "crop", "invalid crop size %dx%d", w, h)
	}
	b := img.Bounds()
	region := image.Rect(b.Min.X+x, b.Min.Y+y, b.Min.X+x+w, b.Min.Y+y+h).Intersect(b)
	if region.Empty() {
		return nil, errors.Newf(errors.ErrorTypeImageTool, "crop", "crop %dx%d+%d+%d lies outside %dx%d image", w, h, x, y, b.Dx(), b.Dy())
	}

	dst := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	draw.Draw(dst, dst.Bounds(), img, region.Min, draw.Src)
	return dst, nil
}

// AppendVertical stacks images top to bottom, left aligned. The result is
// as wide as the widest input.
func AppendVertical(imgs ...image.Image) (*image.RGBA, error) {
	if len(imgs) == 0 {
		return nil, errors.New(errors.ErrorTypeImageTool, "append", "nothing to append")
	}
	width, height := 0, 0
	for _, img := range imgs {
		b := img.Bounds()
		if b.Dx() > width {
			width = b.Dx()
		}
		height += b.Dy()
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	offset := 0
	for _, img := range imgs {
		b := img.Bounds()
		draw.Draw(dst, image.Rect(0, offset, b.Dx(), offset+b.Dy()), img, b.Min, draw.Src)
		offset += b.Dy()
	}
	return dst, nil
}

// AppendHorizontal joins img to the right edge of base, top aligned. With
// adjoin false the images are stacked vertically instead, mirroring the
// usual append toggle of image tools.
func AppendHorizontal(base, img image.Image, adjoin bool) (*image.RGBA, error) {
	if base == nil || img == nil {
		return nil, errors.New(errors.ErrorTypeImageTool, "append", "nil image")
	}
	if !adjoin {
		return AppendVertical(base, img)
	}
	bb, ib := base.Bounds(), img.Bounds()
	width := bb.Dx() + ib.Dx()
	height := bb.Dy()
	if ib.Dy() > height {
		height = ib.Dy()
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, image.Rect(0, 0, bb.Dx(), bb.Dy()), base, bb.Min, draw.Src)
	draw.Draw(dst, image.Rect(bb.Dx(), 0, width, ib.Dy()), img, ib.Min, draw.Src)
	return dst, nil
}

// Read decodes the image stored at path
func Read(path string) (*image.RGBA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeImageTool, "read", err)
	}
	return Decode(data)
}

// Write encodes img to path, choosing the format from the extension. The
// file is written to a temporary sibling first and renamed into place, so
// readers never observe a half-written image.
func Write(img image.Image, path string) error {
	format, err := FormatForPath(path)
	if err != nil {
		return err
	}

	tempFile := path + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeImageTool, "write", err)
	}

	err = Encode(out, img, format)
	closeErr := out.Close()
	if err != nil {
		os.Remove(tempFile)
		return err
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return errors.Wrap(errors.ErrorTypeImageTool, "write", closeErr)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return errors.Wrap(errors.ErrorTypeImageTool, "write", err)
	}
	return nil
}

// Encode writes img to w in the given format
func Encode(w io.Writer, img image.Image, format Format) error {
	var err error
	switch format {
	case FormatPNG:
		err = png.Encode(w, img)
	case FormatJPEG:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	case FormatGIF:
		err = gif.Encode(w, img, nil)
	case FormatTIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case FormatBMP:
		err = bmp.Encode(w, img)
	default:
		err = fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return errors.Wrap(errors.ErrorTypeImageTool, "encode", err)
	}
	return nil
}

// toRGBA returns img as a zero-origin RGBA, copying only when needed
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
