package capture

import (
	"image"

	"docshot/pkg/imaging"
	"docshot/pkg/viewport"
)

// CropToDocument trims the overscan of a composite so it covers exactly the
// document. The crop is clamped to the composite, so a single viewport
// capture of a larger document keeps the viewport size.
func CropToDocument(composite image.Image, info viewport.PageInfo) (*image.RGBA, error) {
	return imaging.Crop(composite, info.DocumentWidth, info.DocumentHeight, 0, 0)
}

// CropFile crops the image at path in place and returns its new size
func CropFile(path string, info viewport.PageInfo) (int, int, error) {
	composite, err := imaging.Read(path)
	if err != nil {
		return 0, 0, err
	}
	cropped, err := CropToDocument(composite, info)
	if err != nil {
		return 0, 0, err
	}
	if err := imaging.Write(cropped, path); err != nil {
		return 0, 0, err
	}
	return cropped.Bounds().Dx(), cropped.Bounds().Dy(), nil
}
