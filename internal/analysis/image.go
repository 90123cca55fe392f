package analysis

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrEmptyImage is returned when no image bytes were supplied.
var ErrEmptyImage = errors.New("empty image data")

// Image is a decoded photo ready to be sent to a model.
type Image struct {
	// Format is the decoder name ("jpeg", "png", "gif", "webp", "bmp").
	Format string
	Data   []byte
	Width  int
	Height int
}

// MIMEType returns the image MIME type, e.g. "image/jpeg".
func (img Image) MIMEType() string {
	return "image/" + img.Format
}

// DecodeImage validates data as a supported image.
func DecodeImage(data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, ErrEmptyImage
	}
	decoded, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("decoding image: %w", err)
	}
	bounds := decoded.Bounds()
	return Image{
		Format: format,
		Data:   data,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}
