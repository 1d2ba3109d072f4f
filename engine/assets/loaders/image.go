package loaders

import (
	"encoding/binary"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type PixelFormat uint8

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatRGBA8
	PixelFormatR8
	PixelFormatR32F
)

func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case PixelFormatRGBA8, PixelFormatR32F:
		return 4
	case PixelFormatR8:
		return 1
	}
	return 0
}

func (f PixelFormat) String() string {
	switch f {
	case PixelFormatRGBA8:
		return "RGBA8"
	case PixelFormatR8:
		return "R8"
	case PixelFormatR32F:
		return "R32F"
	}
	return "unknown"
}

// ConvertOptions picks the pixel format of a decoded image. Default is used
// when the source has no natural match; Force applies Default to every image.
type ConvertOptions struct {
	Default PixelFormat
	Force   bool
	FlipY   bool
}

type Image struct {
	Width         uint32
	Height        uint32
	BytesPerPixel uint32
	BytesPerRow   uint32
	Format        PixelFormat
	Pixels        []byte
}

type ImageLoader struct{}

// Load decodes path. params may be a ConvertOptions or nil.
func (il *ImageLoader) Load(path string, params interface{}) (*Resource, error) {
	opts := ConvertOptions{Default: PixelFormatRGBA8}
	if p, ok := params.(ConvertOptions); ok {
		opts = p
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := DecodeImage(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Resource{
		Name:     path,
		FullPath: path,
		DataSize: uint64(len(img.Pixels)),
		Data:     img,
	}, nil
}

func (il *ImageLoader) Unload(*Resource) error {
	return nil
}

func DecodeImage(r io.Reader, opts ConvertOptions) (*Image, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	return ConvertImage(src, opts)
}

func naturalFormat(src image.Image) PixelFormat {
	switch src.(type) {
	case *image.Gray, *image.Gray16:
		return PixelFormatR8
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64, *image.Paletted, *image.YCbCr, *image.NYCbCrA, *image.CMYK:
		return PixelFormatRGBA8
	}
	return PixelFormatUnknown
}

func ConvertImage(src image.Image, opts ConvertOptions) (*Image, error) {
	format := naturalFormat(src)
	if opts.Force || format == PixelFormatUnknown {
		format = opts.Default
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := &Image{
		Width:         uint32(w),
		Height:        uint32(h),
		Format:        format,
		BytesPerPixel: uint32(format.BytesPerPixel()),
	}
	out.BytesPerRow = out.Width * out.BytesPerPixel

	switch format {
	case PixelFormatRGBA8:
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		out.Pixels = dst.Pix
	case PixelFormatR8:
		dst := image.NewGray(image.Rect(0, 0, w, h))
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		out.Pixels = dst.Pix
	case PixelFormatR32F:
		gray := image.NewGray16(image.Rect(0, 0, w, h))
		draw.Draw(gray, gray.Bounds(), src, b.Min, draw.Src)
		out.Pixels = make([]byte, w*h*4)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := float32(gray.Gray16At(x, y).Y) / math.MaxUint16
				binary.LittleEndian.PutUint32(out.Pixels[(y*w+x)*4:], math.Float32bits(v))
			}
		}
	default:
		return nil, fmt.Errorf("unsupported pixel format %s", format)
	}

	if opts.FlipY {
		flipRows(out.Pixels, int(out.BytesPerRow), h)
	}
	return out, nil
}

func flipRows(pix []byte, stride, rows int) {
	tmp := make([]byte, stride)
	for top, bottom := 0, rows-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := pix[top*stride : (top+1)*stride]
		c := pix[bottom*stride : (bottom+1)*stride]
		copy(tmp, a)
		copy(a, c)
		copy(c, tmp)
	}
}
