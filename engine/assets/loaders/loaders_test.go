package loaders

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spirvBlob(words ...uint32) []byte {
	buf := make([]byte, 4*(len(words)+1))
	binary.LittleEndian.PutUint32(buf, spirvMagic)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*(i+1):], w)
	}
	return buf
}

func TestShaderLoaderValidatesBytecode(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.spv")
	require.NoError(t, os.WriteFile(good, spirvBlob(1, 2, 3), 0o644))
	empty := filepath.Join(dir, "empty.spv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	odd := filepath.Join(dir, "odd.spv")
	require.NoError(t, os.WriteFile(odd, []byte{1, 2, 3, 4, 5}, 0o644))

	sl := &ShaderLoader{}

	res, err := sl.Load(good, "good")
	require.NoError(t, err)
	assert.Equal(t, "good", res.Name)
	assert.Equal(t, uint64(16), res.DataSize)
	assert.True(t, IsSPIRV(res.Data.([]byte)))

	_, err = sl.Load(empty, nil)
	assert.ErrorIs(t, err, ErrEmptyShader)

	_, err = sl.Load(odd, nil)
	assert.ErrorIs(t, err, ErrUnalignedShader)

	_, err = sl.Load(filepath.Join(dir, "missing.spv"), nil)
	assert.Error(t, err)
}

func TestBinaryLoaderReadsWords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.bin")
	require.NoError(t, os.WriteFile(path, []byte{1, 0, 0, 0, 0, 1, 0, 0}, 0o644))

	res, err := (&BinaryLoader{}).Load(path, "words")
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 256}, res.Data)

	assert.Len(t, BytesToWords([]byte{1, 2, 3, 4, 5}), 1)
}

func checker(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.NRGBA{R: 255, A: 255})
			} else {
				img.Set(x, y, color.NRGBA{B: 255, A: 255})
			}
		}
	}
	return img
}

func TestConvertImageNaturalFormats(t *testing.T) {
	out, err := ConvertImage(checker(4, 2), ConvertOptions{Default: PixelFormatR8})
	require.NoError(t, err)
	assert.Equal(t, PixelFormatRGBA8, out.Format)
	assert.Equal(t, uint32(4), out.BytesPerPixel)
	assert.Equal(t, uint32(16), out.BytesPerRow)
	assert.Len(t, out.Pixels, 4*2*4)
	assert.Equal(t, []byte{255, 0, 0, 255}, out.Pixels[:4])
	assert.Equal(t, []byte{0, 0, 255, 255}, out.Pixels[4:8])

	gray := image.NewGray(image.Rect(0, 0, 3, 3))
	gray.SetGray(1, 1, color.Gray{Y: 200})
	out, err = ConvertImage(gray, ConvertOptions{Default: PixelFormatRGBA8})
	require.NoError(t, err)
	assert.Equal(t, PixelFormatR8, out.Format)
	assert.Equal(t, byte(200), out.Pixels[4])
}

func TestConvertImageForce(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 2, 1))
	gray.SetGray(0, 0, color.Gray{Y: 255})

	out, err := ConvertImage(gray, ConvertOptions{Default: PixelFormatR32F, Force: true})
	require.NoError(t, err)
	assert.Equal(t, PixelFormatR32F, out.Format)
	require.Len(t, out.Pixels, 8)
	assert.InDelta(t, 1.0, math.Float32frombits(binary.LittleEndian.Uint32(out.Pixels)), 1e-6)
	assert.InDelta(t, 0.0, math.Float32frombits(binary.LittleEndian.Uint32(out.Pixels[4:])), 1e-6)

	out, err = ConvertImage(checker(2, 2), ConvertOptions{Default: PixelFormatRGBA8, Force: true})
	require.NoError(t, err)
	assert.Equal(t, PixelFormatRGBA8, out.Format)

	_, err = ConvertImage(gray, ConvertOptions{Force: true})
	assert.Error(t, err)
}

func TestConvertImageFlipY(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 1, 3))
	img.SetGray(0, 0, color.Gray{Y: 1})
	img.SetGray(0, 1, color.Gray{Y: 2})
	img.SetGray(0, 2, color.Gray{Y: 3})

	out, err := ConvertImage(img, ConvertOptions{FlipY: true})
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 2, 1}, out.Pixels)
}

func TestImageLoaderDecodesPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, checker(8, 4)))
	path := filepath.Join(t.TempDir(), "checker.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	res, err := (&ImageLoader{}).Load(path, nil)
	require.NoError(t, err)
	img := res.Data.(*Image)
	assert.Equal(t, uint32(8), img.Width)
	assert.Equal(t, uint32(4), img.Height)
	assert.Equal(t, PixelFormatRGBA8, img.Format)

	_, err = DecodeImage(bytes.NewReader([]byte("not an image")), ConvertOptions{})
	assert.Error(t, err)
}
