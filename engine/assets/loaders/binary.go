package loaders

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// BinaryLoader reads a file as little endian 32-bit words.
type BinaryLoader struct{}

func (bl *BinaryLoader) Load(path string, params interface{}) (*Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("%s: size %d is not a multiple of 4", path, len(buf))
	}

	name, _ := params.(string)
	return &Resource{
		Name:     name,
		FullPath: path,
		DataSize: uint64(len(buf)),
		Data:     BytesToWords(buf),
	}, nil
}

func (bl *BinaryLoader) Unload(*Resource) error {
	return nil
}

// BytesToWords drops a trailing partial word.
func BytesToWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}
