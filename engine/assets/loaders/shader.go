package loaders

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

const spirvMagic uint32 = 0x07230203

var (
	ErrEmptyShader     = errors.New("shader bytecode is empty")
	ErrUnalignedShader = errors.New("shader bytecode is not 4-byte aligned")
)

type ShaderLoader struct{}

// Load reads compiled SPIR-V. Data is the raw []byte.
func (sl *ShaderLoader) Load(path string, params interface{}) (*Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := ValidateShader(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	name, _ := params.(string)
	return &Resource{
		Name:     name,
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     data,
	}, nil
}

func (sl *ShaderLoader) Unload(*Resource) error {
	return nil
}

func ValidateShader(data []byte) error {
	if len(data) == 0 {
		return ErrEmptyShader
	}
	if len(data)%4 != 0 {
		return ErrUnalignedShader
	}
	return nil
}

// IsSPIRV reports whether data starts with the SPIR-V magic number.
func IsSPIRV(data []byte) bool {
	return len(data) >= 4 && binary.LittleEndian.Uint32(data) == spirvMagic
}
