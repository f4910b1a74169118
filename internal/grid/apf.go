package grid

import (
	"errors"
	"os"

	"trajneat/internal/config"
)

// LoadAPF reads the raw road-quality surface: one byte per coordinate in
// x-major order.
func LoadAPF(path string, layout Layout) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, config.Errorf("apf file %s not present", path)
		}
		return nil, config.Errorf("read apf file %s: %v", path, err)
	}
	if len(data) != layout.NumCoords() {
		return nil, config.Errorf("apf file %s has %d bytes, want %d", path, len(data), layout.NumCoords())
	}
	return data, nil
}

// WriteAPF stores a road-quality surface in the format LoadAPF reads.
func WriteAPF(path string, apf []byte) error {
	return writeAtomic(path, func(f *os.File) error {
		_, err := f.Write(apf)
		return err
	})
}
