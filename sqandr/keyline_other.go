//go:build !linux

package sqandr

import "fmt"

func OpenKeyLine(chip string, offset int) (Line, error) {
	return nil, fmt.Errorf("PA enable line %s:%d: %w", chip, offset, ErrUnsupported)
}
