//go:build linux

package sqandr

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// OpenKeyLine requests a GPIO line used to enable the power amplifier while a
// transmit buffer is being pushed. The line starts deasserted.
func OpenKeyLine(chip string, offset int) (Line, error) {
	l, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request PA enable line %s:%d: %w", chip, offset, err)
	}
	return l, nil
}
