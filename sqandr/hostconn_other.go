//go:build !unix

package sqandr

import (
	"fmt"
	"io"
	"os"
)

func nonBlockingFile(f *os.File) (io.Reader, error) {
	return nil, fmt.Errorf("non-blocking %s: %w", f.Name(), ErrUnsupported)
}
