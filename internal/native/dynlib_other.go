//go:build !(darwin || freebsd || linux)

package native

import "fmt"

func Open(path string) (Library, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, path)
}
