//go:build !unix

package mem

import "errors"

func NewPages() (Allocator, error) {
	return nil, errors.New("mem: page allocator not available on this platform")
}
