//go:build !linux

package gpio

import "fmt"

func OpenRPi() (Driver, error) {
	return nil, fmt.Errorf("%w: rpio driver needs linux", ErrUnsupported)
}
