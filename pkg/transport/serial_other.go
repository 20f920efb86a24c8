//go:build !linux

package transport

import (
	"context"
	"errors"
)

// OpenSerial is only implemented on Linux.
func OpenSerial(_ context.Context, endpoint string) (Link, error) {
	if _, err := ParseSerialEndpoint(endpoint); err != nil {
		return nil, err
	}
	return nil, errors.New("serial links require linux")
}
