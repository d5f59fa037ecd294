package portalloc

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// Default probing window. The backend framework defaults to 7861, so we start
// there and walk forward.
const (
	DefaultStartPort = 7861
	DefaultAttempts  = 10
)

// NoPortAvailableError is returned when every candidate in the probed range is
// already bound. It carries the range for diagnostics.
type NoPortAvailableError struct {
	Start    int
	Attempts int
}

func (e *NoPortAvailableError) Error() string {
	return fmt.Sprintf("no available port in range %d-%d", e.Start, e.Start+e.Attempts-1)
}

// IsNoPortAvailable reports whether err is (or wraps) a NoPortAvailableError.
func IsNoPortAvailable(err error) bool {
	var e *NoPortAvailableError
	return errors.As(err, &e)
}

// Alloc returns the first port in [start, start+attempts) that accepts a
// loopback bind. The probe listener is closed immediately, so the result is a
// best-effort hint, not a reservation: another process may grab the port
// between probe and use.
func Alloc(start, attempts int) (int, error) {
	if start <= 0 {
		start = DefaultStartPort
	}
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	for off := 0; off < attempts; off++ {
		port := start + off
		ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err != nil {
			continue
		}
		_ = ln.Close()
		return port, nil
	}
	return 0, &NoPortAvailableError{Start: start, Attempts: attempts}
}
