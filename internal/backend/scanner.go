package backend

import (
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// localURLPattern extracts the port from a "localhost:PORT" fragment in the
// backend's startup banner. When it matches, the extracted port overrides the
// port we asked for: some backends silently pick a different one.
var localURLPattern = regexp.MustCompile(`(?i)localhost:(\d{1,5})`)

type readySignal struct {
	Port    int  // effective port; 0 when unknown
	FromURL bool // true when extracted from a localhost:PORT match
}

// outputScanner inspects captured output for a readiness signal and fires the
// channel exactly once. Each chunk is scanned independently, in arrival order;
// a marker split across two chunks is not detected (tolerated imprecision,
// the backend emits its banner line in a single write).
type outputScanner struct {
	markers []string
	once    sync.Once
	ch      chan readySignal
}

func newOutputScanner(markers []string) *outputScanner {
	return &outputScanner{markers: markers, ch: make(chan readySignal, 1)}
}

func (sc *outputScanner) Ready() <-chan readySignal { return sc.ch }

func (sc *outputScanner) Scan(chunk []byte) {
	if port, ok := extractLocalPort(chunk); ok {
		sc.signal(readySignal{Port: port, FromURL: true})
		return
	}
	text := string(chunk)
	for _, marker := range sc.markers {
		if marker != "" && strings.Contains(text, marker) {
			sc.signal(readySignal{})
			return
		}
	}
}

func (sc *outputScanner) signal(sig readySignal) {
	sc.once.Do(func() { sc.ch <- sig })
}

// extractLocalPort returns the port of the first localhost:PORT occurrence in
// the chunk, if any.
func extractLocalPort(chunk []byte) (int, bool) {
	m := localURLPattern.FindSubmatch(chunk)
	if m == nil {
		return 0, false
	}
	port, err := strconv.Atoi(string(m[1]))
	if err != nil || port <= 0 || port > 65535 {
		return 0, false
	}
	return port, true
}

// teeWriter forwards each chunk to the scanner and then to the rotating log
// sink, preserving chunk boundaries for the scan.
type teeWriter struct {
	sink io.WriteCloser // may be nil when no log destination is configured
	scan func([]byte)
}

func (w *teeWriter) Write(p []byte) (int, error) {
	w.scan(p)
	if w.sink != nil {
		_, _ = w.sink.Write(p)
	}
	return len(p), nil
}

func (w *teeWriter) Close() error {
	if w.sink != nil {
		return w.sink.Close()
	}
	return nil
}
