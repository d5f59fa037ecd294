package backend

import "testing"

func FuzzExtractLocalPort(f *testing.F) {
	f.Add([]byte("Running on http://localhost:7899"))
	f.Add([]byte("localhost:"))
	f.Add([]byte("LOCALHOST:65535 trailing"))
	f.Add([]byte{0xff, 0xfe, 'l', 'o'})
	f.Fuzz(func(t *testing.T, data []byte) {
		port, ok := extractLocalPort(data)
		if ok && (port <= 0 || port > 65535) {
			t.Fatalf("extracted out-of-range port %d from %q", port, data)
		}
		if !ok && port != 0 {
			t.Fatalf("port must be zero when not matched, got %d", port)
		}
	})
}
