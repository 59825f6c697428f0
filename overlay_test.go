package pe

import (
	"bytes"
	"testing"
)

func TestOverlayAbsentOnWellFormedImage(t *testing.T) {
	data := buildPE32(nil, [16]DataDirectory{})
	img, err := OpenBytes(data, nil)
	if err != nil {
		t.Fatalf("OpenBytes failed: %v", err)
	}
	defer img.Close()

	if _, err := img.Overlay(); err != ErrNoOverlayFound {
		t.Fatalf("got %v, want ErrNoOverlayFound", err)
	}
	if n := img.OverlayLength(); n != 0 {
		t.Fatalf("got overlay length %d, want 0", n)
	}
}

func TestOverlayDetectedAfterLastSection(t *testing.T) {
	trailer := []byte("trailing-data-appended-past-the-last-section")
	data := append(buildPE32(nil, [16]DataDirectory{}), trailer...)

	img, err := OpenBytes(data, nil)
	if err != nil {
		t.Fatalf("OpenBytes failed: %v", err)
	}
	defer img.Close()

	overlay, err := img.Overlay()
	if err != nil {
		t.Fatalf("Overlay returned error: %v", err)
	}
	if !bytes.Equal(overlay, trailer) {
		t.Fatalf("got overlay %q, want %q", overlay, trailer)
	}
	if n := img.OverlayLength(); n != int64(len(trailer)) {
		t.Fatalf("got overlay length %d, want %d", n, len(trailer))
	}
}
