package pe

import (
	"errors"
	"testing"
)

func TestOpenBytesTooSmall(t *testing.T) {
	_, err := OpenBytes(make([]byte, 63), nil)
	if !errors.Is(err, ErrTooSmall) {
		t.Fatalf("got %v, want ErrTooSmall", err)
	}
}

func TestOpenBytesNoDOSSignature(t *testing.T) {
	data := make([]byte, 128)
	_, err := OpenBytes(data, nil)
	if !errors.Is(err, ErrNoDOSSignature) {
		t.Fatalf("got %v, want ErrNoDOSSignature", err)
	}
}

func TestOpenBytesELfanewPastEOF(t *testing.T) {
	data := make([]byte, 64)
	data[0], data[1] = 'M', 'Z'
	// AddressOfNewEXEHeader at offset 0x3c, set far past EOF.
	data[0x3c] = 0xff
	data[0x3d] = 0xff
	data[0x3e] = 0xff
	data[0x3f] = 0x7f

	img, err := OpenBytes(data, nil)
	if err != nil {
		t.Fatalf("OpenBytes failed: %v", err)
	}
	defer img.Close()

	if _, ok := img.DOSHeader(); !ok {
		t.Fatal("DOSHeader should still be available")
	}
	if _, ok := img.NTHeader(); ok {
		t.Fatal("NTHeader should be absent when e_lfanew is out of bounds")
	}
	found := false
	for _, a := range img.Anomalies() {
		if a == "e_lfanew out of bounds" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an e_lfanew anomaly, got %v", img.Anomalies())
	}
}

func TestOpenBytesWellFormedImage(t *testing.T) {
	data := buildPE32(nil, [16]DataDirectory{})
	img, err := OpenBytes(data, nil)
	if err != nil {
		t.Fatalf("OpenBytes failed: %v", err)
	}
	defer img.Close()

	nt, ok := img.NTHeader()
	if !ok {
		t.Fatal("expected an NT header")
	}
	if nt.Signature != ImageNTSignature {
		t.Errorf("got signature 0x%x, want 0x%x", nt.Signature, ImageNTSignature)
	}

	sections, ok := img.SectionHeaders()
	if !ok || len(sections) != 1 {
		t.Fatalf("expected one section, got %v (ok=%v)", sections, ok)
	}
	if sections[0].Name != "test" {
		t.Errorf("got section name %q, want %q", sections[0].Name, "test")
	}
}
