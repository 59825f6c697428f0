package pe

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestParseLoadConfigDirectory32(t *testing.T) {
	dir := ImageLoadConfigDirectory32{
		Size:           uint32(binary.Size(ImageLoadConfigDirectory32{})),
		SecurityCookie: 0x402000,
	}
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, dir)

	sectionData := buf.Bytes()
	data := buildPE32(sectionData, dirAt(ImageDirectoryEntryLoadConfig, sectionRVA, uint32(len(sectionData))))

	img := newTestImage(data)
	if err := img.parseDOSHeader(); err != nil {
		t.Fatalf("parseDOSHeader: %v", err)
	}
	if err := img.parseNTHeader(); err != nil {
		t.Fatalf("parseNTHeader: %v", err)
	}
	if err := img.parseSectionHeader(); err != nil {
		t.Fatalf("parseSectionHeader: %v", err)
	}

	if err := img.parseLoadConfigDirectory(sectionRVA, uint32(len(sectionData))); err != nil {
		t.Fatalf("parseLoadConfigDirectory returned error: %v", err)
	}

	lc, ok := img.LoadConfig()
	if !ok {
		t.Fatal("expected a Load Config directory")
	}
	got, ok := lc.Struct.(ImageLoadConfigDirectory32)
	if !ok {
		t.Fatalf("expected ImageLoadConfigDirectory32, got %T", lc.Struct)
	}
	if got.SecurityCookie != 0x402000 {
		t.Errorf("got SecurityCookie 0x%x, want 0x402000", got.SecurityCookie)
	}
}
