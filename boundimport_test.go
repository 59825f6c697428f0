package pe

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// TestParseBoundImportDirectoryTerminatesOnZeroDescriptor builds one real
// descriptor followed by an all-zero terminator, per the format's
// TimeDateStamp == 0 termination rule. The Bound Import directory's
// "virtual address" is a plain file offset, not an RVA, so the descriptor
// and its module name are placed directly at that offset.
func TestParseBoundImportDirectoryTerminatesOnZeroDescriptor(t *testing.T) {
	baseOffset := sectionFileOffset()
	moduleName := []byte("dep.dll\x00")

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, ImageBoundImportDescriptor{
		TimeDateStamp:    1,
		OffsetModuleName: 16,
	})
	binary.Write(&buf, binary.LittleEndian, ImageBoundImportDescriptor{}) // terminator
	buf.Write(moduleName)

	sectionData := buf.Bytes()
	data := buildPE32(sectionData, [16]DataDirectory{})

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

	if err := img.parseBoundImportDirectory(baseOffset, uint32(len(sectionData))); err != nil {
		t.Fatalf("parseBoundImportDirectory returned error: %v", err)
	}

	modules, ok := img.BoundImport()
	if !ok || len(modules) != 1 {
		t.Fatalf("expected one bound import module, got %v (ok=%v)", modules, ok)
	}
	if modules[0].Name != "dep.dll" {
		t.Errorf("got module name %q, want %q", modules[0].Name, "dep.dll")
	}
}
