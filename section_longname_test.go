package pe

import (
	"encoding/binary"
	"testing"
)

// TestResolveSectionNameFollowsCOFFStringTable builds a section whose raw
// 8-byte name field holds the `/0` COFF string table convention and checks
// the long name is resolved from the table instead of being returned as-is.
func TestResolveSectionNameFollowsCOFFStringTable(t *testing.T) {
	longName := ".very_long_section_name"
	sectionData := append([]byte(longName), 0x00)

	data := buildPE32(sectionData, [16]DataDirectory{})

	fileHeaderOffset := uint32(testELfanew) + 4
	sectionHeaderOffset := fileHeaderOffset + uint32(binary.Size(ImageFileHeader{})) +
		uint32(binary.Size(ImageOptionalHeader32{}))

	// PointerToSymbolTable + NumberOfSymbols*18 is the string table's file
	// offset; pointing it straight at the section's raw data with zero
	// symbols makes offset "/0" land exactly on longName.
	binary.LittleEndian.PutUint32(data[fileHeaderOffset+8:], sectionFileOffset())
	binary.LittleEndian.PutUint32(data[fileHeaderOffset+12:], 0)

	copy(data[sectionHeaderOffset:sectionHeaderOffset+8], []byte("/0\x00\x00\x00\x00\x00\x00"))

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

	sections, ok := img.SectionHeaders()
	if !ok || len(sections) != 1 {
		t.Fatalf("expected one section, got %v (ok=%v)", sections, ok)
	}
	if sections[0].Name != longName {
		t.Errorf("got section name %q, want %q", sections[0].Name, longName)
	}
}
