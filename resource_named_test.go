package pe

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// TestParseResourceDirectoryStringNamedEntry builds a root directory with a
// single string-named entry (the top bit of the entry's Name field set)
// pointing at a leaf data entry, exercising the nameIsString branch of the
// resource tree walk instead of the numeric-ID branch.
func TestParseResourceDirectoryStringNamedEntry(t *testing.T) {
	dirSize := uint32(binary.Size(ImageResourceDirectory{}))
	entrySize := uint32(binary.Size(ImageResourceDirectoryEntry{}))
	dataEntrySize := uint32(binary.Size(ImageResourceDataEntry{}))

	dataEntryOffset := dirSize + entrySize
	nameOffset := dataEntryOffset + dataEntrySize

	root := ImageResourceDirectory{NumberOfNamedEntries: 1}
	entry := ImageResourceDirectoryEntry{
		Name:         0x80000000 | nameOffset,
		OffsetToData: dataEntryOffset,
	}
	dataEntry := ImageResourceDataEntry{}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, root)
	binary.Write(&buf, binary.LittleEndian, entry)
	binary.Write(&buf, binary.LittleEndian, dataEntry)
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // length prefix: one UTF-16 unit
	buf.Write([]byte{'A', 0x00})

	sectionData := buf.Bytes()
	data := buildPE32(sectionData, dirAt(ImageDirectoryEntryResource, sectionRVA, uint32(len(sectionData))))

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

	if err := img.parseResourceDirectory(sectionRVA, uint32(len(sectionData))); err != nil {
		t.Fatalf("parseResourceDirectory returned error: %v", err)
	}

	root2, ok := img.Resources()
	if !ok {
		t.Fatal("expected a resource directory")
	}
	if len(root2.Entries) != 1 {
		t.Fatalf("expected one resource entry, got %+v", root2)
	}
	got := root2.Entries[0]
	if got.IsResourceDir {
		t.Fatal("expected a leaf data entry, got a sub-directory")
	}
	if got.Name != "A" {
		t.Errorf("got resource name %q, want %q", got.Name, "A")
	}
}
