package pe

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestParseCOMDescriptorDirectory(t *testing.T) {
	header := ImageCOR20Header{
		CB:                  uint32(binary.Size(ImageCOR20Header{})),
		MajorRuntimeVersion: 2,
		MinorRuntimeVersion: 5,
		Flags:               ComImageFlagsILOnly,
		MetaData:            DataDirectory{VirtualAddress: sectionRVA + 100, Size: 64},
	}
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, header)

	sectionData := buf.Bytes()
	data := buildPE32(sectionData, dirAt(ImageDirectoryEntryCLR, sectionRVA, uint32(len(sectionData))))

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

	if err := img.parseCOMDescriptorDirectory(sectionRVA, uint32(len(sectionData))); err != nil {
		t.Fatalf("parseCOMDescriptorDirectory returned error: %v", err)
	}

	com, ok := img.COMDescriptor()
	if !ok {
		t.Fatal("expected a COM descriptor")
	}
	if com.Struct.Flags != ComImageFlagsILOnly {
		t.Errorf("got Flags 0x%x, want 0x%x", com.Struct.Flags, ComImageFlagsILOnly)
	}
	if com.Struct.MetaData.Size != 64 {
		t.Errorf("got MetaData.Size %d, want 64", com.Struct.MetaData.Size)
	}
}
