package pe

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestParseDebugDirectoryDecodesRSDS(t *testing.T) {
	debugDirSize := uint32(binary.Size(ImageDebugDirectory{}))
	pdbName := "build\\output.pdb\x00"

	codeViewOffset := sectionFileOffset() + debugDirSize
	sizeOfData := uint32(24 + len(pdbName))

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, ImageDebugDirectory{
		Type:             ImageDebugTypeCodeView,
		SizeOfData:       sizeOfData,
		PointerToRawData: codeViewOffset,
	})
	binary.Write(&buf, binary.LittleEndian, uint32(CVSignatureRSDS))
	binary.Write(&buf, binary.LittleEndian, GUID{Data1: 0x11223344, Data2: 0x5566, Data3: 0x7788})
	binary.Write(&buf, binary.LittleEndian, uint32(1)) // Age
	buf.WriteString(pdbName)

	sectionData := buf.Bytes()
	data := buildPE32(sectionData, dirAt(ImageDirectoryEntryDebug, sectionRVA, debugDirSize))

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

	if err := img.parseDebugDirectory(sectionRVA, debugDirSize); err != nil {
		t.Fatalf("parseDebugDirectory returned error: %v", err)
	}

	entries, ok := img.Debug()
	if !ok || len(entries) != 1 {
		t.Fatalf("expected one debug entry, got %v (ok=%v)", entries, ok)
	}
	pdb, ok := entries[0].Info.(CVInfoPDB70)
	if !ok {
		t.Fatalf("expected CVInfoPDB70, got %T", entries[0].Info)
	}
	if pdb.PDBFileName != "build\\output.pdb" {
		t.Errorf("got PDB name %q, want %q", pdb.PDBFileName, "build\\output.pdb")
	}
}
