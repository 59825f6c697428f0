package pe

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestParseExceptionDirectoryFlatArray(t *testing.T) {
	entries := []ImageRuntimeFunctionEntry{
		{BeginAddress: 0x1000, EndAddress: 0x1040, UnwindInfoAddress: 0x3000},
		{BeginAddress: 0x1040, EndAddress: 0x1090, UnwindInfoAddress: 0x3010},
	}
	var buf bytes.Buffer
	for _, e := range entries {
		binary.Write(&buf, binary.LittleEndian, e)
	}

	sectionData := buf.Bytes()
	data := buildPE32(sectionData, dirAt(ImageDirectoryEntryException, sectionRVA, uint32(len(sectionData))))

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

	if err := img.parseExceptionDirectory(sectionRVA, uint32(len(sectionData))); err != nil {
		t.Fatalf("parseExceptionDirectory returned error: %v", err)
	}

	got, ok := img.Exceptions()
	if !ok || len(got) != 2 {
		t.Fatalf("expected two exception entries, got %v (ok=%v)", got, ok)
	}
	if got[1].RuntimeFunction.BeginAddress != 0x1040 {
		t.Errorf("got BeginAddress 0x%x, want 0x1040", got[1].RuntimeFunction.BeginAddress)
	}
}
