package pe

import (
	"encoding/binary"
	"testing"
)

func TestParseRelocationEntriesHighAdjConsumesExtraSlot(t *testing.T) {
	// One HighAdj (type 4) entry followed by its low-half word, then one
	// ordinary HighLow entry. A HighAdj entry must consume both slots so
	// the HighLow entry is still read as a distinct relocation, not as the
	// HighAdj's low half.
	highAdj := uint16(ImageRelBasedHighAdj)<<12 | 0x010
	lowHalf := uint16(0x1234)
	highLow := uint16(ImageRelBasedHighLow)<<12 | 0x020

	block := make([]byte, 6)
	binary.LittleEndian.PutUint16(block[0:], highAdj)
	binary.LittleEndian.PutUint16(block[2:], lowHalf)
	binary.LittleEndian.PutUint16(block[4:], highLow)

	data := make([]byte, 0x2000)
	copy(data[0x1000:], block)

	img := newTestImage(data)
	entries := img.parseRelocationEntries(0x1000, uint32(len(block)))
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Type != ImageRelBasedHighAdj {
		t.Fatalf("entries[0].Type = %v, want HighAdj", entries[0].Type)
	}
	if entries[0].Offset16 != lowHalf {
		t.Errorf("entries[0].Offset16 = 0x%x, want 0x%x", entries[0].Offset16, lowHalf)
	}
	if entries[1].Type != ImageRelBasedHighLow {
		t.Fatalf("entries[1].Type = %v, want HighLow (HighAdj must not swallow it)", entries[1].Type)
	}
	if entries[1].Offset != 0x020 {
		t.Errorf("entries[1].Offset = 0x%x, want 0x020", entries[1].Offset)
	}
}

func TestParseRelocDirectoryRejectsOversizedBlock(t *testing.T) {
	relocBlock := make([]byte, 8)
	binary.LittleEndian.PutUint32(relocBlock[0:], sectionRVA)
	binary.LittleEndian.PutUint32(relocBlock[4:], 0xffffffff) // implausible SizeOfBlock

	data := buildPE32(relocBlock, dirAt(ImageDirectoryEntryBaseReloc, sectionRVA, uint32(len(relocBlock))))
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

	if err := img.parseRelocDirectory(sectionRVA, uint32(len(relocBlock))); err != ErrInvalidBasicRelocSizeOfBloc {
		t.Fatalf("got %v, want ErrInvalidBasicRelocSizeOfBloc", err)
	}
}
