package pe

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// TestParseDelayImportDirectoryNewStyle builds a single new-style (Attributes
// != 0, RVA-based thunks) delay-load descriptor sharing one thunk table
// between its Import Name Table and Import Address Table, terminated by a
// zero descriptor.
func TestParseDelayImportDirectoryNewStyle(t *testing.T) {
	descSize := uint32(binary.Size(ImageDelayImportDescriptor{}))
	moduleName := []byte("delayed.dll\x00")
	funcName := []byte("DelayedFunc\x00")

	nameRVA := sectionRVA + 2*descSize
	thunkRVA := nameRVA + uint32(len(moduleName))
	hintNameRVA := thunkRVA + 8 // one ImageThunkData32 entry + its zero terminator

	desc := ImageDelayImportDescriptor{
		Attributes:            1,
		Name:                  nameRVA,
		ImportNameTableRVA:    thunkRVA,
		ImportAddressTableRVA: thunkRVA,
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, desc)
	binary.Write(&buf, binary.LittleEndian, ImageDelayImportDescriptor{}) // terminator
	buf.Write(moduleName)
	binary.Write(&buf, binary.LittleEndian, ImageThunkData32{AddressOfData: hintNameRVA})
	binary.Write(&buf, binary.LittleEndian, ImageThunkData32{}) // thunk table terminator
	binary.Write(&buf, binary.LittleEndian, uint16(0))          // hint
	buf.Write(funcName)

	sectionData := buf.Bytes()
	data := buildPE32(sectionData, dirAt(ImageDirectoryEntryDelayImport, sectionRVA, descSize))

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

	if err := img.parseDelayImportDirectory(sectionRVA, descSize); err != nil {
		t.Fatalf("parseDelayImportDirectory returned error: %v", err)
	}

	modules, ok := img.DelayImport()
	if !ok || len(modules) != 1 {
		t.Fatalf("expected one delay-import module, got %v (ok=%v)", modules, ok)
	}
	mod := modules[0]
	if mod.Name != "delayed.dll" {
		t.Errorf("got module name %q, want %q", mod.Name, "delayed.dll")
	}
	if len(mod.Functions) != 1 {
		t.Fatalf("got %d functions, want 1", len(mod.Functions))
	}
	if mod.Functions[0].Name != "DelayedFunc" {
		t.Errorf("got function name %q, want %q", mod.Functions[0].Name, "DelayedFunc")
	}
}
