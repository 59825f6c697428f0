package pe

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// TestImpHashLowersNameAndStripsExtension builds one import module with one
// named function and checks ImpHash normalizes both the module name (strip
// the .dll extension, lower-case) and the function name before hashing.
func TestImpHashLowersNameAndStripsExtension(t *testing.T) {
	descSize := uint32(binary.Size(ImageImportDescriptor{}))
	dllName := []byte("TEST.DLL\x00")
	funcName := []byte("Foo\x00")

	nameRVA := sectionRVA + 2*descSize
	iltRVA := nameRVA + uint32(len(dllName))
	iatRVA := iltRVA + 8
	hintNameRVA := iatRVA + 8

	desc := ImageImportDescriptor{
		OriginalFirstThunk: iltRVA,
		FirstThunk:         iatRVA,
		Name:               nameRVA,
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, desc)
	binary.Write(&buf, binary.LittleEndian, ImageImportDescriptor{}) // terminator
	buf.Write(dllName)
	binary.Write(&buf, binary.LittleEndian, ImageThunkData32{AddressOfData: hintNameRVA})
	binary.Write(&buf, binary.LittleEndian, ImageThunkData32{}) // ILT terminator
	binary.Write(&buf, binary.LittleEndian, ImageThunkData32{AddressOfData: hintNameRVA})
	binary.Write(&buf, binary.LittleEndian, ImageThunkData32{}) // IAT terminator
	binary.Write(&buf, binary.LittleEndian, uint16(0))          // hint
	buf.Write(funcName)

	sectionData := buf.Bytes()
	data := buildPE32(sectionData, dirAt(ImageDirectoryEntryImport, sectionRVA, descSize))

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
	if err := img.parseImportDirectory(sectionRVA, descSize); err != nil {
		t.Fatalf("parseImportDirectory returned error: %v", err)
	}

	modules, ok := img.Import()
	if !ok || len(modules) != 1 || len(modules[0].Functions) != 1 {
		t.Fatalf("expected one module with one function, got %+v (ok=%v)", modules, ok)
	}

	got, err := img.ImpHash()
	if err != nil {
		t.Fatalf("ImpHash returned error: %v", err)
	}
	want := md5hash("test.foo")
	if got != want {
		t.Errorf("got imphash %q, want %q", got, want)
	}
}
