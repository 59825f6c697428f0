package pe

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestParseExportDirectoryForwarderAndNamedFunction(t *testing.T) {
	edSize := uint32(binary.Size(ImageExportDirectory{}))

	dllName := []byte("test.dll\x00")
	nameStr := []byte("Foo\x00")
	forwarderStr := []byte("OtherDLL.Func\x00")

	dllNameRVA := sectionRVA + edSize
	funcsRVA := dllNameRVA + uint32(len(dllName))
	namesRVA := funcsRVA + 8 // two uint32 function RVAs
	ordinalsRVA := namesRVA + 4
	nameStrRVA := ordinalsRVA + 2
	forwarderRVA := nameStrRVA + uint32(len(nameStr))

	ed := ImageExportDirectory{
		Name:                  dllNameRVA,
		Base:                  1,
		NumberOfFunctions:     2,
		NumberOfNames:         1,
		AddressOfFunctions:    funcsRVA,
		AddressOfNames:        namesRVA,
		AddressOfNameOrdinals: ordinalsRVA,
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, ed)
	buf.Write(dllName)
	binary.Write(&buf, binary.LittleEndian, forwarderRVA) // AddressOfFunctions[0]: forwarder
	binary.Write(&buf, binary.LittleEndian, uint32(0x550000)) // AddressOfFunctions[1]: real code
	binary.Write(&buf, binary.LittleEndian, nameStrRVA)       // AddressOfNames[0]
	binary.Write(&buf, binary.LittleEndian, uint16(0))        // AddressOfNameOrdinals[0] -> function index 0
	buf.Write(nameStr)
	buf.Write(forwarderStr)

	sectionData := buf.Bytes()
	data := buildPE32(sectionData, dirAt(ImageDirectoryEntryExport, sectionRVA, uint32(len(sectionData))))

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

	if err := img.parseExportDirectory(sectionRVA, uint32(len(sectionData))); err != nil {
		t.Fatalf("parseExportDirectory returned error: %v", err)
	}

	exp, ok := img.Export()
	if !ok {
		t.Fatal("expected an export directory")
	}
	if exp.Name != "test.dll" {
		t.Errorf("got module name %q, want %q", exp.Name, "test.dll")
	}
	if len(exp.Functions) != 2 {
		t.Fatalf("got %d functions, want 2", len(exp.Functions))
	}

	fwd := exp.Functions[0]
	if fwd.Name != "Foo" {
		t.Errorf("got name %q, want %q", fwd.Name, "Foo")
	}
	if fwd.Forwarder != "OtherDLL.Func" {
		t.Errorf("got forwarder %q, want %q", fwd.Forwarder, "OtherDLL.Func")
	}

	real := exp.Functions[1]
	if real.Forwarder != "" {
		t.Errorf("got forwarder %q, want none", real.Forwarder)
	}
	if real.FunctionRVA != 0x550000 {
		t.Errorf("got FunctionRVA 0x%x, want 0x550000", real.FunctionRVA)
	}
}
