package pe

import "encoding/binary"

// ImageExportDirectory is the IMAGE_EXPORT_DIRECTORY structure: three
// parallel arrays (function RVAs, name RVAs, name-ordinal words) describing
// every symbol a module exposes.
type ImageExportDirectory struct {
	Characteristics       uint32
	TimeDateStamp         uint32
	MajorVersion          uint16
	MinorVersion          uint16
	Name                  uint32
	Base                  uint32
	NumberOfFunctions     uint32
	NumberOfNames         uint32
	AddressOfFunctions    uint32
	AddressOfNames        uint32
	AddressOfNameOrdinals uint32
}

// ExportFunction is one exported symbol. Forwarder is set when the
// function RVA falls inside the export directory itself, meaning the
// entry forwards to another module's export rather than naming code in
// this one; ForwarderRVA then still holds the raw pointer and Forwarder
// holds the decoded "Module.Function" string.
type ExportFunction struct {
	Ordinal      uint32 `json:"ordinal"`
	FunctionRVA  uint32 `json:"function_rva"`
	NameRVA      uint32 `json:"name_rva"`
	Name         string `json:"name"`
	Forwarder    string `json:"forwarder,omitempty"`
	ForwarderRVA uint32 `json:"forwarder_rva,omitempty"`
}

// Export is the export directory plus its resolved function table.
type Export struct {
	Struct    ImageExportDirectory `json:"struct"`
	Name      string               `json:"name"`
	Functions []ExportFunction     `json:"functions"`
}

// parseExportDirectory walks the three parallel arrays describing an
// image's exports. A function is a forwarder when its RVA lies inside
// [rva, rva+size) — the export directory's own extent — per §4.5; its
// target is then a null-terminated "Module.Function" string at that RVA
// rather than code.
func (img *Image) parseExportDirectory(rva, size uint32) error {
	ed := ImageExportDirectory{}
	offset := img.GetOffsetFromRva(rva)
	edSize := uint32(binary.Size(ed))
	if err := img.structUnpack(&ed, offset, edSize); err != nil {
		return err
	}

	exp := Export{Struct: ed}
	exp.Name = img.getStringAtRVA(ed.Name, maxPathDefault)

	numFuncs := ed.NumberOfFunctions
	if numFuncs > img.opts.MaxFuncs {
		numFuncs = img.opts.MaxFuncs
	}
	numNames := ed.NumberOfNames
	if numNames > numFuncs {
		numNames = numFuncs
	}

	// ordinal -> (name, name RVA), built from the name/name-ordinal parallel arrays.
	namesByOrdinal := make(map[uint32]string, numNames)
	nameRVAsByOrdinal := make(map[uint32]uint32, numNames)
	for i := uint32(0); i < numNames; i++ {
		nameRVAOff := img.GetOffsetFromRva(ed.AddressOfNames + i*4)
		nameRVA, err := img.ReadUint32(nameRVAOff)
		if err != nil {
			break
		}
		ordOff := img.GetOffsetFromRva(ed.AddressOfNameOrdinals + i*2)
		ord, err := img.ReadUint16(ordOff)
		if err != nil {
			break
		}
		namesByOrdinal[uint32(ord)] = img.getStringAtRVA(nameRVA, maxPathDefault)
		nameRVAsByOrdinal[uint32(ord)] = nameRVA
	}

	for i := uint32(0); i < numFuncs; i++ {
		funcRVAOff := img.GetOffsetFromRva(ed.AddressOfFunctions + i*4)
		funcRVA, err := img.ReadUint32(funcRVAOff)
		if err != nil {
			break
		}
		if funcRVA == 0 {
			continue
		}

		fn := ExportFunction{
			Ordinal:     ed.Base + i,
			FunctionRVA: funcRVA,
			Name:        namesByOrdinal[i],
			NameRVA:     nameRVAsByOrdinal[i],
		}

		if funcRVA >= rva && funcRVA < rva+size {
			fn.Forwarder = img.getStringAtRVA(funcRVA, maxPathDefault)
			fn.ForwarderRVA = funcRVA
		}

		exp.Functions = append(exp.Functions, fn)
	}

	img.export = exp
	img.hasExport = true
	return nil
}
