package pe

import "encoding/binary"

// COM Descriptor flags.
const (
	ComImageFlagsILOnly          = 0x00000001
	ComImageFlags32BitRequired   = 0x00000002
	ComImageFlagsILLibrary       = 0x00000004
	ComImageFlagsStrongNameSigned = 0x00000008
	ComImageFlagsNativeEntrypoint = 0x00000010
	ComImageFlagsTrackDebugData  = 0x00010000
)

// ImageCOR20Header is the IMAGE_COR20_HEADER structure (the CLR/.NET
// runtime header, also known as the COM Descriptor). Its Metadata field
// points at the start of the CLR metadata stream, which this library does
// not decode further.
type ImageCOR20Header struct {
	CB                uint32         `json:"cb"`
	MajorRuntimeVersion uint16       `json:"major_runtime_version"`
	MinorRuntimeVersion uint16       `json:"minor_runtime_version"`
	MetaData          DataDirectory  `json:"meta_data"`
	Flags             uint32         `json:"flags"`
	EntryPointToken   uint32         `json:"entry_point_token"`
	Resources         DataDirectory  `json:"resources"`
	StrongNameSignature DataDirectory `json:"strong_name_signature"`
	CodeManagerTable  DataDirectory  `json:"code_manager_table"`
	VTableFixups      DataDirectory  `json:"vtable_fixups"`
	ExportAddressTableJumps DataDirectory `json:"export_address_table_jumps"`
	ManagedNativeHeader DataDirectory `json:"managed_native_header"`
}

// COMDescriptor is the .NET CLR header directory.
type COMDescriptor struct {
	Struct ImageCOR20Header `json:"struct"`
}

// parseCOMDescriptorDirectory parses the single IMAGE_COR20_HEADER that
// marks a .NET assembly, per §4.13. It does not walk into the CLR metadata
// stream the header points to.
func (img *Image) parseCOMDescriptorDirectory(rva, size uint32) error {
	header := ImageCOR20Header{}
	headerSize := uint32(binary.Size(header))
	offset := img.GetOffsetFromRva(rva)

	if err := img.structUnpack(&header, offset, headerSize); err != nil {
		return err
	}

	img.comDescriptor = COMDescriptor{Struct: header}
	img.hasCOM = true
	return nil
}
