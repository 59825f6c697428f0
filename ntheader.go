package pe

import (
	"encoding/binary"
)

// ImageFileHeaderMachineType represents the type of the image file header `Machine` field.
type ImageFileHeaderMachineType uint16

// ImageFileHeaderCharacteristicsType represents the type of the image file header
// `Characteristics` field.
type ImageFileHeaderCharacteristicsType uint16

// ImageOptionalHeaderSubsystemType represents the type of the optional header `Subsystem` field.
type ImageOptionalHeaderSubsystemType uint16

// ImageOptionalHeaderDllCharacteristicsType represents the type of the optional header
// `DllCharacteristics` field.
type ImageOptionalHeaderDllCharacteristicsType uint16

// NTHeader represents the PE header, IMAGE_NT_HEADERS, located at e_lfanew.
type NTHeader struct {
	Signature uint32 `json:"signature"`

	FileHeader ImageFileHeader `json:"file_header"`

	// OptionalHeader is of type ImageOptionalHeader32 or ImageOptionalHeader64.
	OptionalHeader interface{} `json:"optional_header"`
}

// ImageFileHeader contains infos about the physical layout and properties of the file.
type ImageFileHeader struct {
	Machine              ImageFileHeaderMachineType         `json:"machine"`
	NumberOfSections     uint16                             `json:"number_of_sections"`
	TimeDateStamp        uint32                             `json:"time_date_stamp"`
	PointerToSymbolTable uint32                             `json:"pointer_to_symbol_table"`
	NumberOfSymbols      uint32                             `json:"number_of_symbols"`
	SizeOfOptionalHeader uint16                             `json:"size_of_optional_header"`
	Characteristics      ImageFileHeaderCharacteristicsType `json:"characteristics"`
}

// ImageOptionalHeader32 represents the PE32 format of the optional header.
type ImageOptionalHeader32 struct {
	Magic                       uint16                                     `json:"magic"`
	MajorLinkerVersion          uint8                                      `json:"major_linker_version"`
	MinorLinkerVersion          uint8                                      `json:"minor_linker_version"`
	SizeOfCode                  uint32                                     `json:"size_of_code"`
	SizeOfInitializedData       uint32                                     `json:"size_of_initialized_data"`
	SizeOfUninitializedData     uint32                                     `json:"size_of_uninitialized_data"`
	AddressOfEntryPoint         uint32                                     `json:"address_of_entrypoint"`
	BaseOfCode                  uint32                                     `json:"base_of_code"`
	BaseOfData                  uint32                                     `json:"base_of_data"`
	ImageBase                   uint32                                     `json:"image_base"`
	SectionAlignment            uint32                                     `json:"section_alignment"`
	FileAlignment                uint32                                    `json:"file_alignment"`
	MajorOperatingSystemVersion uint16                                     `json:"major_os_version"`
	MinorOperatingSystemVersion uint16                                     `json:"minor_os_version"`
	MajorImageVersion           uint16                                     `json:"major_image_version"`
	MinorImageVersion           uint16                                     `json:"minor_image_version"`
	MajorSubsystemVersion       uint16                                     `json:"major_subsystem_version"`
	MinorSubsystemVersion       uint16                                     `json:"minor_subsystem_version"`
	Win32VersionValue           uint32                                     `json:"win32_version_value"`
	SizeOfImage                 uint32                                     `json:"size_of_image"`
	SizeOfHeaders                uint32                                    `json:"size_of_headers"`
	CheckSum                    uint32                                     `json:"checksum"`
	Subsystem                   ImageOptionalHeaderSubsystemType           `json:"subsystem"`
	DllCharacteristics           ImageOptionalHeaderDllCharacteristicsType `json:"dll_characteristics"`
	SizeOfStackReserve           uint32                                    `json:"size_of_stack_reserve"`
	SizeOfStackCommit            uint32                                    `json:"size_of_stack_commit"`
	SizeOfHeapReserve            uint32                                    `json:"size_of_heap_reserve"`
	SizeOfHeapCommit             uint32                                    `json:"size_of_heap_commit"`
	LoaderFlags                  uint32                                    `json:"loader_flags"`
	NumberOfRvaAndSizes          uint32                                    `json:"number_of_rva_and_sizes"`
	DataDirectory                [16]DataDirectory                        `json:"data_directories"`
}

// ImageOptionalHeader64 represents the PE32+ format of the optional header.
type ImageOptionalHeader64 struct {
	Magic                       uint16                                     `json:"magic"`
	MajorLinkerVersion          uint8                                      `json:"major_linker_version"`
	MinorLinkerVersion          uint8                                      `json:"minor_linker_version"`
	SizeOfCode                  uint32                                     `json:"size_of_code"`
	SizeOfInitializedData       uint32                                     `json:"size_of_initialized_data"`
	SizeOfUninitializedData     uint32                                     `json:"size_of_uninitialized_data"`
	AddressOfEntryPoint         uint32                                     `json:"address_of_entrypoint"`
	BaseOfCode                  uint32                                     `json:"base_of_code"`
	ImageBase                   uint64                                     `json:"image_base"`
	SectionAlignment            uint32                                     `json:"section_alignment"`
	FileAlignment                uint32                                    `json:"file_alignment"`
	MajorOperatingSystemVersion uint16                                     `json:"major_os_version"`
	MinorOperatingSystemVersion uint16                                     `json:"minor_os_version"`
	MajorImageVersion           uint16                                     `json:"major_image_version"`
	MinorImageVersion           uint16                                     `json:"minor_image_version"`
	MajorSubsystemVersion       uint16                                     `json:"major_subsystem_version"`
	MinorSubsystemVersion       uint16                                     `json:"minor_subsystem_version"`
	Win32VersionValue           uint32                                     `json:"win32_version_value"`
	SizeOfImage                 uint32                                     `json:"size_of_image"`
	SizeOfHeaders                uint32                                    `json:"size_of_headers"`
	CheckSum                    uint32                                     `json:"checksum"`
	Subsystem                   ImageOptionalHeaderSubsystemType           `json:"subsystem"`
	DllCharacteristics           ImageOptionalHeaderDllCharacteristicsType `json:"dll_characteristics"`
	SizeOfStackReserve           uint64                                    `json:"size_of_stack_reserve"`
	SizeOfStackCommit            uint64                                    `json:"size_of_stack_commit"`
	SizeOfHeapReserve            uint64                                    `json:"size_of_heap_reserve"`
	SizeOfHeapCommit             uint64                                    `json:"size_of_heap_commit"`
	LoaderFlags                  uint32                                    `json:"loader_flags"`
	NumberOfRvaAndSizes          uint32                                    `json:"number_of_rva_and_sizes"`
	DataDirectory                [16]DataDirectory                        `json:"data_directories"`
}

// DataDirectory is one IMAGE_DATA_DIRECTORY entry: the RVA and size of a
// table or string the directory index describes.
type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

// parseNTHeader reads the NT header at e_lfanew. Per §4.2, a missing or
// malformed NT header is non-fatal: it is recorded as an anomaly and every
// query depending on it (NTHeader, DataDirectories, SectionHeaders, and all
// directory queries) reports absence, but Open still succeeds.
func (img *Image) parseNTHeader() error {
	ntHeaderOffset := img.dosHeader.AddressOfNewEXEHeader
	signature, err := img.ReadUint32(ntHeaderOffset)
	if err != nil {
		img.anomalies = append(img.anomalies, "NT header offset outside image")
		return nil
	}

	if signature != ImageNTSignature {
		img.anomalies = append(img.anomalies, "PE signature not found")
		return nil
	}
	img.ntHeader.Signature = signature

	fileHeaderSize := uint32(binary.Size(img.ntHeader.FileHeader))
	fileHeaderOffset := ntHeaderOffset + 4
	if err := img.structUnpack(&img.ntHeader.FileHeader, fileHeaderOffset, fileHeaderSize); err != nil {
		img.anomalies = append(img.anomalies, "COFF file header truncated")
		return nil
	}

	oh32 := ImageOptionalHeader32{}
	oh64 := ImageOptionalHeader64{}

	optHeaderOffset := ntHeaderOffset + fileHeaderSize + 4
	magic, err := img.ReadUint16(optHeaderOffset)
	if err != nil {
		img.anomalies = append(img.anomalies, "optional header truncated")
		return nil
	}

	switch magic {
	case ImageNtOptionalHeader64Magic:
		size := uint32(binary.Size(oh64))
		if err := img.structUnpack(&oh64, optHeaderOffset, size); err != nil {
			img.anomalies = append(img.anomalies, "optional header (PE32+) truncated")
			return nil
		}
		img.is64 = true
		img.width = WidthPE32Plus
		img.ntHeader.OptionalHeader = oh64
	case ImageNtOptionalHeader32Magic:
		size := uint32(binary.Size(oh32))
		if err := img.structUnpack(&oh32, optHeaderOffset, size); err != nil {
			img.anomalies = append(img.anomalies, "optional header (PE32) truncated")
			return nil
		}
		img.is32 = true
		img.width = WidthPE32
		img.ntHeader.OptionalHeader = oh32
	case ImageROMOptionalHeaderMagic:
		img.width = WidthROM
		img.anomalies = append(img.anomalies, "ROM image, optional header not parsed")
		return nil
	default:
		img.anomalies = append(img.anomalies, "unrecognized optional header magic")
		return nil
	}

	if (img.is64 && oh64.ImageBase%0x10000 != 0) || (img.is32 && oh32.ImageBase%0x10000 != 0) {
		img.anomalies = append(img.anomalies, "image base not aligned to 64K")
	}
	if (img.is32 && oh32.ImageBase+oh32.SizeOfImage >= 0x80000000) ||
		(img.is64 && oh64.ImageBase+uint64(oh64.SizeOfImage) >= 0xffff080000000000) {
		img.anomalies = append(img.anomalies, "image base plus size of image overflows")
	}

	img.hasNT = true
	return nil
}

// dataDirectory returns the entry at idx, or ok=false when the directory
// array is shorter than idx+1 entries (per the Open Question decision in
// DESIGN.md, callers never see more than maxDataDirectories regardless of
// NumberOfRvaAndSizes).
func (img *Image) dataDirectory(idx ImageDirectoryEntry) (DataDirectory, bool) {
	if !img.hasNT {
		return DataDirectory{}, false
	}
	n := uint32(maxDataDirectories)
	if img.is64 {
		if n > img.ntHeader.OptionalHeader.(ImageOptionalHeader64).NumberOfRvaAndSizes {
			n = img.ntHeader.OptionalHeader.(ImageOptionalHeader64).NumberOfRvaAndSizes
		}
	} else {
		if n > img.ntHeader.OptionalHeader.(ImageOptionalHeader32).NumberOfRvaAndSizes {
			n = img.ntHeader.OptionalHeader.(ImageOptionalHeader32).NumberOfRvaAndSizes
		}
	}
	if uint32(idx) >= n || uint32(idx) >= 16 {
		return DataDirectory{}, false
	}
	var dd DataDirectory
	if img.is64 {
		dd = img.ntHeader.OptionalHeader.(ImageOptionalHeader64).DataDirectory[idx]
	} else {
		dd = img.ntHeader.OptionalHeader.(ImageOptionalHeader32).DataDirectory[idx]
	}
	if dd.VirtualAddress == 0 && dd.Size == 0 {
		return dd, false
	}
	return dd, true
}
