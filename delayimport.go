package pe

import "encoding/binary"

// ImageDelayImportDescriptor is one IMAGE_DELAYLOAD_DESCRIPTOR entry. When
// Attributes is zero the RVAs below are actually virtual addresses (the
// "old" delay-import format predating IA-64 support); parseImports32/64
// handle that case the same way they do for ImageImportDescriptor.
type ImageDelayImportDescriptor struct {
	Attributes                 uint32 `json:"attributes"`
	Name                       uint32 `json:"name"`
	ModuleHandleRVA            uint32 `json:"module_handle_rva"`
	ImportAddressTableRVA      uint32 `json:"import_address_table_rva"`
	ImportNameTableRVA         uint32 `json:"import_name_table_rva"`
	BoundImportAddressTableRVA uint32 `json:"bound_import_address_table_rva"`
	UnloadInformationTableRVA  uint32 `json:"unload_information_table_rva"`
	TimeDateStamp              uint32 `json:"time_date_stamp"`
}

// DelayImportModule is one delay-loaded module: the descriptor, its name,
// and the functions pulled from its Import Name Table/Import Address Table
// pair (the same per-function shape Import() uses, so Bound/Unload data
// stays attached to the descriptor rather than duplicating the function
// list a third and fourth time).
type DelayImportModule struct {
	Struct    ImageDelayImportDescriptor `json:"struct"`
	Name      string                     `json:"name"`
	Functions []ImportFunction           `json:"functions"`
}

// parseDelayImportDirectory walks the delay-load descriptor array, which
// like the regular import table is terminated by an all-zero entry.
func (img *Image) parseDelayImportDirectory(rva, size uint32) error {
	for uint32(len(img.delayImports)) < img.opts.MaxModules {
		desc := ImageDelayImportDescriptor{}
		descSize := uint32(binary.Size(desc))
		fileOffset := img.GetOffsetFromRva(rva)
		if err := img.structUnpack(&desc, fileOffset, descSize); err != nil {
			return err
		}
		if desc == (ImageDelayImportDescriptor{}) {
			break
		}
		rva += descSize

		maxLen := img.size - fileOffset
		if rva > desc.ImportNameTableRVA || rva > desc.ImportAddressTableRVA {
			a, b := rva-desc.ImportNameTableRVA, rva-desc.ImportAddressTableRVA
			if b > a {
				a = b
			}
			maxLen = a
		}

		var functions []ImportFunction
		var err error
		if img.is64 {
			functions, err = img.parseImports64(&desc, maxLen)
		} else {
			functions, err = img.parseImports32(&desc, maxLen)
		}
		if err != nil {
			bothThunksZero := desc.ImportNameTableRVA == 0 && desc.ImportAddressTableRVA == 0
			if err != ErrDamagedImportTable || !bothThunksZero {
				img.log.Warnf("skipping delay-import module: %v", err)
				continue
			}
			functions = nil
		}

		name := img.getStringAtRVA(desc.Name, maxPathDefault)
		if !isPrintableName(name, maxPathDefault) {
			continue
		}

		img.delayImports = append(img.delayImports, DelayImportModule{
			Struct:    desc,
			Name:      name,
			Functions: functions,
		})
	}

	img.hasDelayImport = len(img.delayImports) > 0
	return nil
}
