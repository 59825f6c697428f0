package pe

import "encoding/binary"

// maxBoundImportNameLength bounds a single module-name read, to prevent
// loading unbounded amounts of data from a corrupt offset.
const maxBoundImportNameLength = uint32(0x100)

// ImageBoundImportDescriptor is one IMAGE_BOUND_IMPORT_DESCRIPTOR entry.
type ImageBoundImportDescriptor struct {
	TimeDateStamp               uint32 `json:"time_date_stamp"`
	OffsetModuleName            uint16 `json:"offset_module_name"`
	NumberOfModuleForwarderRefs uint16 `json:"number_of_module_forwarder_refs"`
}

// ImageBoundForwardedRef is one IMAGE_BOUND_FORWARDER_REF entry.
type ImageBoundForwardedRef struct {
	TimeDateStamp    uint32 `json:"time_date_stamp"`
	OffsetModuleName uint16 `json:"offset_module_name"`
	Reserved         uint16 `json:"reserved"`
}

// BoundForwarderRef is a forwarder reference plus its resolved module name.
type BoundForwarderRef struct {
	Struct ImageBoundForwardedRef `json:"struct"`
	Name   string                 `json:"name"`
}

// BoundImportModule is a bound import descriptor plus its resolved module
// name and forwarder references.
type BoundImportModule struct {
	Struct        ImageBoundImportDescriptor `json:"struct"`
	Name          string                     `json:"name"`
	ForwardedRefs []BoundForwarderRef        `json:"forwarded_refs"`
}

// parseBoundImportDirectory walks the bound import descriptor array,
// terminating when TimeDateStamp == 0 per §4.13 (equivalent in practice to
// the descriptor being entirely zero, since a real binding always stamps
// a module name offset too).
func (img *Image) parseBoundImportDirectory(rva, size uint32) error {
	start := rva

	for {
		bndDesc := ImageBoundImportDescriptor{}
		bndDescSize := uint32(binary.Size(bndDesc))
		if err := img.structUnpack(&bndDesc, rva, bndDescSize); err != nil {
			return err
		}
		if bndDesc.TimeDateStamp == 0 {
			break
		}
		rva += bndDescSize

		fileOffset := img.GetOffsetFromRva(rva)
		safetyBoundary := img.boundImportSafetyBoundary(rva, fileOffset)

		bndFrwdRefSize := uint32(binary.Size(ImageBoundForwardedRef{}))
		count := uint32(bndDesc.NumberOfModuleForwarderRefs)
		if bndFrwdRefSize > 0 && count > safetyBoundary/bndFrwdRefSize {
			count = safetyBoundary / bndFrwdRefSize
		}

		var forwarderRefs []BoundForwarderRef
		for i := uint32(0); i < count; i++ {
			bndFrwdRef := ImageBoundForwardedRef{}
			if err := img.structUnpack(&bndFrwdRef, rva, bndFrwdRefSize); err != nil {
				return err
			}
			rva += bndFrwdRefSize

			name := img.boundImportName(start + uint32(bndFrwdRef.OffsetModuleName))
			if name != "" && !isPrintableName(name, 256) {
				break
			}
			forwarderRefs = append(forwarderRefs, BoundForwarderRef{Struct: bndFrwdRef, Name: name})
		}

		name := img.boundImportName(start + uint32(bndDesc.OffsetModuleName))
		if name != "" && !isPrintableName(name, 256) {
			break
		}

		img.boundImports = append(img.boundImports, BoundImportModule{
			Struct:        bndDesc,
			Name:          name,
			ForwardedRefs: forwarderRefs,
		})

		if uint32(len(img.boundImports)) >= img.opts.MaxModules {
			break
		}
	}

	img.hasBoundImport = len(img.boundImports) > 0
	return nil
}

func (img *Image) boundImportName(offset uint32) string {
	end := offset + maxBoundImportNameLength
	if end > img.size {
		end = img.size
	}
	if offset >= end {
		return ""
	}
	return string(img.GetStringFromData(0, img.data[offset:end]))
}

// boundImportSafetyBoundary bounds how many forwarder refs can possibly fit
// before running into the next section or EOF, defending against a
// NumberOfModuleForwarderRefs value inflated past what the file contains.
func (img *Image) boundImportSafetyBoundary(rva, fileOffset uint32) uint32 {
	section := img.getSectionByRva(rva)
	if section != nil {
		sectionLen := uint32(len(section.Data(0, 0, img)))
		return (section.Header.PointerToRawData + sectionLen) - fileOffset
	}

	var firstAfter uint32
	for i := range img.sections {
		p := img.sections[i].Header.PointerToRawData
		if p > fileOffset && (firstAfter == 0 || p < firstAfter) {
			firstAfter = p
		}
	}
	if firstAfter == 0 {
		return img.size - fileOffset
	}
	return firstAfter - fileOffset
}
