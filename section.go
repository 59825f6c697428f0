package pe

import (
	"encoding/binary"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Section characteristics bitmask (IMAGE_SCN_*).
const (
	ImageScnTypeNoPad             = 0x00000008
	ImageScnCntCode                = 0x00000020
	ImageScnCntInitializedData     = 0x00000040
	ImageScnCntUninitializedData   = 0x00000080
	ImageScnLnkOther               = 0x00000100
	ImageScnLnkInfo                = 0x00000200
	ImageScnLnkRemove              = 0x00000800
	ImageScnLnkComdat              = 0x00001000
	ImageScnGpRel                  = 0x00008000
	ImageScnMemPurgeable           = 0x00020000
	ImageScnMemLocked              = 0x00040000
	ImageScnMemPreload             = 0x00080000
	ImageScnAlign1Bytes            = 0x00100000
	ImageScnAlign2Bytes            = 0x00200000
	ImageScnAlign4Bytes            = 0x00300000
	ImageScnAlign8Bytes            = 0x00400000
	ImageScnAlign16Bytes           = 0x00500000
	ImageScnAlign32Bytes           = 0x00600000
	ImageScnAlign64Bytes           = 0x00700000
	ImageScnAlign128Bytes          = 0x00800000
	ImageScnAlign256Bytes          = 0x00900000
	ImageScnAlign512Bytes          = 0x00A00000
	ImageScnAlign1024Bytes         = 0x00B00000
	ImageScnAlign2048Bytes         = 0x00C00000
	ImageScnAlign4096Bytes         = 0x00D00000
	ImageScnAlign8192Bytes         = 0x00E00000
	ImageScnLnkMRelocOvfl          = 0x01000000
	ImageScnMemDiscardable         = 0x02000000
	ImageScnMemNotCached           = 0x04000000
	ImageScnMemNotPaged            = 0x08000000
	ImageScnMemShared              = 0x10000000
	ImageScnMemExecute             = 0x20000000
	ImageScnMemRead                = 0x40000000
	ImageScnMemWrite               = 0x80000000
)

// coffSymbolEntrySize is the fixed size of one COFF symbol table record;
// the string table that holds long section names follows immediately
// after NumberOfSymbols records.
const coffSymbolEntrySize = 18

// SectionHeader is the 40-byte on-disk IMAGE_SECTION_HEADER.
type SectionHeader struct {
	Name                 [8]uint8
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLineNumbers uint32
	NumberOfRelocations  uint16
	NumberOfLineNumbers  uint16
	Characteristics      uint32
}

// Section wraps a section header with its resolved long name and, when
// Options.SectionEntropy is set, its Shannon entropy.
type Section struct {
	Header  SectionHeader
	Name    string
	Entropy float64 `json:",omitempty"`
}

// byVirtualAddress sorts sections by VirtualAddress, exposing overlaps in
// badly constructed images.
type byVirtualAddress []Section

func (s byVirtualAddress) Len() int           { return len(s) }
func (s byVirtualAddress) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s byVirtualAddress) Less(i, j int) bool { return s[i].Header.VirtualAddress < s[j].Header.VirtualAddress }

// resolveSectionName expands an 8-byte raw name field, following the `/N`
// convention into the COFF string table when the name doesn't fit.
func (img *Image) resolveSectionName(raw [8]uint8) string {
	name := strings.TrimRight(string(raw[:]), "\x00")
	if !strings.HasPrefix(name, "/") {
		return name
	}
	n, err := strconv.ParseUint(name[1:], 10, 32)
	if err != nil {
		return name
	}
	stringTableOffset := img.ntHeader.FileHeader.PointerToSymbolTable +
		img.ntHeader.FileHeader.NumberOfSymbols*coffSymbolEntrySize
	long := img.getStringAtRVA(uint32(stringTableOffset)+uint32(n), maxPathDefault)
	if long == "" {
		return name
	}
	return long
}

// parseSectionHeader parses the section table immediately following the
// optional header. A section with 3 or more structural anomalies is dropped
// from the list; the remaining sections are still parsed.
func (img *Image) parseSectionHeader() error {
	optionalHeaderOffset := img.dosHeader.AddressOfNewEXEHeader + 4 +
		uint32(binary.Size(img.ntHeader.FileHeader))
	offset := optionalHeaderOffset + uint32(img.ntHeader.FileHeader.SizeOfOptionalHeader)

	const maxErr = 3
	secHeader := SectionHeader{}
	numberOfSections := img.ntHeader.FileHeader.NumberOfSections
	secHeaderSize := uint32(binary.Size(secHeader))

	for i := uint16(0); i < numberOfSections; i++ {
		if err := img.structUnpack(&secHeader, offset, secHeaderSize); err != nil {
			break
		}

		if secEnd := int64(secHeader.PointerToRawData) + int64(secHeader.SizeOfRawData); secEnd > img.overlayOffset {
			img.overlayOffset = secEnd
		}

		countErr := 0
		sec := Section{Header: secHeader, Name: img.resolveSectionName(secHeader.Name)}

		if (SectionHeader{}) == secHeader {
			img.anomalies = append(img.anomalies, "section `"+sec.Name+"` is all zero")
			countErr++
		}
		if secHeader.SizeOfRawData+secHeader.PointerToRawData > img.size {
			img.anomalies = append(img.anomalies, "section `"+sec.Name+"` SizeOfRawData is larger than file")
			countErr++
		}
		if img.adjustFileAlignment(secHeader.PointerToRawData) > img.size {
			img.anomalies = append(img.anomalies, "section `"+sec.Name+"` PointerToRawData points beyond EOF")
			countErr++
		}
		if secHeader.VirtualSize > 0x10000000 {
			img.anomalies = append(img.anomalies, "section `"+sec.Name+"` VirtualSize is larger than 256MiB")
			countErr++
		}
		if img.adjustSectionAlignment(secHeader.VirtualAddress) > 0x10000000 {
			img.anomalies = append(img.anomalies, "section `"+sec.Name+"` VirtualAddress is beyond 0x10000000")
			countErr++
		}

		var fileAlignment uint32
		if img.is64 {
			fileAlignment = img.ntHeader.OptionalHeader.(ImageOptionalHeader64).FileAlignment
		} else {
			fileAlignment = img.ntHeader.OptionalHeader.(ImageOptionalHeader32).FileAlignment
		}
		if fileAlignment != 0 && secHeader.PointerToRawData%fileAlignment != 0 {
			img.anomalies = append(img.anomalies, "section `"+sec.Name+"` PointerToRawData not aligned to FileAlignment")
			countErr++
		}

		if countErr >= maxErr {
			offset += secHeaderSize
			continue
		}

		if img.opts.SectionEntropy {
			sec.Entropy = sec.CalculateEntropy(img)
		}
		img.sections = append(img.sections, sec)
		offset += secHeaderSize
	}

	sort.Sort(byVirtualAddress(img.sections))

	var rawDataPointers []uint32
	for _, sec := range img.sections {
		if sec.Header.PointerToRawData > 0 {
			rawDataPointers = append(rawDataPointers, img.adjustFileAlignment(sec.Header.PointerToRawData))
		}
	}
	var lowestSectionOffset uint32
	for _, p := range rawDataPointers {
		if lowestSectionOffset == 0 || p < lowestSectionOffset {
			lowestSectionOffset = p
		}
	}

	headerEnd := offset
	if numberOfSections > 0 && len(img.sections) > 0 {
		headerEnd = optionalHeaderOffset + uint32(img.ntHeader.FileHeader.SizeOfOptionalHeader) + secHeaderSize*uint32(numberOfSections)
	}
	if lowestSectionOffset == 0 || lowestSectionOffset < headerEnd {
		if headerEnd <= img.size {
			img.header = img.data[:headerEnd]
		}
	} else if lowestSectionOffset <= img.size {
		img.header = img.data[:lowestSectionOffset]
	}

	img.hasSections = true
	return nil
}

// NextHeaderAddr returns the VirtualAddress of the section immediately
// following this one in the (VirtualAddress-sorted) section list.
func (section *Section) NextHeaderAddr(img *Image) uint32 {
	for i := range img.sections {
		if &img.sections[i] == section {
			if i == len(img.sections)-1 {
				return 0
			}
			return img.sections[i+1].Header.VirtualAddress
		}
	}
	return 0
}

// Contains reports whether rva falls within this section's virtual extent.
func (section *Section) Contains(rva uint32, img *Image) bool {
	var size uint32
	adjustedPointer := img.adjustFileAlignment(section.Header.PointerToRawData)
	if uint32(len(img.data))-adjustedPointer < section.Header.SizeOfRawData {
		size = section.Header.VirtualSize
	} else {
		size = section.Header.SizeOfRawData
		if section.Header.VirtualSize > size {
			size = section.Header.VirtualSize
		}
	}
	vaAdj := img.adjustSectionAlignment(section.Header.VirtualAddress)

	next := section.NextHeaderAddr(img)
	if next != 0 && next > section.Header.VirtualAddress && vaAdj+size > next {
		size = next - vaAdj
	}

	return vaAdj <= rva && rva < vaAdj+size
}

// Data returns a slice of the section's raw bytes starting at the RVA
// start, length bytes long (or to the end of the raw data when length is 0).
func (section *Section) Data(start, length uint32, img *Image) []byte {
	pointerToRawDataAdj := img.adjustFileAlignment(section.Header.PointerToRawData)
	virtualAddressAdj := img.adjustSectionAlignment(section.Header.VirtualAddress)

	var offset uint32
	if start == 0 {
		offset = pointerToRawDataAdj
	} else {
		offset = (start - virtualAddressAdj) + pointerToRawDataAdj
	}
	if offset > img.size {
		return nil
	}

	var end uint32
	if length != 0 {
		end = offset + length
	} else {
		end = offset + section.Header.SizeOfRawData
	}
	if end > section.Header.PointerToRawData+section.Header.SizeOfRawData &&
		section.Header.PointerToRawData+section.Header.SizeOfRawData > offset {
		end = section.Header.PointerToRawData + section.Header.SizeOfRawData
	}
	if end > img.size {
		end = img.size
	}
	return img.data[offset:end]
}

// CalculateEntropy returns the Shannon entropy, in bits per byte, of the
// section's raw data.
func (section *Section) CalculateEntropy(img *Image) float64 {
	data := section.Data(0, 0, img)
	if len(data) == 0 {
		return 0.0
	}
	var frequencies [256]uint64
	for _, v := range data {
		frequencies[v]++
	}
	size := float64(len(data))
	var entropy float64
	for _, c := range frequencies {
		if c > 0 {
			freq := float64(c) / size
			entropy += freq * math.Log2(freq)
		}
	}
	return -entropy
}
