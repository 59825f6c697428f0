package pe

import (
	"bytes"
	"encoding/binary"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// FileAlignmentHardcodedValue is the value PointerToRawData must be at
// least equal to, or it is rounded down to zero.
const FileAlignmentHardcodedValue = 0x200

// isSafe reports whether addr lies within [0, img.size), or [0, img.size]
// when allowBoundary is set (a one-past-the-end address is valid as the
// endpoint of an empty range).
func (img *Image) isSafe(addr uint32, allowBoundary bool) bool {
	if allowBoundary {
		return addr <= img.size
	}
	return addr < img.size
}

// sumOverflows reports whether a+b wraps in unsigned 32-bit arithmetic.
func sumOverflows(a, b uint32) bool {
	return a+b < a
}

// getSectionByRva returns the section whose virtual extent covers rva.
func (img *Image) getSectionByRva(rva uint32) *Section {
	for i := range img.sections {
		if img.sections[i].Contains(rva, img) {
			return &img.sections[i]
		}
	}
	return nil
}

func (img *Image) getSectionByOffset(offset uint32) *Section {
	for i := range img.sections {
		s := &img.sections[i]
		if s.Header.PointerToRawData == 0 {
			continue
		}
		adjusted := img.adjustFileAlignment(s.Header.PointerToRawData)
		if adjusted <= offset && offset < adjusted+s.Header.SizeOfRawData {
			return s
		}
	}
	return nil
}

// rvaToPointer resolves rva to a file offset through the section table,
// returning ok=false (a null sentinel) when the result would read outside
// the mapped extent.
func (img *Image) rvaToPointer(rva uint32) (uint32, bool) {
	off := img.GetOffsetFromRva(rva)
	if off == ^uint32(0) || !img.isSafe(off, true) {
		return 0, false
	}
	return off, true
}

// pointerToOffset validates p against the mapped extent and returns it
// unchanged — the core never relocates against a preferred load base for
// on-disk reads, so "pointer" and "file offset" coincide once resolved.
func (img *Image) pointerToOffset(p uint32) (uint32, bool) {
	if !img.isSafe(p, true) {
		return 0, false
	}
	return p, true
}

// GetOffsetFromRva translates an RVA to a file offset using the section
// table, falling back to an identity mapping for RVAs inside the headers
// (which precede the first section).
func (img *Image) GetOffsetFromRva(rva uint32) uint32 {
	section := img.getSectionByRva(rva)
	if section == nil {
		if rva < uint32(len(img.data)) {
			return rva
		}
		return ^uint32(0)
	}
	sectionAlignment := img.adjustSectionAlignment(section.Header.VirtualAddress)
	fileAlignment := img.adjustFileAlignment(section.Header.PointerToRawData)
	return rva - sectionAlignment + fileAlignment
}

// GetRVAFromOffset is the inverse of GetOffsetFromRva.
func (img *Image) GetRVAFromOffset(offset uint32) uint32 {
	section := img.getSectionByOffset(offset)
	if section == nil {
		if len(img.sections) == 0 {
			return offset
		}
		minAddr := ^uint32(0)
		for i := range img.sections {
			va := img.adjustSectionAlignment(img.sections[i].Header.VirtualAddress)
			if va < minAddr {
				minAddr = va
			}
		}
		if offset < minAddr {
			return offset
		}
		img.log.Warn("data at offset can't be fetched, corrupt header")
		return ^uint32(0)
	}
	sectionAlignment := img.adjustSectionAlignment(section.Header.VirtualAddress)
	fileAlignment := img.adjustFileAlignment(section.Header.PointerToRawData)
	return offset - fileAlignment + sectionAlignment
}

func (img *Image) adjustFileAlignment(va uint32) uint32 {
	var fileAlignment uint32
	if img.is64 {
		fileAlignment = img.ntHeader.OptionalHeader.(ImageOptionalHeader64).FileAlignment
	} else {
		fileAlignment = img.ntHeader.OptionalHeader.(ImageOptionalHeader32).FileAlignment
	}
	if fileAlignment < FileAlignmentHardcodedValue {
		return va
	}
	return (va / 0x200) * 0x200
}

func (img *Image) adjustSectionAlignment(va uint32) uint32 {
	var fileAlignment, sectionAlignment uint32
	if img.is64 {
		oh := img.ntHeader.OptionalHeader.(ImageOptionalHeader64)
		fileAlignment, sectionAlignment = oh.FileAlignment, oh.SectionAlignment
	} else {
		oh := img.ntHeader.OptionalHeader.(ImageOptionalHeader32)
		fileAlignment, sectionAlignment = oh.FileAlignment, oh.SectionAlignment
	}
	if sectionAlignment < 0x1000 {
		sectionAlignment = fileAlignment
	}
	if sectionAlignment != 0 && va%sectionAlignment != 0 {
		return sectionAlignment * (va / sectionAlignment)
	}
	return va
}

// getStringAtRVA returns a null-terminated ASCII string at rva, bounded at
// maxLen bytes.
func (img *Image) getStringAtRVA(rva, maxLen uint32) string {
	if rva == 0 {
		return ""
	}
	section := img.getSectionByRva(rva)
	if section == nil {
		if rva > img.size {
			return ""
		}
		end := rva + maxLen
		if end > img.size || end < rva {
			end = img.size
		}
		return string(img.GetStringFromData(0, img.data[rva:end]))
	}
	return string(img.GetStringFromData(0, section.Data(rva, maxLen, img)))
}

// readUnicodeStringAtRVA reads a little-endian UTF-16 byte-oriented string
// (one byte per code unit, matching the teacher's conservative decode) up
// to maxLength bytes or the first zero byte.
func (img *Image) readUnicodeStringAtRVA(rva, maxLength uint32) string {
	var b strings.Builder
	offset := img.GetOffsetFromRva(rva)
	for i := uint32(0); i < maxLength; i++ {
		if offset+i >= img.size || img.data[offset+i] == 0 {
			break
		}
		b.WriteByte(img.data[offset+i])
	}
	return b.String()
}

// GetStringFromData returns the ASCII string starting at offset within
// data, up to the first null byte or the end of data.
func (img *Image) GetStringFromData(offset uint32, data []byte) []byte {
	dataSize := uint32(len(data))
	if dataSize == 0 || offset > dataSize {
		return nil
	}
	end := offset
	for end < dataSize && data[end] != 0 {
		end++
	}
	return data[offset:end]
}

// GetData returns length bytes at rva, resolving through the section
// table or, absent a containing section, the raw header/data slices.
func (img *Image) GetData(rva, length uint32) ([]byte, error) {
	section := img.getSectionByRva(rva)
	if section == nil {
		if rva < uint32(len(img.header)) {
			end := rva + length
			if length == 0 || end < rva || end > uint32(len(img.header)) {
				end = uint32(len(img.header))
			}
			return img.header[rva:end], nil
		}
		if rva < uint32(len(img.data)) {
			end := rva + length
			if length == 0 || end < rva || end > uint32(len(img.data)) {
				end = uint32(len(img.data))
			}
			return img.data[rva:end], nil
		}
		return nil, ErrOutsideBoundary
	}
	return section.Data(rva, length, img), nil
}

// ReadUint64 reads a little-endian uint64 at offset.
func (img *Image) ReadUint64(offset uint32) (uint64, error) {
	if offset+8 > img.size || offset+8 < offset {
		return 0, ErrOutsideBoundary
	}
	return binary.LittleEndian.Uint64(img.data[offset:]), nil
}

// ReadUint32 reads a little-endian uint32 at offset.
func (img *Image) ReadUint32(offset uint32) (uint32, error) {
	if img.size < 4 || offset > img.size-4 {
		return 0, ErrOutsideBoundary
	}
	return binary.LittleEndian.Uint32(img.data[offset:]), nil
}

// ReadUint16 reads a little-endian uint16 at offset.
func (img *Image) ReadUint16(offset uint32) (uint16, error) {
	if img.size < 2 || offset > img.size-2 {
		return 0, ErrOutsideBoundary
	}
	return binary.LittleEndian.Uint16(img.data[offset:]), nil
}

// ReadUint8 reads a single byte at offset.
func (img *Image) ReadUint8(offset uint32) (uint8, error) {
	if offset+1 > img.size || offset+1 < offset {
		return 0, ErrOutsideBoundary
	}
	return img.data[offset], nil
}

// structUnpack little-endian decodes size bytes at offset into iface,
// rejecting overflowing or out-of-range reads before touching the buffer.
func (img *Image) structUnpack(iface interface{}, offset, size uint32) error {
	totalSize := offset + size
	if sumOverflows(offset, size) {
		return ErrOutsideBoundary
	}
	if offset >= img.size || totalSize > img.size {
		return ErrOutsideBoundary
	}
	buf := bytes.NewReader(img.data[offset : offset+size])
	return binary.Read(buf, binary.LittleEndian, iface)
}

// ReadBytesAtOffset returns a size-byte slice at offset.
func (img *Image) ReadBytesAtOffset(offset, size uint32) ([]byte, error) {
	if sumOverflows(offset, size) {
		return nil, ErrOutsideBoundary
	}
	totalSize := offset + size
	if offset >= img.size || totalSize > img.size {
		return nil, ErrOutsideBoundary
	}
	return img.data[offset : offset+size], nil
}

// DecodeUTF16String decodes a null-terminated little-endian UTF-16 byte
// slice. The resource parser does not call it; resource names are read
// with readUnicodeStringAtRVA.
func DecodeUTF16String(b []byte) (string, error) {
	n := bytes.Index(b, []byte{0, 0})
	if n <= 0 {
		return "", nil
	}
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
	s, err := decoder.Bytes(b[0 : n+1])
	if err != nil {
		return "", err
	}
	return string(s), nil
}

func stringInSlice(a string, list []string) bool {
	for _, b := range list {
		if b == a {
			return true
		}
	}
	return false
}

func intInSlice(a uint32, list []uint32) bool {
	for _, b := range list {
		if b == a {
			return true
		}
	}
	return false
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// IsDriver reports whether the image looks like a Windows kernel driver.
func (img *Image) IsDriver() bool {
	if len(img.imports) == 0 {
		return false
	}
	systemDLLs := []string{"ntoskrnl.exe", "hal.dll", "ndis.sys", "bootvid.dll", "kdcom.dll"}
	for _, m := range img.imports {
		if stringInSlice(strings.ToLower(m.Name), systemDLLs) {
			return true
		}
	}
	var subsystem uint16
	if img.is64 {
		subsystem = img.ntHeader.OptionalHeader.(ImageOptionalHeader64).Subsystem
	} else {
		subsystem = img.ntHeader.OptionalHeader.(ImageOptionalHeader32).Subsystem
	}
	driverSections := []string{"page", "paged", "nonpage", "init"}
	for i := range img.sections {
		name := strings.ToLower(img.sections[i].Name)
		if stringInSlice(name, driverSections) &&
			(subsystem == ImageSubsystemNativeWindows || subsystem == ImageSubsystemNative) {
			return true
		}
	}
	return false
}

// IsDLL reports whether the DLL characteristic bit is set.
func (img *Image) IsDLL() bool {
	return img.ntHeader.FileHeader.Characteristics&ImageFileDLL != 0
}

// IsEXE reports whether the image is a standard executable: neither a DLL
// nor a driver, and flagged executable.
func (img *Image) IsEXE() bool {
	if img.IsDLL() || img.IsDriver() {
		return false
	}
	return img.ntHeader.FileHeader.Characteristics&ImageFileExecutableImage != 0
}
