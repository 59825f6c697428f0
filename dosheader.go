package pe

import "encoding/binary"

// DOSHeader is the 64-byte MS-DOS stub header every PE image begins with.
type DOSHeader struct {
	Magic                    uint16
	BytesOnLastPageOfFile    uint16
	PagesInFile              uint16
	Relocations              uint16
	SizeOfHeader             uint16
	MinExtraParagraphsNeeded uint16
	MaxExtraParagraphsNeeded uint16
	InitialSS                uint16
	InitialSP                uint16
	Checksum                 uint16
	InitialIP                uint16
	InitialCS                uint16
	AddressOfRelocationTable uint16
	OverlayNumber            uint16
	ReservedWords1           [4]uint16
	OEMIdentifier            uint16
	OEMInformation           uint16
	ReservedWords2           [10]uint16

	// AddressOfNewEXEHeader is e_lfanew, the file offset of the NT header.
	AddressOfNewEXEHeader uint32
}

// parseDOSHeader reads the DOS stub at offset 0 and validates its magic and
// e_lfanew field. Once a 64-byte buffer has been confirmed by
// Open/OpenBytes, its only error is ErrNoDOSSignature when the magic is
// neither "MZ" nor "ZM" — any other structural error is recorded
// as an anomaly rather than surfaced as an error, since the DOS header
// must remain queryable even when the NT header cannot be located.
func (img *Image) parseDOSHeader() error {
	size := uint32(binary.Size(img.dosHeader))
	if err := img.structUnpack(&img.dosHeader, 0, size); err != nil {
		return err
	}

	if img.dosHeader.Magic != ImageDOSSignature && img.dosHeader.Magic != ImageDOSZMSignature {
		return ErrNoDOSSignature
	}

	img.hasDOS = true

	if img.dosHeader.AddressOfNewEXEHeader < 4 || img.dosHeader.AddressOfNewEXEHeader > img.size {
		img.anomalies = append(img.anomalies, "e_lfanew out of bounds")
		return nil
	}
	if img.dosHeader.AddressOfNewEXEHeader <= 0x3c {
		img.anomalies = append(img.anomalies, "NT header overlaps DOS header")
	}
	return nil
}
