package pe

import (
	"encoding/binary"
	"fmt"
)

// Debug directory entry Type values.
const (
	ImageDebugTypeUnknown     = 0
	ImageDebugTypeCOFF        = 1
	ImageDebugTypeCodeView    = 2
	ImageDebugTypeFPO         = 3
	ImageDebugTypeMisc        = 4
	ImageDebugTypeException   = 5
	ImageDebugTypeFixup       = 6
	ImageDebugTypeOMAPToSrc   = 7
	ImageDebugTypeOMAPFromSrc = 8
	ImageDebugTypeBorland     = 9
	ImageDebugTypeReserved    = 10
	ImageDebugTypeCLSID       = 11
	ImageDebugTypeRepro       = 16
)

// CodeView signatures.
const (
	CVSignatureRSDS = 0x53445352
	CVSignatureNB10 = 0x3031424e
)

// ImageDebugDirectoryType is the Type field of a debug directory entry.
type ImageDebugDirectoryType uint32

// ImageDebugDirectory is the IMAGE_DEBUG_DIRECTORY structure: an array of
// these, located and sized by the Optional Header, indicates what form of
// debug information is present and where.
type ImageDebugDirectory struct {
	Characteristics  uint32                  `json:"characteristics"`
	TimeDateStamp    uint32                  `json:"time_date_stamp"`
	MajorVersion     uint16                  `json:"major_version"`
	MinorVersion     uint16                  `json:"minor_version"`
	Type             ImageDebugDirectoryType `json:"type"`
	SizeOfData       uint32                  `json:"size_of_data"`
	AddressOfRawData uint32                  `json:"address_of_raw_data"`
	PointerToRawData uint32                  `json:"pointer_to_raw_data"`
}

// DebugEntry is a debug directory entry plus its decoded CodeView info, when
// the entry is of CodeView type and the signature is recognized.
type DebugEntry struct {
	Struct ImageDebugDirectory `json:"struct"`
	Info   interface{}         `json:"info,omitempty"`
}

// GUID is a 128-bit value: one group of 8 hex digits, three groups of 4,
// and one group of 12.
type GUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

func (g GUID) String() string {
	return fmt.Sprintf("{%08X-%04X-%04X-%04X-%X}", g.Data1, g.Data2, g.Data3, g.Data4[0:2], g.Data4[2:])
}

// CVInfoPDB70 is the CodeView data block of a PDB 7.0 file, signature RSDS.
// The PDB path sits 24 bytes into the CodeView block, after the signature,
// GUID and age.
type CVInfoPDB70 struct {
	CVSignature uint32 `json:"cv_signature"`
	Signature   GUID   `json:"signature"`
	Age         uint32 `json:"age"`
	PDBFileName string `json:"pdb_file_name"`
}

// CVInfoPDB20 is the CodeView data block of a PDB 2.0 file, signature NB10.
// The PDB path sits 16 bytes into the CodeView block.
type CVInfoPDB20 struct {
	Signature   uint32 `json:"signature"`
	Offset      uint32 `json:"offset"`
	TimeStamp   uint32 `json:"time_stamp"`
	Age         uint32 `json:"age"`
	PDBFileName string `json:"pdb_file_name"`
}

// parseDebugDirectory parses the Debug directory's array of entries,
// decoding the CodeView PDB-path payload per §4.11 when present.
func (img *Image) parseDebugDirectory(rva, size uint32) error {
	debugDir := ImageDebugDirectory{}
	debugDirSize := uint32(binary.Size(debugDir))
	if debugDirSize == 0 {
		return nil
	}
	debugDirsCount := size / debugDirSize

	var entries []DebugEntry
	for i := uint32(0); i < debugDirsCount; i++ {
		offset := img.GetOffsetFromRva(rva + debugDirSize*i)
		if err := img.structUnpack(&debugDir, offset, debugDirSize); err != nil {
			break
		}

		entry := DebugEntry{Struct: debugDir}
		if debugDir.Type == ImageDebugTypeCodeView {
			entry.Info = img.parseCodeView(debugDir)
		}
		entries = append(entries, entry)
	}

	img.debugs = entries
	img.hasDebug = len(entries) > 0
	return nil
}

func (img *Image) parseCodeView(dir ImageDebugDirectory) interface{} {
	sig, err := img.ReadUint32(dir.PointerToRawData)
	if err != nil {
		return nil
	}

	switch sig {
	case CVSignatureRSDS:
		pdb := CVInfoPDB70{CVSignature: sig}
		offset := dir.PointerToRawData + 4

		guidSize := uint32(binary.Size(pdb.Signature))
		if err := img.structUnpack(&pdb.Signature, offset, guidSize); err != nil {
			return nil
		}
		offset += guidSize

		pdb.Age, err = img.ReadUint32(offset)
		if err != nil {
			return nil
		}
		offset += 4

		if dir.SizeOfData > 24 {
			nameLen := dir.SizeOfData - 24
			name, err := img.ReadBytesAtOffset(offset, nameLen)
			if err == nil {
				pdb.PDBFileName = string(img.GetStringFromData(0, name))
			}
		}
		return pdb

	case CVSignatureNB10:
		pdb := CVInfoPDB20{Signature: sig}
		offset := dir.PointerToRawData + 4

		var err error
		pdb.Offset, err = img.ReadUint32(offset)
		if err != nil {
			return nil
		}
		pdb.TimeStamp, err = img.ReadUint32(offset + 4)
		if err != nil {
			return nil
		}
		pdb.Age, err = img.ReadUint32(offset + 8)
		if err != nil {
			return nil
		}
		offset += 12

		if dir.SizeOfData > 16 {
			nameLen := dir.SizeOfData - 16
			name, err := img.ReadBytesAtOffset(offset, nameLen)
			if err == nil {
				pdb.PDBFileName = string(img.GetStringFromData(0, name))
			}
		}
		return pdb
	}

	return nil
}
