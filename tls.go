package pe

import "encoding/binary"

// TLSDirectoryCharacteristicsType is the Characteristics field of a TLS
// directory; its low 4 bits (of the top byte) carry section-alignment info.
type TLSDirectoryCharacteristicsType uint32

// TLSDirectory is the TLS directory: its raw struct (ImageTLSDirectory32
// or ImageTLSDirectory64) plus the resolved callback-pointer array
// ([]uint32 or []uint64).
type TLSDirectory struct {
	Struct    interface{} `json:"struct"`
	Callbacks interface{} `json:"callbacks"`
}

// ImageTLSDirectory32 is the IMAGE_TLS_DIRECTORY32 structure, pointing to
// the Thread Local Storage initialization section.
type ImageTLSDirectory32 struct {
	StartAddressOfRawData uint32                          `json:"start_address_of_raw_data"`
	EndAddressOfRawData   uint32                          `json:"end_address_of_raw_data"`
	AddressOfIndex        uint32                          `json:"address_of_index"`
	AddressOfCallBacks    uint32                          `json:"address_of_callbacks"`
	SizeOfZeroFill        uint32                          `json:"size_of_zero_fill"`
	Characteristics       TLSDirectoryCharacteristicsType `json:"characteristics"`
}

// ImageTLSDirectory64 is the IMAGE_TLS_DIRECTORY64 structure.
type ImageTLSDirectory64 struct {
	StartAddressOfRawData uint64                          `json:"start_address_of_raw_data"`
	EndAddressOfRawData   uint64                          `json:"end_address_of_raw_data"`
	AddressOfIndex        uint64                          `json:"address_of_index"`
	AddressOfCallBacks    uint64                          `json:"address_of_callbacks"`
	SizeOfZeroFill        uint32                          `json:"size_of_zero_fill"`
	Characteristics       TLSDirectoryCharacteristicsType `json:"characteristics"`
}

// parseTLSDirectory parses the TLS directory and walks its null-terminated
// callback-pointer array, per §4.12.
func (img *Image) parseTLSDirectory(rva, size uint32) error {
	tls := TLSDirectory{}

	if img.is64 {
		tlsDir := ImageTLSDirectory64{}
		tlsSize := uint32(binary.Size(tlsDir))
		fileOffset := img.GetOffsetFromRva(rva)
		if err := img.structUnpack(&tlsDir, fileOffset, tlsSize); err != nil {
			return err
		}
		tls.Struct = tlsDir

		if tlsDir.AddressOfCallBacks != 0 {
			var callbacks []uint64
			rvaAddressOfCallBacks := uint32(tlsDir.AddressOfCallBacks -
				img.ntHeader.OptionalHeader.(ImageOptionalHeader64).ImageBase)
			offset := img.GetOffsetFromRva(rvaAddressOfCallBacks)
			for {
				c, err := img.ReadUint64(offset)
				if err != nil || c == 0 {
					break
				}
				callbacks = append(callbacks, c)
				offset += 8
			}
			tls.Callbacks = callbacks
		}
	} else {
		tlsDir := ImageTLSDirectory32{}
		tlsSize := uint32(binary.Size(tlsDir))
		fileOffset := img.GetOffsetFromRva(rva)
		if err := img.structUnpack(&tlsDir, fileOffset, tlsSize); err != nil {
			return err
		}
		tls.Struct = tlsDir

		if tlsDir.AddressOfCallBacks != 0 {
			var callbacks []uint32
			rvaAddressOfCallBacks := tlsDir.AddressOfCallBacks -
				img.ntHeader.OptionalHeader.(ImageOptionalHeader32).ImageBase
			offset := img.GetOffsetFromRva(rvaAddressOfCallBacks)
			for {
				c, err := img.ReadUint32(offset)
				if err != nil || c == 0 {
					break
				}
				callbacks = append(callbacks, c)
				offset += 4
			}
			tls.Callbacks = callbacks
		}
	}

	img.tls = tls
	img.hasTLS = true
	return nil
}
