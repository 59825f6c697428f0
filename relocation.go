package pe

import (
	"encoding/binary"
	"errors"
)

var (
	// ErrInvalidBaseRelocVA is reported when a relocation block's
	// VirtualAddress lies outside of the image.
	ErrInvalidBaseRelocVA = errors.New(
		"invalid relocation information: base relocation VirtualAddress is outside of the image")

	// ErrInvalidBasicRelocSizeOfBloc is reported when a relocation block's
	// SizeOfBlock is implausibly large.
	ErrInvalidBasicRelocSizeOfBloc = errors.New(
		"invalid relocation information: base relocation SizeOfBlock too large")
)

// ImageBaseRelocationEntryType is the type of an in-image base relocation entry.
type ImageBaseRelocationEntryType uint8

// Base relocation types. Different relocation types are defined for each
// machine type; only the type codes common across machines are named here.
const (
	ImageRelBasedAbsolute    = 0
	ImageRelBasedHigh        = 1
	ImageRelBasedLow         = 2
	ImageRelBasedHighLow     = 3
	ImageRelBasedHighAdj     = 4
	ImageRelBasedMIPSJmpAddr = 5
	ImageRelReserved         = 6
	ImageRelBasedThumbMov32  = 7
	ImageRelBasedDir64       = 10
)

// MaxDefaultRelocEntriesCount bounds how many relocation entries a single
// block is allowed to carry, since a forged SizeOfBlock can otherwise force
// an unbounded parse.
const MaxDefaultRelocEntriesCount = 0x1000

// ImageBaseRelocation is the IMAGE_BASE_RELOCATION block header. Each chunk
// of base relocation data begins with one of these.
type ImageBaseRelocation struct {
	VirtualAddress uint32 `json:"virtual_address"`
	SizeOfBlock    uint32 `json:"size_of_block"`
}

// ImageBaseRelocationEntry is one relocation entry within a block. For a
// HighAdj (type 4) entry, Offset16 holds the extra 16-bit low-half value
// that a HighAdj entry occupies in the slot immediately following it, per
// §4.10 — a HighAdj entry consumes that following slot whenever the block
// has one; a HighAdj in the block's last slot consumes only itself.
type ImageBaseRelocationEntry struct {
	Data     uint16                       `json:"data"`
	Offset   uint16                       `json:"offset"`
	Type     ImageBaseRelocationEntryType `json:"type"`
	Offset16 uint16                       `json:"offset16,omitempty"`
}

// RelocationBlock is one base relocation block: its header plus the
// relocation entries it carries.
type RelocationBlock struct {
	Data    ImageBaseRelocation        `json:"data"`
	Entries []ImageBaseRelocationEntry `json:"entries"`
}

// parseRelocationEntries reads the Type/Offset word array following a block
// header. A HighAdj entry (type 4) is immediately followed by one more
// 16-bit word holding the low half of the difference to apply; that word is
// not itself a relocation entry, so it must be consumed here rather than
// interpreted as the next entry's Data.
func (img *Image) parseRelocationEntries(offset, blockSize uint32) []ImageBaseRelocationEntry {
	var entries []ImageBaseRelocationEntry

	slotCount := blockSize / 2
	if slotCount > img.opts.MaxFuncs {
		img.anomalies = append(img.anomalies, "Base relocation block entry count beyond limits")
		slotCount = img.opts.MaxFuncs
	}

	i := uint32(0)
	for i < slotCount && uint32(len(entries)) < MaxDefaultRelocEntriesCount {
		data, err := img.ReadUint16(offset + i*2)
		if err != nil {
			break
		}
		i++

		entry := ImageBaseRelocationEntry{
			Data:   data,
			Offset: data & 0x0fff,
			Type:   ImageBaseRelocationEntryType(data >> 12),
		}

		if entry.Type == ImageRelBasedHighAdj && i < slotCount {
			lowHalf, err := img.ReadUint16(offset + i*2)
			if err != nil {
				entries = append(entries, entry)
				break
			}
			entry.Offset16 = lowHalf
			i++
		}

		entries = append(entries, entry)
	}

	return entries
}

// parseRelocDirectory walks the Base Relocation directory's list of
// variable-length blocks, one per page.
func (img *Image) parseRelocDirectory(rva, size uint32) error {
	var sizeOfImage uint32
	if img.is64 {
		sizeOfImage = img.ntHeader.OptionalHeader.(ImageOptionalHeader64).SizeOfImage
	} else {
		sizeOfImage = img.ntHeader.OptionalHeader.(ImageOptionalHeader32).SizeOfImage
	}

	relocSize := uint32(binary.Size(ImageBaseRelocation{}))
	end := rva + size

	var blocks []RelocationBlock
	for rva < end {
		baseReloc := ImageBaseRelocation{}
		offset := img.GetOffsetFromRva(rva)
		if err := img.structUnpack(&baseReloc, offset, relocSize); err != nil {
			return err
		}

		if baseReloc.VirtualAddress > sizeOfImage {
			return ErrInvalidBaseRelocVA
		}
		if baseReloc.SizeOfBlock > sizeOfImage {
			return ErrInvalidBasicRelocSizeOfBloc
		}
		if baseReloc.SizeOfBlock == 0 {
			break
		}
		if baseReloc.SizeOfBlock < relocSize {
			blocks = append(blocks, RelocationBlock{Data: baseReloc})
			break
		}

		entries := img.parseRelocationEntries(offset+relocSize, baseReloc.SizeOfBlock-relocSize)
		blocks = append(blocks, RelocationBlock{Data: baseReloc, Entries: entries})

		rva += baseReloc.SizeOfBlock
	}

	img.relocations = blocks
	img.hasRelocations = len(blocks) > 0
	return nil
}
