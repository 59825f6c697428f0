package pe

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
)

// DansSignature is "DanS" as a little-endian dword, marking the start of
// the rich header's encrypted region.
const DansSignature = 0x536E6144

// RichSignature marks the end of the encrypted region.
const RichSignature = "Rich"

// CompID is one decrypted @comp.id entry: a linker/compiler tool and how
// many times its output contributed to the image.
type CompID struct {
	MinorCV  uint16
	ProdID   uint16
	Count    uint32
	Unmasked uint32
}

// RichHeader is the undocumented, XOR-masked linker metadata block between
// the DOS stub and the NT header.
type RichHeader struct {
	XORKey     uint32
	CompIDs    []CompID
	DansOffset int
	Raw        []byte
}

// parseRichHeader scans dwords from offset 0x80 up to e_lfanew for the
// "Rich" marker; the dword that follows is the XOR key, and XORing it
// against the dword at 0x80 must recover "DanS". Fails silently (no Rich
// header reported) otherwise, per §4.3.
func (img *Image) parseRichHeader() error {
	elfanew := img.dosHeader.AddressOfNewEXEHeader
	if elfanew <= 0x80 || elfanew > img.size {
		return nil
	}

	region := img.data[0x80:elfanew]
	idx := bytes.Index(region, []byte(RichSignature))
	if idx < 0 {
		return nil
	}
	richOffset := uint32(0x80 + idx)
	if richOffset+8 > img.size {
		return nil
	}

	mask := binary.LittleEndian.Uint32(img.data[richOffset+4:])
	firstWord := binary.LittleEndian.Uint32(img.data[0x80:])
	if firstWord^mask != DansSignature {
		return nil
	}
	if richOffset < 0x90 {
		return nil
	}

	var entries []CompID
	for off := uint32(0x90); off+8 <= richOffset; off += 8 {
		a := binary.LittleEndian.Uint32(img.data[off:]) ^ mask
		b := binary.LittleEndian.Uint32(img.data[off+4:]) ^ mask
		entries = append(entries, CompID{
			MinorCV:  uint16(a),
			ProdID:   uint16(a >> 16),
			Count:    b,
			Unmasked: a,
		})
	}

	img.richHeader = RichHeader{
		XORKey:     mask,
		CompIDs:    entries,
		DansOffset: 0x80,
		Raw:        img.data[0x80 : richOffset+8],
	}
	img.hasRich = true
	return nil
}

// RichHeaderChecksum recomputes the checksum the linker stores as the XOR
// key, so a caller can detect tampering by comparing it against
// RichHeader().XORKey.
func (img *Image) RichHeaderChecksum() uint32 {
	if !img.hasRich {
		return 0
	}
	checksum := uint32(img.richHeader.DansOffset)
	for i := 0; i < img.richHeader.DansOffset; i++ {
		if i >= 0x3C && i < 0x40 {
			continue // e_lfanew itself is zeroed out before checksumming
		}
		b := uint32(img.data[i])
		checksum += (b << (i % 32)) | (b >> (32 - (i % 32)) & 0xff)
	}
	for _, cid := range img.richHeader.CompIDs {
		checksum += (cid.Unmasked << (cid.Count % 32)) | (cid.Unmasked >> (32 - (cid.Count % 32)))
	}
	return checksum
}

// RichHeaderHash returns an MD5 hash of the decrypted rich header payload,
// a fingerprint of the exact toolchain/version combination used to build
// the image.
func (img *Image) RichHeaderHash() string {
	if !img.hasRich {
		return ""
	}
	richIdx := bytes.Index(img.richHeader.Raw, []byte(RichSignature))
	if richIdx == -1 {
		return ""
	}
	key := make([]byte, 4)
	binary.LittleEndian.PutUint32(key, img.richHeader.XORKey)

	raw := img.richHeader.Raw[:richIdx]
	clear := make([]byte, len(raw))
	for i, b := range raw {
		clear[i] = b ^ key[i%len(key)]
	}
	return fmt.Sprintf("%x", md5.Sum(clear))
}
