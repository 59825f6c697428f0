package pe

import (
	"encoding/binary"
	"testing"
)

// buildRichStub lays out a DOS stub followed by an encrypted Rich header
// block: the masked "DanS" dword at 0x80, three zero padding dwords (left
// unmasked; the parser skips them), one masked CompID pair per entry, then the "Rich" trailer holding
// the XOR key in the clear.
func buildRichStub(mask uint32, compIDs []CompID) []byte {
	data := make([]byte, testELfanew+4)
	data[0], data[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(data[0x80:], DansSignature^mask)

	for range [3]struct{}{} {
		data = append(data, 0, 0, 0, 0)
	}
	for _, c := range compIDs {
		var entry [8]byte
		binary.LittleEndian.PutUint32(entry[0:], (uint32(c.ProdID)<<16|uint32(c.MinorCV))^mask)
		binary.LittleEndian.PutUint32(entry[4:], c.Count^mask)
		data = append(data, entry[:]...)
	}

	richTrailer := make([]byte, 8)
	copy(richTrailer, RichSignature)
	binary.LittleEndian.PutUint32(richTrailer[4:], mask)
	data = append(data, richTrailer...)

	data = append(data, make([]byte, 16)...)
	binary.LittleEndian.PutUint32(data[0x3c:], uint32(len(data)))
	return data
}

func newTestImage(data []byte) *Image {
	img := &Image{opts: (&Options{}).normalize()}
	img.initLogger()
	img.size = uint32(len(data))
	img.data = append([]byte(nil), data...)
	return img
}

func TestParseRichHeaderRoundTrip(t *testing.T) {
	mask := uint32(0xdeadbeef)
	compIDs := []CompID{{MinorCV: 1, ProdID: 0x100, Count: 3}}
	data := buildRichStub(mask, compIDs)

	img := newTestImage(data)
	if err := img.parseDOSHeader(); err != nil {
		t.Fatalf("parseDOSHeader failed: %v", err)
	}
	if err := img.parseRichHeader(); err != nil {
		t.Fatalf("parseRichHeader returned error: %v", err)
	}

	rh, ok := img.RichHeader()
	if !ok {
		t.Fatal("expected a Rich header")
	}
	if rh.XORKey != mask {
		t.Errorf("got XORKey 0x%x, want 0x%x", rh.XORKey, mask)
	}
	if len(rh.CompIDs) != 1 || rh.CompIDs[0].Count != 3 {
		t.Errorf("got CompIDs %+v", rh.CompIDs)
	}
}

func TestParseRichHeaderAbsentWithoutMarker(t *testing.T) {
	data := make([]byte, testELfanew+16)
	data[0], data[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(data[0x3c:], uint32(len(data)))

	img := newTestImage(data)
	if err := img.parseDOSHeader(); err != nil {
		t.Fatalf("parseDOSHeader failed: %v", err)
	}
	if err := img.parseRichHeader(); err != nil {
		t.Fatalf("parseRichHeader returned error: %v", err)
	}
	if _, ok := img.RichHeader(); ok {
		t.Fatal("expected no Rich header when the marker is absent")
	}
}
