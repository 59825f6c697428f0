package pe

import "errors"

// ErrNoOverlayFound is returned by Overlay when the image has no data
// trailing its last section.
var ErrNoOverlayFound = errors.New("pe: no overlay data")

// Overlay returns the bytes appended after the last section's raw data, if
// any. Installers and signed binaries routinely carry an overlay; malware
// uses it to smuggle a second payload past tools that only look at declared
// sections.
func (img *Image) Overlay() ([]byte, error) {
	if !img.hasSections || img.overlayOffset <= 0 || img.overlayOffset >= int64(img.size) {
		return nil, ErrNoOverlayFound
	}
	return img.data[img.overlayOffset:], nil
}

// OverlayLength returns the number of bytes trailing the last section, or 0
// if the image has none.
func (img *Image) OverlayLength() int64 {
	if !img.hasSections || img.overlayOffset <= 0 || img.overlayOffset >= int64(img.size) {
		return 0
	}
	return int64(img.size) - img.overlayOffset
}
