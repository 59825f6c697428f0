package pe

import (
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/Wang-P/libpe/internal/pelog"
)

// Image is an open, parsed PE/COFF binary. The zero value is not usable;
// obtain one from Open or OpenBytes.
type Image struct {
	data mmap.MMap
	raw  []byte
	f    *os.File

	size          uint32
	header        []byte
	overlayOffset int64
	opts          *Options
	log           *pelog.Helper

	width MachineWidth
	is32  bool
	is64  bool

	dosHeader DOSHeader
	hasDOS    bool

	richHeader RichHeader
	hasRich    bool

	ntHeader NTHeader
	hasNT    bool

	sections    []Section
	hasSections bool

	imports    []ImportModule
	hasImports bool

	export    Export
	hasExport bool

	resources    *ResourceDirectory
	hasResources bool

	exceptions    []Exception
	hasExceptions bool

	certificates []CertificateEntry
	hasSecurity  bool

	relocations    []RelocationBlock
	hasRelocations bool

	debugs   []DebugEntry
	hasDebug bool

	tls    TLSDirectory
	hasTLS bool

	loadConfig    LoadConfig
	hasLoadConfig bool

	boundImports    []BoundImportModule
	hasBoundImport  bool

	delayImports   []DelayImportModule
	hasDelayImport bool

	comDescriptor COMDescriptor
	hasCOM        bool

	anomalies []string
}

// Options controls how Open/OpenBytes parse an image. The zero value is
// usable: every field has a documented default.
type Options struct {
	// Fast parses only the headers and section table, skipping every data
	// directory. False by default.
	Fast bool

	// SectionEntropy computes the Shannon entropy of each section's raw
	// data. False by default, since it requires reading every byte of
	// every section.
	SectionEntropy bool

	// MaxModules caps the number of import/bound-import/delay-import
	// modules walked before parsing of that directory halts. Defaults to
	// 1000.
	MaxModules uint32

	// MaxFuncs caps the number of functions walked per import module or
	// the export table. Defaults to 5000.
	MaxFuncs uint32

	// MaxPathLength is stored with a default of 260, but the parsers do not
	// read it: section, import and export names are capped at 260 bytes
	// whatever value it holds.
	MaxPathLength uint32

	// Logger receives structured diagnostics produced while parsing.
	// Defaults to a filter that only surfaces errors.
	Logger pelog.Logger
}

func (o *Options) normalize() *Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.MaxModules == 0 {
		out.MaxModules = maxModulesDefault
	}
	if out.MaxFuncs == 0 {
		out.MaxFuncs = maxFuncsDefault
	}
	if out.MaxPathLength == 0 {
		out.MaxPathLength = maxPathDefault
	}
	return &out
}

const minImageSize = 64 // a bare IMAGE_DOS_HEADER

// Open memory-maps the file at path and parses it. The returned error wraps
// one of ErrFileOpen, ErrTooSmall, ErrMapFailed or ErrNoDOSSignature; every
// other structural problem is recorded as an anomaly instead of failing
// Open, so a caller can still query whatever survived.
func Open(path string, opts *Options) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileOpen, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrFileOpen, err)
	}
	if info.Size() < minImageSize {
		f.Close()
		return nil, ErrTooSmall
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrMapFailed, err)
	}

	img := &Image{f: f, data: data, opts: opts.normalize()}
	img.initLogger()
	img.size = uint32(len(data))
	if err := img.parse(); err != nil {
		img.Close()
		return nil, err
	}
	return img, nil
}

// OpenBytes parses an in-memory byte slice as a PE image, without mapping
// any file. Close is a no-op on an Image created this way.
func OpenBytes(data []byte, opts *Options) (*Image, error) {
	if len(data) < minImageSize {
		return nil, ErrTooSmall
	}
	img := &Image{raw: data, opts: opts.normalize()}
	img.initLogger()
	img.size = uint32(len(data))
	if err := img.parse(); err != nil {
		return nil, err
	}
	return img, nil
}

func (img *Image) initLogger() {
	if img.opts.Logger != nil {
		img.log = pelog.NewHelper(img.opts.Logger)
		return
	}
	img.log = pelog.NewHelper(pelog.NewFilter(pelog.NewStdLogger(os.Stderr), pelog.LevelError))
}

// Close releases the memory mapping, if any. It is safe to call more than
// once and is a no-op for images opened with OpenBytes.
func (img *Image) Close() error {
	if img.data != nil && img.f != nil {
		err := img.data.Unmap()
		img.data = nil
		if img.f != nil {
			img.f.Close()
			img.f = nil
		}
		return err
	}
	if img.f != nil {
		err := img.f.Close()
		img.f = nil
		return err
	}
	return nil
}

func (img *Image) parse() error {
	// structUnpack etc. all index img.data directly; alias it once so the
	// rest of the package doesn't need to know about mmap vs raw slice.
	if img.data == nil {
		img.data = mmap.MMap(img.raw)
	}

	if err := img.parseDOSHeader(); err != nil {
		return err
	}

	if err := img.parseRichHeader(); err != nil {
		img.log.Debugf("rich header parsing failed: %v", err)
	}

	if err := img.parseNTHeader(); err != nil {
		img.log.Warnf("nt header parsing failed: %v", err)
	}

	if img.hasNT {
		if err := img.parseSectionHeader(); err != nil {
			img.log.Warnf("section header parsing failed: %v", err)
		}
		img.detectHeaderAnomalies()
	}

	if img.opts.Fast || !img.hasNT {
		return nil
	}

	img.parseDataDirectories()
	return nil
}

// directoryParser parses one data directory. va and size come straight out
// of the Optional Header's DataDirectory array; for ImageDirectoryEntryCertificate
// va is a file offset rather than an RVA (see §4.9).
type directoryParser func(va, size uint32) error

// parseDataDirectories dispatches each non-empty data directory entry to
// its parser. A panic or error from one directory is logged and the rest
// still run — malformed or adversarial data in one directory must never
// prevent the others from being queryable.
func (img *Image) parseDataDirectories() {
	funcMaps := map[ImageDirectoryEntry]directoryParser{
		ImageDirectoryEntryExport:      img.parseExportDirectory,
		ImageDirectoryEntryImport:      img.parseImportDirectory,
		ImageDirectoryEntryResource:    img.parseResourceDirectory,
		ImageDirectoryEntryException:   img.parseExceptionDirectory,
		ImageDirectoryEntryCertificate: img.parseSecurityDirectory,
		ImageDirectoryEntryBaseReloc:   img.parseRelocDirectory,
		ImageDirectoryEntryDebug:       img.parseDebugDirectory,
		ImageDirectoryEntryTLS:         img.parseTLSDirectory,
		ImageDirectoryEntryLoadConfig:  img.parseLoadConfigDirectory,
		ImageDirectoryEntryBoundImport: img.parseBoundImportDirectory,
		ImageDirectoryEntryDelayImport: img.parseDelayImportDirectory,
		ImageDirectoryEntryCLR:         img.parseCOMDescriptorDirectory,
	}

	for idx := ImageDirectoryEntry(0); idx < imageNumberOfDirectoryEntries; idx++ {
		if idx == ImageDirectoryEntryReserved {
			continue
		}
		dd, ok := img.dataDirectory(idx)
		if !ok {
			continue
		}
		parser, handled := funcMaps[idx]
		if !handled {
			continue
		}
		img.runDirectoryParser(idx, parser, dd)
	}
}

func (img *Image) runDirectoryParser(idx ImageDirectoryEntry, parser directoryParser, dd DataDirectory) {
	defer func() {
		if r := recover(); r != nil {
			img.log.Errorf("panic parsing %s directory: %v", idx, r)
		}
	}()
	if err := parser(dd.VirtualAddress, dd.Size); err != nil {
		img.log.Warnf("failed to parse %s directory: %v", idx, err)
	}
}

// Anomalies returns every structural irregularity noticed while parsing,
// in the order encountered. A non-empty result does not mean Open failed;
// it means the image deviates from a strictly well-formed PE/COFF layout.
func (img *Image) Anomalies() []string {
	return img.anomalies
}

// DOSHeader returns the parsed MS-DOS stub header. It is only absent when
// Open/OpenBytes themselves would have failed, so in practice it is always
// present on a successfully opened Image.
func (img *Image) DOSHeader() (DOSHeader, bool) {
	return img.dosHeader, img.hasDOS
}

// RichHeader returns the decoded linker/compiler metadata block, when present.
func (img *Image) RichHeader() (RichHeader, bool) {
	return img.richHeader, img.hasRich
}

// NTHeader returns the COFF file header and optional header.
func (img *Image) NTHeader() (NTHeader, bool) {
	return img.ntHeader, img.hasNT
}

// DataDirectories returns the Optional Header's data directory array,
// capped at maxDataDirectories entries regardless of NumberOfRvaAndSizes
// (see the Open Question decision in DESIGN.md).
func (img *Image) DataDirectories() ([]DataDirectory, bool) {
	if !img.hasNT {
		return nil, false
	}
	var dirs []DataDirectory
	for i := ImageDirectoryEntry(0); i < maxDataDirectories; i++ {
		dd, _ := img.dataDirectory(i)
		dirs = append(dirs, dd)
	}
	return dirs, true
}

// SectionHeaders returns the section table, sorted by VirtualAddress.
func (img *Image) SectionHeaders() ([]Section, bool) {
	return img.sections, img.hasSections
}

// Export returns the export directory.
func (img *Image) Export() (Export, bool) {
	return img.export, img.hasExport
}

// Import returns the imported modules and their functions.
func (img *Image) Import() ([]ImportModule, bool) {
	return img.imports, img.hasImports
}

// Resources returns the root of the three-level resource tree.
func (img *Image) Resources() (*ResourceDirectory, bool) {
	return img.resources, img.hasResources
}

// Exceptions returns the flat table of RUNTIME_FUNCTION entries.
func (img *Image) Exceptions() ([]Exception, bool) {
	return img.exceptions, img.hasExceptions
}

// Security returns the chain of Authenticode certificate entries.
func (img *Image) Security() ([]CertificateEntry, bool) {
	return img.certificates, img.hasSecurity
}

// Relocations returns the base relocation blocks.
func (img *Image) Relocations() ([]RelocationBlock, bool) {
	return img.relocations, img.hasRelocations
}

// Debug returns the debug directory entries.
func (img *Image) Debug() ([]DebugEntry, bool) {
	return img.debugs, img.hasDebug
}

// TLS returns the thread-local storage directory, including its callback
// array.
func (img *Image) TLS() (TLSDirectory, bool) {
	return img.tls, img.hasTLS
}

// LoadConfig returns the base Load Configuration structure.
func (img *Image) LoadConfig() (LoadConfig, bool) {
	return img.loadConfig, img.hasLoadConfig
}

// BoundImport returns the bound import descriptors.
func (img *Image) BoundImport() ([]BoundImportModule, bool) {
	return img.boundImports, img.hasBoundImport
}

// DelayImport returns the delay-load import descriptors.
func (img *Image) DelayImport() ([]DelayImportModule, bool) {
	return img.delayImports, img.hasDelayImport
}

// COMDescriptor returns the CLR/.NET COM descriptor header.
func (img *Image) COMDescriptor() (COMDescriptor, bool) {
	return img.comDescriptor, img.hasCOM
}
