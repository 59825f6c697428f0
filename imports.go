package pe

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	imageOrdinalFlag32   = uint32(0x80000000)
	imageOrdinalFlag64   = uint64(0x8000000000000000)
	maxRepeatedAddresses = uint32(0xF)
	maxAddressSpread     = uint32(0x8000000)
	addressMask32        = uint32(0x7fffffff)
	addressMask64        = uint64(0x7fffffffffffffff)
)

// ErrDamagedImportTable is returned when both the Import Lookup Table and
// the Import Address Table for a module are empty.
var ErrDamagedImportTable = errors.New("pe: damaged import table, ILT and IAT both empty")

// ImageImportDescriptor is one entry of the null-terminated import
// descriptor array.
type ImageImportDescriptor struct {
	OriginalFirstThunk uint32 `json:"original_first_thunk"`
	TimeDateStamp      uint32 `json:"time_date_stamp"`
	ForwarderChain     uint32 `json:"forwarder_chain"`
	Name               uint32 `json:"name"`
	FirstThunk         uint32 `json:"first_thunk"`
}

// ImageThunkData32 is one PE32 IMAGE_THUNK_DATA entry.
type ImageThunkData32 struct {
	AddressOfData uint32
}

// ImageThunkData64 is one PE32+ IMAGE_THUNK_DATA entry.
type ImageThunkData64 struct {
	AddressOfData uint64
}

// ThunkData32 pairs a PE32 thunk with the RVA it was read from.
type ThunkData32 struct {
	ImageThunkData ImageThunkData32
	Offset         uint32
}

// ThunkData64 pairs a PE32+ thunk with the RVA it was read from.
type ThunkData64 struct {
	ImageThunkData ImageThunkData64
	Offset         uint32
}

// ImportFunction is one function imported from a module. ThunkRVA is the
// IAT slot's RVA, folding what a separate IAT query would otherwise report.
type ImportFunction struct {
	Name               string `json:"name"`
	Hint               uint16 `json:"hint"`
	ByOrdinal          bool   `json:"by_ordinal"`
	Ordinal            uint32 `json:"ordinal"`
	OriginalThunkValue uint64 `json:"original_thunk_value"`
	ThunkValue         uint64 `json:"thunk_value"`
	ThunkRVA           uint32 `json:"thunk_rva"`
	OriginalThunkRVA   uint32 `json:"original_thunk_rva"`
}

// ImportModule is one imported DLL and the functions pulled from it.
type ImportModule struct {
	Offset     uint32                `json:"offset"`
	Name       string                `json:"name"`
	Functions  []ImportFunction      `json:"functions"`
	Descriptor ImageImportDescriptor `json:"descriptor"`
}

// isPrintableName reports whether s looks like a plausible DLL or function
// name: non-empty, bounded, and free of control characters.
func isPrintableName(s string, maxLen uint32) bool {
	if s == "" || uint32(len(s)) > maxLen {
		return false
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}

func (img *Image) parseImportDirectory(rva, size uint32) error {
	for uint32(len(img.imports)) < img.opts.MaxModules {
		importDesc := ImageImportDescriptor{}
		fileOffset := img.GetOffsetFromRva(rva)
		importDescSize := uint32(binary.Size(importDesc))
		if err := img.structUnpack(&importDesc, fileOffset, importDescSize); err != nil {
			return err
		}

		if importDesc == (ImageImportDescriptor{}) {
			break
		}
		rva += importDescSize

		maxLen := img.size - fileOffset
		if rva > importDesc.OriginalFirstThunk || rva > importDesc.FirstThunk {
			switch {
			case rva < importDesc.OriginalFirstThunk:
				maxLen = rva - importDesc.FirstThunk
			case rva < importDesc.FirstThunk:
				maxLen = rva - importDesc.OriginalFirstThunk
			default:
				a, b := rva-importDesc.OriginalFirstThunk, rva-importDesc.FirstThunk
				if b > a {
					a = b
				}
				maxLen = a
			}
		}

		var importedFunctions []ImportFunction
		var err error
		if img.is64 {
			importedFunctions, err = img.parseImports64(&importDesc, maxLen)
		} else {
			importedFunctions, err = img.parseImports32(&importDesc, maxLen)
		}
		if err != nil {
			bothThunksZero := importDesc.OriginalFirstThunk == 0 && importDesc.FirstThunk == 0
			if err != ErrDamagedImportTable || !bothThunksZero {
				img.log.Warnf("skipping import module: %v", err)
				continue
			}
			importedFunctions = nil
		}

		dllName := img.getStringAtRVA(importDesc.Name, maxPathDefault)
		if !isPrintableName(dllName, maxPathDefault) {
			continue
		}

		img.imports = append(img.imports, ImportModule{
			Offset:     fileOffset,
			Name:       dllName,
			Functions:  importedFunctions,
			Descriptor: importDesc,
		})
	}

	img.hasImports = len(img.imports) > 0
	return nil
}

func (img *Image) getImportTable32(rva, maxLen uint32, isOldDelayImport bool) ([]ThunkData32, error) {
	var retVal []ThunkData32
	minAddressOfData := ^uint32(0)
	maxAddressOfData := uint32(0)
	repeatedAddress := uint32(0)
	const size = 4
	addressesOfData := make(map[uint32]bool)

	startRVA := rva
	if rva == 0 {
		return nil, nil
	}

	for {
		if rva >= startRVA+maxLen {
			img.log.Warnf("import table entries go beyond bounds")
			break
		}
		if repeatedAddress >= maxRepeatedAddresses {
			if !stringInSlice(AnoManyRepeatedEntries, img.anomalies) {
				img.anomalies = append(img.anomalies, AnoManyRepeatedEntries)
			}
		}
		if maxAddressOfData-minAddressOfData > maxAddressSpread {
			if !stringInSlice(AnoInvalidThunkAddressOfData, img.anomalies) {
				img.anomalies = append(img.anomalies, AnoInvalidThunkAddressOfData)
			}
		}

		var offset uint32
		if isOldDelayImport {
			oh32 := img.ntHeader.OptionalHeader.(ImageOptionalHeader32)
			offset = img.GetOffsetFromRva(rva - oh32.ImageBase)
		} else {
			offset = img.GetOffsetFromRva(rva)
		}
		if offset == ^uint32(0) {
			return nil, nil
		}

		thunk := ImageThunkData32{}
		if err := img.structUnpack(&thunk, offset, size); err != nil {
			return nil, nil
		}
		if thunk == (ImageThunkData32{}) {
			break
		}

		if thunk.AddressOfData >= startRVA && thunk.AddressOfData <= rva {
			img.log.Warnf("AddressOfData overlaps with thunk table at RVA 0x%x", rva)
			break
		}

		if thunk.AddressOfData&imageOrdinalFlag32 > 0 {
			if thunk.AddressOfData&0x7fffffff > 0xffff {
				if !stringInSlice(AnoAddressOfDataBeyondLimits, img.anomalies) {
					img.anomalies = append(img.anomalies, AnoAddressOfDataBeyondLimits)
				}
			}
		} else {
			if addressesOfData[thunk.AddressOfData] {
				repeatedAddress++
			} else {
				addressesOfData[thunk.AddressOfData] = true
			}
			if thunk.AddressOfData > maxAddressOfData {
				maxAddressOfData = thunk.AddressOfData
			}
			if thunk.AddressOfData < minAddressOfData {
				minAddressOfData = thunk.AddressOfData
			}
		}

		retVal = append(retVal, ThunkData32{ImageThunkData: thunk, Offset: rva})
		rva += size
		if uint32(len(retVal)) >= img.opts.MaxFuncs {
			break
		}
	}
	return retVal, nil
}

func (img *Image) getImportTable64(rva, maxLen uint32, isOldDelayImport bool) ([]ThunkData64, error) {
	var retVal []ThunkData64
	minAddressOfData := ^uint64(0)
	maxAddressOfData := uint64(0)
	repeatedAddress := uint64(0)
	const size = 8
	addressesOfData := make(map[uint64]bool)

	startRVA := rva
	if rva == 0 {
		return nil, nil
	}

	for {
		if rva >= startRVA+maxLen {
			img.log.Warnf("import table entries go beyond bounds")
			break
		}
		if repeatedAddress >= uint64(maxRepeatedAddresses) {
			if !stringInSlice(AnoManyRepeatedEntries, img.anomalies) {
				img.anomalies = append(img.anomalies, AnoManyRepeatedEntries)
			}
		}
		if maxAddressOfData-minAddressOfData > uint64(maxAddressSpread) {
			if !stringInSlice(AnoInvalidThunkAddressOfData, img.anomalies) {
				img.anomalies = append(img.anomalies, AnoInvalidThunkAddressOfData)
			}
		}

		var offset uint32
		if isOldDelayImport {
			oh64 := img.ntHeader.OptionalHeader.(ImageOptionalHeader64)
			offset = img.GetOffsetFromRva(rva - uint32(oh64.ImageBase))
		} else {
			offset = img.GetOffsetFromRva(rva)
		}
		if offset == ^uint32(0) {
			return nil, nil
		}

		thunk := ImageThunkData64{}
		if err := img.structUnpack(&thunk, offset, size); err != nil {
			return nil, nil
		}
		if thunk == (ImageThunkData64{}) {
			break
		}

		if thunk.AddressOfData >= uint64(startRVA) && thunk.AddressOfData <= uint64(rva) {
			img.log.Warnf("AddressOfData overlaps with thunk table at RVA 0x%x", rva)
			break
		}

		if thunk.AddressOfData&imageOrdinalFlag64 > 0 {
			if thunk.AddressOfData&0x7fffffff > 0xffff {
				if !stringInSlice(AnoAddressOfDataBeyondLimits, img.anomalies) {
					img.anomalies = append(img.anomalies, AnoAddressOfDataBeyondLimits)
				}
			}
		} else {
			if addressesOfData[thunk.AddressOfData] {
				repeatedAddress++
			} else {
				addressesOfData[thunk.AddressOfData] = true
			}
			if thunk.AddressOfData > maxAddressOfData {
				maxAddressOfData = thunk.AddressOfData
			}
			if thunk.AddressOfData < minAddressOfData {
				minAddressOfData = thunk.AddressOfData
			}
		}

		retVal = append(retVal, ThunkData64{ImageThunkData: thunk, Offset: rva})
		rva += size
		if uint32(len(retVal)) >= img.opts.MaxFuncs {
			break
		}
	}
	return retVal, nil
}

func (img *Image) parseImports32(importDesc interface{}, maxLen uint32) ([]ImportFunction, error) {
	var originalFirstThunk, firstThunk uint32
	var isOldDelayImport bool

	switch desc := importDesc.(type) {
	case *ImageImportDescriptor:
		originalFirstThunk, firstThunk = desc.OriginalFirstThunk, desc.FirstThunk
	case *ImageDelayImportDescriptor:
		originalFirstThunk, firstThunk = desc.ImportNameTableRVA, desc.ImportAddressTableRVA
		isOldDelayImport = desc.Attributes == 0
	}

	ilt, err := img.getImportTable32(originalFirstThunk, maxLen, isOldDelayImport)
	if err != nil {
		return nil, err
	}
	iat, err := img.getImportTable32(firstThunk, maxLen, isOldDelayImport)
	if err != nil {
		return nil, err
	}
	if len(iat) == 0 && len(ilt) == 0 {
		return nil, ErrDamagedImportTable
	}

	table := ilt
	if len(table) == 0 {
		table = iat
	}

	var importedFunctions []ImportFunction
	numInvalid := 0
	for idx := 0; idx < len(table); idx++ {
		imp := ImportFunction{}
		if table[idx].ImageThunkData.AddressOfData > 0 {
			if table[idx].ImageThunkData.AddressOfData&imageOrdinalFlag32 > 0 {
				imp.ByOrdinal = true
				imp.Ordinal = table[idx].ImageThunkData.AddressOfData & 0xffff
				if idx < len(ilt) {
					imp.OriginalThunkValue = uint64(ilt[idx].ImageThunkData.AddressOfData)
					imp.OriginalThunkRVA = ilt[idx].Offset
				}
				if idx < len(iat) {
					imp.ThunkValue = uint64(iat[idx].ImageThunkData.AddressOfData)
					imp.ThunkRVA = iat[idx].Offset
				}
				imp.Name = "#" + strconv.Itoa(int(imp.Ordinal))
			} else {
				imp.ByOrdinal = false
				if isOldDelayImport {
					table[idx].ImageThunkData.AddressOfData -= img.ntHeader.OptionalHeader.(ImageOptionalHeader32).ImageBase
				}
				if idx < len(ilt) {
					imp.OriginalThunkValue = uint64(ilt[idx].ImageThunkData.AddressOfData & addressMask32)
					imp.OriginalThunkRVA = ilt[idx].Offset
				}
				if idx < len(iat) {
					imp.ThunkValue = uint64(iat[idx].ImageThunkData.AddressOfData & addressMask32)
					imp.ThunkRVA = iat[idx].Offset
				}
				hintNameTableRva := table[idx].ImageThunkData.AddressOfData & addressMask32
				off := img.GetOffsetFromRva(hintNameTableRva)
				hint, herr := img.ReadUint16(off)
				if herr != nil {
					hint = ^uint16(0)
				}
				imp.Hint = hint
				imp.Name = img.getStringAtRVA(table[idx].ImageThunkData.AddressOfData+2, maxPathDefault)
				if !isPrintableName(imp.Name, maxPathDefault) {
					imp.Name = ""
				}
			}
		}

		if imp.Ordinal == 0 && imp.Name == "" {
			if !stringInSlice(AnoImportNoNameNoOrdinal, img.anomalies) {
				img.anomalies = append(img.anomalies, AnoImportNoNameNoOrdinal)
			}
			numInvalid++
			if numInvalid > 1000 && numInvalid == idx+1 {
				return nil, errors.New("too many invalid import entries, aborting")
			}
			continue
		}

		importedFunctions = append(importedFunctions, imp)
		if uint32(len(importedFunctions)) >= img.opts.MaxFuncs {
			break
		}
	}
	return importedFunctions, nil
}

func (img *Image) parseImports64(importDesc interface{}, maxLen uint32) ([]ImportFunction, error) {
	var originalFirstThunk, firstThunk uint32
	var isOldDelayImport bool

	switch desc := importDesc.(type) {
	case *ImageImportDescriptor:
		originalFirstThunk, firstThunk = desc.OriginalFirstThunk, desc.FirstThunk
	case *ImageDelayImportDescriptor:
		originalFirstThunk, firstThunk = desc.ImportNameTableRVA, desc.ImportAddressTableRVA
		isOldDelayImport = desc.Attributes == 0
	}

	ilt, err := img.getImportTable64(originalFirstThunk, maxLen, isOldDelayImport)
	if err != nil {
		return nil, err
	}
	iat, err := img.getImportTable64(firstThunk, maxLen, isOldDelayImport)
	if err != nil {
		return nil, err
	}
	if len(iat) == 0 && len(ilt) == 0 {
		return nil, ErrDamagedImportTable
	}

	table := ilt
	if len(table) == 0 {
		table = iat
	}

	var importedFunctions []ImportFunction
	numInvalid := 0
	for idx := 0; idx < len(table); idx++ {
		imp := ImportFunction{}
		if table[idx].ImageThunkData.AddressOfData > 0 {
			if table[idx].ImageThunkData.AddressOfData&imageOrdinalFlag64 > 0 {
				imp.ByOrdinal = true
				imp.Ordinal = uint32(table[idx].ImageThunkData.AddressOfData) & 0xffff
				if idx < len(ilt) {
					imp.OriginalThunkValue = ilt[idx].ImageThunkData.AddressOfData
					imp.OriginalThunkRVA = ilt[idx].Offset
				}
				if idx < len(iat) {
					imp.ThunkValue = iat[idx].ImageThunkData.AddressOfData
					imp.ThunkRVA = iat[idx].Offset
				}
				imp.Name = "#" + strconv.Itoa(int(imp.Ordinal))
			} else {
				imp.ByOrdinal = false
				if isOldDelayImport {
					table[idx].ImageThunkData.AddressOfData -= img.ntHeader.OptionalHeader.(ImageOptionalHeader64).ImageBase
				}
				if idx < len(ilt) {
					imp.OriginalThunkValue = ilt[idx].ImageThunkData.AddressOfData & addressMask64
					imp.OriginalThunkRVA = ilt[idx].Offset
				}
				if idx < len(iat) {
					imp.ThunkValue = iat[idx].ImageThunkData.AddressOfData & addressMask64
					imp.ThunkRVA = iat[idx].Offset
				}
				hintNameTableRva := table[idx].ImageThunkData.AddressOfData & addressMask64
				off := img.GetOffsetFromRva(uint32(hintNameTableRva))
				if off+2 <= img.size {
					imp.Hint = binary.LittleEndian.Uint16(img.data[off:])
				} else {
					imp.Hint = ^uint16(0)
				}
				imp.Name = img.getStringAtRVA(uint32(table[idx].ImageThunkData.AddressOfData+2), maxPathDefault)
				if !isPrintableName(imp.Name, maxPathDefault) {
					imp.Name = ""
				}
			}
		}

		if imp.Ordinal == 0 && imp.Name == "" {
			if !stringInSlice(AnoImportNoNameNoOrdinal, img.anomalies) {
				img.anomalies = append(img.anomalies, AnoImportNoNameNoOrdinal)
			}
			numInvalid++
			if numInvalid > 1000 && numInvalid == idx+1 {
				return nil, errors.New("too many invalid import entries, aborting")
			}
			continue
		}

		importedFunctions = append(importedFunctions, imp)
		if uint32(len(importedFunctions)) >= img.opts.MaxFuncs {
			break
		}
	}
	return importedFunctions, nil
}

// GetImportEntryInfoByRVA returns the module and function index whose IAT
// slot sits at rva.
func (img *Image) GetImportEntryInfoByRVA(rva uint32) (ImportModule, int, bool) {
	for _, imp := range img.imports {
		for i, fn := range imp.Functions {
			if fn.ThunkRVA == rva {
				return imp, i, true
			}
		}
	}
	return ImportModule{}, 0, false
}

func md5hash(text string) string {
	h := md5.New()
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// ImpHash computes the import hash: skip ordinal-only imports, lowercase
// module and function names, strip module extensions, and hash the ordered
// "module.function" list with MD5.
func (img *Image) ImpHash() (string, error) {
	if len(img.imports) == 0 {
		return "", errors.New("pe: no imports to hash")
	}

	extensions := []string{"ocx", "sys", "dll"}
	var impStrs []string

	for _, imp := range img.imports {
		libName := imp.Name
		if parts := strings.Split(imp.Name, "."); len(parts) == 2 && stringInSlice(strings.ToLower(parts[1]), extensions) {
			libName = parts[0]
		}
		libName = strings.ToLower(libName)

		for _, fn := range imp.Functions {
			funcName := fn.Name
			if fn.ByOrdinal {
				continue // ordinal-only imports can't be resolved without an export name table for the target DLL
			}
			if funcName == "" {
				continue
			}
			impStrs = append(impStrs, fmt.Sprintf("%s.%s", libName, strings.ToLower(funcName)))
		}
	}

	return md5hash(strings.Join(impStrs, ",")), nil
}
