package pe

import "encoding/binary"

// ResourceType identifies a resource's predefined type. Pretty-printing
// these values is outside the core; callers needing display names can map
// this themselves.
type ResourceType int

// maxAllowedEntries hard-limits the number of directory entries walked at
// any one level, independent of the tree's cycle guard, since a directory
// header can claim an entry count the file doesn't actually back.
const maxAllowedEntries = 0x1000

// Predefined Resource Types.
const (
	RTCursor       ResourceType = iota + 1
	RTBitmap                    = 2
	RTIcon                      = 3
	RTMenu                      = 4
	RTDialog                    = 5
	RTString                    = 6
	RTFontDir                   = 7
	RTFont                      = 8
	RTAccelerator                = 9
	RTRCdata                     = 10
	RTMessageTable               = 11
	RTGroupCursor                = RTCursor + 11
	RTGroupIcon                  = RTIcon + 11
	RTVersion                    = 16
	RTDlgInclude                 = 17
	RTPlugPlay                   = 19
	RTVxD                        = 20
	RTAniCursor                  = 21
	RTAniIcon                    = 22
	RTHtml                       = 23
	RTManifest                   = 24
)

// ImageResourceDirectory is the IMAGE_RESOURCE_DIRECTORY table header
// preceding a level's array of directory entries.
type ImageResourceDirectory struct {
	Characteristics      uint32 `json:"characteristics"`
	TimeDateStamp        uint32 `json:"time_date_stamp"`
	MajorVersion         uint16 `json:"major_version"`
	MinorVersion         uint16 `json:"minor_version"`
	NumberOfNamedEntries uint16 `json:"number_of_named_entries"`
	NumberOfIDEntries    uint16 `json:"number_of_id_entries"`
}

// ImageResourceDirectoryEntry is one IMAGE_RESOURCE_DIRECTORY_ENTRY: either
// a pointer to a child directory (Type/Name levels) or to the resource's
// data entry (Language level), distinguished by the top bit of OffsetToData.
type ImageResourceDirectoryEntry struct {
	Name         uint32 `json:"name"`
	OffsetToData uint32 `json:"offset_to_data"`
}

// ImageResourceDataEntry is the leaf IMAGE_RESOURCE_DATA_ENTRY describing
// one unit of raw resource data.
type ImageResourceDataEntry struct {
	OffsetToData uint32 `json:"offset_to_data"`
	Size         uint32 `json:"size"`
	CodePage     uint32 `json:"code_page"`
	Reserved     uint32 `json:"reserved"`
}

// ResourceDirectory is one level of the three-level Type/Name/Language tree.
type ResourceDirectory struct {
	Struct  ImageResourceDirectory   `json:"struct"`
	Entries []ResourceDirectoryEntry `json:"entries"`
}

// ResourceDirectoryEntry is one entry within a ResourceDirectory: either a
// child ResourceDirectory (IsResourceDir true) or a leaf ResourceDataEntry.
type ResourceDirectoryEntry struct {
	Struct        ImageResourceDirectoryEntry `json:"struct"`
	Name          string                      `json:"name"`
	ID            uint32                      `json:"id"`
	IsResourceDir bool                        `json:"is_resource_dir"`
	Directory     ResourceDirectory           `json:"directory"`
	Data          ResourceDataEntry           `json:"data"`
}

// ResourceDataEntry is a leaf resource: its data-entry struct plus the raw
// numeric language/sub-language IDs decoded from the Language-level entry's
// Name field.
type ResourceDataEntry struct {
	Struct  ImageResourceDataEntry `json:"struct"`
	Lang    uint32                 `json:"lang"`
	SubLang uint32                 `json:"sub_lang"`
}

func (img *Image) parseResourceDataEntry(rva uint32) ImageResourceDataEntry {
	dataEntry := ImageResourceDataEntry{}
	dataEntrySize := uint32(binary.Size(dataEntry))
	offset := img.GetOffsetFromRva(rva)
	if err := img.structUnpack(&dataEntry, offset, dataEntrySize); err != nil {
		img.log.Warnf("resource data entry at invalid RVA 0x%x", rva)
	}
	return dataEntry
}

func (img *Image) parseResourceDirectoryEntry(rva uint32) *ImageResourceDirectoryEntry {
	entry := ImageResourceDirectoryEntry{}
	entrySize := uint32(binary.Size(entry))
	offset := img.GetOffsetFromRva(rva)
	if err := img.structUnpack(&entry, offset, entrySize); err != nil {
		return nil
	}
	if entry == (ImageResourceDirectoryEntry{}) {
		return nil
	}
	return &entry
}

// doParseResourceDirectory recursively walks one level of the resource
// tree. dirs accumulates every sub-directory RVA visited on the path from
// the root; a directory entry whose OffsetToData points back at an RVA
// already in dirs is a cycle and is pruned rather than followed, per §9.
func (img *Image) doParseResourceDirectory(rva, size, baseRVA, level uint32, dirs []uint32) (ResourceDirectory, error) {
	resourceDir := ImageResourceDirectory{}
	resourceDirSize := uint32(binary.Size(resourceDir))
	offset := img.GetOffsetFromRva(rva)
	if err := img.structUnpack(&resourceDir, offset, resourceDirSize); err != nil {
		return ResourceDirectory{}, err
	}

	if baseRVA == 0 {
		baseRVA = rva
	}
	if len(dirs) == 0 {
		dirs = append(dirs, rva)
	}

	rva += resourceDirSize
	numberOfEntries := int(resourceDir.NumberOfNamedEntries + resourceDir.NumberOfIDEntries)
	if numberOfEntries > maxAllowedEntries {
		img.log.Warnf("resource directory claims %d entries, refusing to walk", numberOfEntries)
		return ResourceDirectory{}, nil
	}

	var dirEntries []ResourceDirectoryEntry
	for i := 0; i < numberOfEntries; i++ {
		res := img.parseResourceDirectoryEntry(rva)
		if res == nil {
			img.log.Warn("invalid resource directory entry RVA")
			break
		}

		nameIsString := (res.Name & 0x80000000) >> 31
		entryName := ""
		entryID := uint32(0)
		if nameIsString == 0 {
			entryID = res.Name
		} else {
			nameOffset := res.Name & 0x7FFFFFFF
			uStringOffset := img.GetOffsetFromRva(baseRVA + nameOffset)
			maxLen, err := img.ReadUint16(uStringOffset)
			if err != nil {
				break
			}
			entryName = img.readUnicodeStringAtRVA(baseRVA+nameOffset+2, uint32(maxLen)*2)
		}

		dataIsDirectory := (res.OffsetToData & 0x80000000) >> 31
		offsetToDirectory := res.OffsetToData & 0x7FFFFFFF

		if dataIsDirectory > 0 {
			if intInSlice(baseRVA+offsetToDirectory, dirs) {
				dirEntries = append(dirEntries, ResourceDirectoryEntry{
					Struct: *res, Name: entryName, ID: entryID,
					IsResourceDir: true,
				})
				rva += uint32(binary.Size(*res))
				continue
			}
			level++
			dirs = append(dirs, baseRVA+offsetToDirectory)
			child, _ := img.doParseResourceDirectory(baseRVA+offsetToDirectory, size-(rva-baseRVA), baseRVA, level, dirs)
			dirEntries = append(dirEntries, ResourceDirectoryEntry{
				Struct: *res, Name: entryName, ID: entryID,
				IsResourceDir: true, Directory: child,
			})
		} else {
			dataEntryStruct := img.parseResourceDataEntry(baseRVA + offsetToDirectory)
			dirEntries = append(dirEntries, ResourceDirectoryEntry{
				Struct: *res, Name: entryName, ID: entryID,
				IsResourceDir: false,
				Data: ResourceDataEntry{
					Struct:  dataEntryStruct,
					Lang:    res.Name & 0x3ff,
					SubLang: res.Name >> 10,
				},
			})
		}

		rva += uint32(binary.Size(*res))
	}

	return ResourceDirectory{Struct: resourceDir, Entries: dirEntries}, nil
}

// parseResourceDirectory parses the root of the .rsrc Type/Name/Language tree.
func (img *Image) parseResourceDirectory(rva, size uint32) error {
	root, err := img.doParseResourceDirectory(rva, size, 0, 0, nil)
	if err != nil {
		return err
	}
	img.resources = &root
	img.hasResources = true
	return nil
}
