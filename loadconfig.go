package pe

import "encoding/binary"

// ImageLoadConfigCodeIntegrity carries code-integrity info embedded in the
// Load Config directory.
type ImageLoadConfigCodeIntegrity struct {
	Flags         uint16 `json:"flags"`
	Catalog       uint16 `json:"catalog"`
	CatalogOffset uint32 `json:"catalog_offset"`
	Reserved      uint32 `json:"reserved"`
}

// ImageLoadConfigDirectory32 is the base IMAGE_LOAD_CONFIG_DIRECTORY
// structure for x86 binaries. CFG/DVRT/Enclave/CHPE extension tables that
// hang off the pointer fields below are out of scope; callers needing them
// can walk the pointers themselves.
type ImageLoadConfigDirectory32 struct {
	Size                           uint32                       `json:"size"`
	TimeDateStamp                  uint32                       `json:"time_date_stamp"`
	MajorVersion                   uint16                       `json:"major_version"`
	MinorVersion                   uint16                       `json:"minor_version"`
	GlobalFlagsClear               uint32                       `json:"global_flags_clear"`
	GlobalFlagsSet                 uint32                       `json:"global_flags_set"`
	CriticalSectionDefaultTimeout  uint32                       `json:"critical_section_default_timeout"`
	DeCommitFreeBlockThreshold     uint32                       `json:"de_commit_free_block_threshold"`
	DeCommitTotalFreeThreshold     uint32                       `json:"de_commit_total_free_threshold"`
	LockPrefixTable                uint32                       `json:"lock_prefix_table"`
	MaximumAllocationSize          uint32                       `json:"maximum_allocation_size"`
	VirtualMemoryThreshold         uint32                       `json:"virtual_memory_threshold"`
	ProcessHeapFlags               uint32                       `json:"process_heap_flags"`
	ProcessAffinityMask            uint32                       `json:"process_affinity_mask"`
	CSDVersion                     uint16                       `json:"csd_version"`
	DependentLoadFlags             uint16                       `json:"dependent_load_flags"`
	EditList                       uint32                       `json:"edit_list"`
	SecurityCookie                 uint32                       `json:"security_cookie"`
	SEHandlerTable                 uint32                       `json:"se_handler_table"`
	SEHandlerCount                 uint32                       `json:"se_handler_count"`
	GuardCFCheckFunctionPointer    uint32                       `json:"guard_cf_check_function_pointer"`
	GuardCFDispatchFunctionPointer uint32                       `json:"guard_cf_dispatch_function_pointer"`
	GuardCFFunctionTable           uint32                       `json:"guard_cf_function_table"`
	GuardCFFunctionCount           uint32                       `json:"guard_cf_function_count"`
	GuardFlags                     uint32                       `json:"guard_flags"`
	CodeIntegrity                  ImageLoadConfigCodeIntegrity `json:"code_integrity"`
	GuardAddressTakenIATEntryTable uint32                       `json:"guard_address_taken_iat_entry_table"`
	GuardAddressTakenIATEntryCount uint32                       `json:"guard_address_taken_iat_entry_count"`
	GuardLongJumpTargetTable       uint32                       `json:"guard_long_jump_target_table"`
	GuardLongJumpTargetCount       uint32                       `json:"guard_long_jump_target_count"`
}

// ImageLoadConfigDirectory64 is the base IMAGE_LOAD_CONFIG_DIRECTORY
// structure for x64 binaries.
type ImageLoadConfigDirectory64 struct {
	Size                           uint32                       `json:"size"`
	TimeDateStamp                  uint32                       `json:"time_date_stamp"`
	MajorVersion                   uint16                       `json:"major_version"`
	MinorVersion                   uint16                       `json:"minor_version"`
	GlobalFlagsClear               uint32                       `json:"global_flags_clear"`
	GlobalFlagsSet                 uint32                       `json:"global_flags_set"`
	CriticalSectionDefaultTimeout  uint32                       `json:"critical_section_default_timeout"`
	DeCommitFreeBlockThreshold     uint64                       `json:"de_commit_free_block_threshold"`
	DeCommitTotalFreeThreshold     uint64                       `json:"de_commit_total_free_threshold"`
	LockPrefixTable                uint64                       `json:"lock_prefix_table"`
	MaximumAllocationSize          uint64                       `json:"maximum_allocation_size"`
	VirtualMemoryThreshold         uint64                       `json:"virtual_memory_threshold"`
	ProcessAffinityMask            uint64                       `json:"process_affinity_mask"`
	ProcessHeapFlags               uint32                       `json:"process_heap_flags"`
	CSDVersion                     uint16                       `json:"csd_version"`
	DependentLoadFlags             uint16                       `json:"dependent_load_flags"`
	EditList                       uint64                       `json:"edit_list"`
	SecurityCookie                 uint64                       `json:"security_cookie"`
	SEHandlerTable                 uint64                       `json:"se_handler_table"`
	SEHandlerCount                 uint64                       `json:"se_handler_count"`
	GuardCFCheckFunctionPointer    uint64                       `json:"guard_cf_check_function_pointer"`
	GuardCFDispatchFunctionPointer uint64                       `json:"guard_cf_dispatch_function_pointer"`
	GuardCFFunctionTable           uint64                       `json:"guard_cf_function_table"`
	GuardCFFunctionCount           uint64                       `json:"guard_cf_function_count"`
	GuardFlags                     uint32                       `json:"guard_flags"`
	CodeIntegrity                  ImageLoadConfigCodeIntegrity `json:"code_integrity"`
	GuardAddressTakenIATEntryTable uint64                       `json:"guard_address_taken_iat_entry_table"`
	GuardAddressTakenIATEntryCount uint64                       `json:"guard_address_taken_iat_entry_count"`
	GuardLongJumpTargetTable       uint64                       `json:"guard_long_jump_target_table"`
	GuardLongJumpTargetCount       uint64                       `json:"guard_long_jump_target_count"`
}

// LoadConfig is the Load Config directory: its raw struct (ImageLoadConfigDirectory32
// or ImageLoadConfigDirectory64), trimmed to the base fields common across
// Windows versions.
type LoadConfig struct {
	Struct interface{} `json:"struct"`
}

// parseLoadConfigDirectory parses the Load Config directory's base struct.
// It always reads the full base struct for the image's width, bounds-checked
// against the image; neither the directory size nor the struct's own Size
// field shortens the read.
func (img *Image) parseLoadConfigDirectory(rva, size uint32) error {
	fileOffset := img.GetOffsetFromRva(rva)

	lc := LoadConfig{}
	if img.is64 {
		dir := ImageLoadConfigDirectory64{}
		dirSize := uint32(binary.Size(dir))
		if err := img.structUnpack(&dir, fileOffset, dirSize); err != nil {
			return err
		}
		lc.Struct = dir
	} else {
		dir := ImageLoadConfigDirectory32{}
		dirSize := uint32(binary.Size(dir))
		if err := img.structUnpack(&dir, fileOffset, dirSize); err != nil {
			return err
		}
		lc.Struct = dir
	}

	img.loadConfig = lc
	img.hasLoadConfig = true
	return nil
}
