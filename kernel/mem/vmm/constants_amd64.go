package vmm

const (
	// pageLevels is the number of translation levels on amd64
	// (PML4 -> PDPT -> PD -> PT).
	pageLevels = 4

	// tableEntries is the number of 8-byte entries in a table node.
	tableEntries = 512
)

var (
	// pageLevelBits is the number of virtual address bits consumed by
	// each level; 9 bits select one of the 512 entries.
	pageLevelBits = [pageLevels]uint8{9, 9, 9, 9}

	// pageLevelShifts is the right-shift that isolates each level's
	// entry index within a virtual address.
	pageLevelShifts = [pageLevels]uint8{39, 30, 21, 12}
)
