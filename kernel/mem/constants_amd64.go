package mem

const (
	// PointerShift is equal to log2(unsafe.Sizeof(uintptr)).
	PointerShift = 3

	// PageShift is equal to log2(PageSize). Shifting an address right by
	// PageShift yields its frame (or page) number.
	PageShift = 12

	// PageSize defines the size of a physical frame and a virtual page.
	PageSize = Size(1 << PageShift)
)
