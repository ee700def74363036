package kernel

// Error describes an error raised by one of the kernel subsystems. Kernel
// errors are always defined as package-level variables pointing to an Error
// value; the core must never allocate at the point where an error occurs.
type Error struct {
	// The subsystem where the error occurred (e.g. "pmm", "kheap").
	Module string

	// The error message.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
