package vmm

import (
	"testing"

	"github.com/MelloOS/MelloOS/kernel/mem"
)

func TestPageTableEntryFlags(t *testing.T) {
	var pte pageTableEntry

	pte.SetFlags(FlagPresent | FlagRW)
	if !pte.HasFlags(FlagPresent | FlagRW) {
		t.Fatal("expected entry to have FlagPresent and FlagRW set")
	}
	if pte.HasFlags(FlagNoExecute) {
		t.Fatal("expected FlagNoExecute to be clear")
	}

	pte.SetFlags(FlagNoExecute)
	if !pte.HasFlags(FlagPresent | FlagRW | FlagNoExecute) {
		t.Fatal("expected all three flags to be set")
	}

	pte.ClearFlags(FlagRW)
	if pte.HasFlags(FlagRW) {
		t.Fatal("expected FlagRW to be cleared")
	}
	if !pte.HasFlags(FlagPresent | FlagNoExecute) {
		t.Fatal("expected the remaining flags to survive ClearFlags")
	}
}

func TestPageTableEntryFrame(t *testing.T) {
	var pte pageTableEntry

	pte.SetFlags(FlagPresent | FlagRW | FlagNoExecute)
	pte.SetFrame(mem.Frame(0x123))

	if exp, got := mem.Frame(0x123), pte.Frame(); got != exp {
		t.Fatalf("expected frame %d; got %d", exp, got)
	}
	if !pte.HasFlags(FlagPresent | FlagRW | FlagNoExecute) {
		t.Fatal("expected SetFrame to preserve the flag bits")
	}

	// Re-pointing the entry must not leak bits of the old frame.
	pte.SetFrame(mem.Frame(0x456))
	if exp, got := mem.Frame(0x456), pte.Frame(); got != exp {
		t.Fatalf("expected frame %d; got %d", exp, got)
	}
}
