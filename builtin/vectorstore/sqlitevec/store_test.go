package sqlitevec

import (
	"testing"
	"time"
)

// Tests here avoid opening databases; the full lifecycle is covered
// through the memory store in the collection package.

func TestExistsMissingCollection(t *testing.T) {
	s := New(Config{Dir: t.TempDir()})

	if s.Exists("docs_shared") {
		t.Error("Exists reported a collection that was never created")
	}
}

func TestRemoveMissingCollection(t *testing.T) {
	s := New(Config{Dir: t.TempDir(), RemoveAttempts: 2, RemoveBackoff: time.Millisecond})

	gone, err := s.Remove("docs_shared")
	if err != nil {
		t.Fatal(err)
	}
	if !gone {
		t.Error("removing an absent collection must report gone")
	}
}

func TestListEmptyDir(t *testing.T) {
	s := New(Config{Dir: t.TempDir()})

	names, err := s.List("history_")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Errorf("List = %v, want empty", names)
	}
}

func TestFloatsToBytes(t *testing.T) {
	b := floatsToBytes([]float32{1, 2, 3})
	if len(b) != 12 {
		t.Errorf("len = %d, want 12", len(b))
	}
}
