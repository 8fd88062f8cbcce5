package session

import (
	"context"
	"testing"
	"time"
)

func TestArchiverRetriesTransientFailures(t *testing.T) {
	store := newMemoryArchive()
	store.failures = 2
	archiver, err := NewArchiver(store, ArchiverOptions{InitialInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("new archiver: %v", err)
	}
	if err := archiver.Save(context.Background(), Snapshot{SessionID: "ses_1", SubmissionID: "sub-1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if store.puts != 3 {
		t.Fatalf("puts = %d, want 3", store.puts)
	}
	snap, err := archiver.Get(context.Background(), "sub-1")
	if err != nil || snap.SessionID != "ses_1" {
		t.Fatalf("get = %+v, %v", snap, err)
	}
}

func TestArchiverGivesUpAfterMaxTries(t *testing.T) {
	store := newMemoryArchive()
	store.failures = 10
	archiver, _ := NewArchiver(store, ArchiverOptions{MaxTries: 3, InitialInterval: time.Millisecond})
	if err := archiver.Save(context.Background(), Snapshot{SessionID: "ses_1", SubmissionID: "sub-1"}); err == nil {
		t.Fatal("expected save to fail")
	}
	if store.puts != 3 {
		t.Fatalf("puts = %d, want 3", store.puts)
	}
}

func TestArchiverSaveAsync(t *testing.T) {
	store := newMemoryArchive()
	archiver, _ := NewArchiver(store, ArchiverOptions{InitialInterval: time.Millisecond})
	if !archiver.SaveAsync(Snapshot{SessionID: "ses_2", SubmissionID: "sub-2"}) {
		t.Fatal("expected save to be accepted")
	}
	archiver.Close()
	if !store.stored("sub-2") {
		t.Fatal("snapshot not stored")
	}
}

func TestArchiverRejectsSavesAfterClose(t *testing.T) {
	store := newMemoryArchive()
	archiver, _ := NewArchiver(store, ArchiverOptions{InitialInterval: time.Millisecond})
	archiver.Close()
	if archiver.SaveAsync(Snapshot{SessionID: "ses_3", SubmissionID: "sub-3"}) {
		t.Fatal("expected closed archiver to reject save")
	}
	archiver.Close()
	if store.puts != 0 {
		t.Fatalf("puts = %d, want 0", store.puts)
	}
}

func TestArchiverCloseWhileSessionsEnd(t *testing.T) {
	store := newMemoryArchive()
	archiver, _ := NewArchiver(store, ArchiverOptions{InitialInterval: time.Millisecond})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			archiver.SaveAsync(Snapshot{SessionID: "ses_4", SubmissionID: "sub-4"})
		}
	}()
	archiver.Close()
	<-done
	archiver.Close()
}

func TestNewArchiverRequiresStore(t *testing.T) {
	if _, err := NewArchiver(nil, ArchiverOptions{}); err == nil {
		t.Fatal("expected error")
	}
}
