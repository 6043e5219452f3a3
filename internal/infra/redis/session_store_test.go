package redis

import (
	"testing"
	"time"

	"wordfall-service/internal/app"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewSessionStore(newClient(mr), time.Minute)

	store.Put(app.NewSession("s1", sampleBank(), app.DefaultSessionConfig()))
	if !mr.Exists("wordfall:session:s1") {
		t.Fatalf("expected redis key to be set")
	}
	if _, ok := store.Get("s1"); !ok {
		t.Fatalf("expected session kept locally")
	}

	store.Delete("s1")
	if mr.Exists("wordfall:session:s1") {
		t.Fatalf("expected redis key to be removed")
	}
}
