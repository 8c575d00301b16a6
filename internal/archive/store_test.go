package archive

import (
	"context"
	"testing"
)

func TestMessageLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	first := ArchivedMessage{Room: "lobby", UserID: "u1", UserName: "alice", Body: "hello", Kind: "chat", Timestamp: 100}
	second := ArchivedMessage{Room: "lobby", UserID: "u2", UserName: "bob", Body: "hi", Kind: "chat", Timestamp: 101}
	if err := store.AppendMessage(ctx, first); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := store.AppendMessage(ctx, second); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	// Another room must not bleed into lobby reads.
	other := ArchivedMessage{Room: "dev", UserID: "u3", UserName: "carol", Body: "yo", Kind: "chat", Timestamp: 102}
	if err := store.AppendMessage(ctx, other); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	msgs, err := store.RecentMessages(ctx, "lobby", 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Body != "hello" || msgs[1].Body != "hi" {
		t.Fatalf("wrong order: %+v", msgs)
	}
}

func TestReplaceHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	stale := ArchivedMessage{Room: "lobby", UserID: "u1", UserName: "alice", Body: "old", Kind: "chat", Timestamp: 1}
	if err := store.AppendMessage(ctx, stale); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	snapshot := []ArchivedMessage{
		{UserID: "u2", UserName: "bob", Body: "one", Kind: "chat", Timestamp: 10},
		{UserID: "u2", UserName: "bob", Body: "two", Kind: "chat", Timestamp: 11},
	}
	if err := store.ReplaceHistory(ctx, "lobby", snapshot); err != nil {
		t.Fatalf("ReplaceHistory: %v", err)
	}

	msgs, err := store.RecentMessages(ctx, "lobby", 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected snapshot to replace archive, got %d rows", len(msgs))
	}
	if msgs[0].Body != "one" || msgs[1].Body != "two" {
		t.Fatalf("unexpected rows: %+v", msgs)
	}

	// Replacing again with the same snapshot is idempotent.
	if err := store.ReplaceHistory(ctx, "lobby", snapshot); err != nil {
		t.Fatalf("ReplaceHistory again: %v", err)
	}
	msgs, err = store.RecentMessages(ctx, "lobby", 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 rows after idempotent replace, got %d", len(msgs))
	}
}

func TestRecentMessagesLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for i := 0; i < 5; i++ {
		msg := ArchivedMessage{Room: "lobby", UserID: "u1", UserName: "alice", Body: string(rune('a' + i)), Kind: "chat", Timestamp: int64(i)}
		if err := store.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
	msgs, err := store.RecentMessages(ctx, "lobby", 3)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	// The newest three, oldest first.
	if msgs[0].Body != "c" || msgs[2].Body != "e" {
		t.Fatalf("unexpected window: %+v", msgs)
	}
}

func TestDisplayName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	name, err := store.LoadDisplayName(ctx)
	if err != nil {
		t.Fatalf("LoadDisplayName: %v", err)
	}
	if name != "" {
		t.Fatalf("expected empty name, got %q", name)
	}
	if err := store.SaveDisplayName(ctx, "alice"); err != nil {
		t.Fatalf("SaveDisplayName: %v", err)
	}
	if err := store.SaveDisplayName(ctx, "alice2"); err != nil {
		t.Fatalf("SaveDisplayName overwrite: %v", err)
	}
	name, err = store.LoadDisplayName(ctx)
	if err != nil {
		t.Fatalf("LoadDisplayName: %v", err)
	}
	if name != "alice2" {
		t.Fatalf("expected alice2, got %q", name)
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := "sqlite://file:" + t.Name() + "?mode=memory&cache=shared"
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
