package journal

import (
	"context"
	"testing"
	"time"
)

func TestJournal_RecordAndRecent(t *testing.T) {
	j, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	ctx := context.Background()
	duration := 12.5

	id1, err := j.Record(ctx, &Entry{
		Repo:   "git@git.example.com:team/app.git",
		Ref:    "refs/heads/main",
		Commit: "abc123",
		Status: "success",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if id1 == 0 {
		t.Error("Record returned zero id")
	}

	if _, err := j.Record(ctx, &Entry{
		Repo:            "git@git.example.com:team/app.git",
		Ref:             "refs/heads/main",
		Status:          "rejected_capacity",
		Message:         "too many builds in flight",
		DurationSeconds: &duration,
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	// Newest first.
	if entries[0].Status != "rejected_capacity" {
		t.Errorf("entries[0].Status = %q, want rejected_capacity", entries[0].Status)
	}
	if entries[0].DurationSeconds == nil || *entries[0].DurationSeconds != duration {
		t.Errorf("entries[0].DurationSeconds = %v, want %v", entries[0].DurationSeconds, duration)
	}
	if entries[1].Commit != "abc123" {
		t.Errorf("entries[1].Commit = %q", entries[1].Commit)
	}
	if entries[1].StartedAt.IsZero() || entries[1].StartedAt.After(time.Now().Add(time.Minute)) {
		t.Errorf("entries[1].StartedAt = %v", entries[1].StartedAt)
	}
}

func TestJournal_RecentHonorsLimit(t *testing.T) {
	j, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := j.Record(ctx, &Entry{Repo: "r", Ref: "refs/heads/main", Status: "success"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	entries, err := j.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("got %d entries, want 3", len(entries))
	}
}

func TestJournal_NothingSurvivesReopen(t *testing.T) {
	j, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := j.Record(context.Background(), &Entry{Repo: "r", Ref: "refs/heads/main", Status: "success"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	j.Close()

	j2, err := Open()
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j2.Close()

	entries, err := j2.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("journal persisted %d entries across reopen, want 0", len(entries))
	}
}
