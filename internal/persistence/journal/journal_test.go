package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"gridbank.ai/internal/currency"
)

func tx(amount int64) currency.Transaction {
	return currency.Transaction{
		ID:        uuid.New(),
		From:      uuid.New(),
		To:        currency.BankerID,
		ToObject:  currency.ObjectRef{ID: uuid.New(), Name: "Tip Jar"},
		Amount:    amount,
		Kind:      currency.KindPayObject,
		CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 5, 1, 10, 59, 0, 0, time.UTC)
	w := NewWriter(dir)
	w.SetClock(func() time.Time { return now })

	first := tx(1)
	if err := w.Append(first); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Append(tx(2)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := w.Append(tx(3)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := Files(dir)
	if err != nil || len(files) != 2 {
		t.Fatalf("files: %v %v", files, err)
	}
	if filepath.Base(files[0]) != "transactions-2024-05-01-10.jsonl.zst" {
		t.Fatalf("unexpected name %s", files[0])
	}
	h, err := HourOf(files[1])
	if err != nil || !h.Equal(time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("HourOf: %v %v", h, err)
	}

	entries, err := ReadFile(files[0])
	if err != nil || len(entries) != 2 {
		t.Fatalf("ReadFile: %d %v", len(entries), err)
	}
	if entries[0].ID != first.ID || entries[0].ToObject != first.ToObject || entries[0].Seq != 1 {
		t.Fatalf("entry mismatch: %+v", entries[0])
	}

	all, err := ReadDir(dir)
	if err != nil || len(all) != 3 || all[2].Amount != 3 || all[2].Seq != 3 {
		t.Fatalf("ReadDir: %+v %v", all, err)
	}
}

func TestWriter_ReopenAppendsFrame(t *testing.T) {
	dir := t.TempDir()
	now := func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	for i := 0; i < 2; i++ {
		w := NewWriter(dir)
		w.SetClock(now)
		if err := w.Append(tx(int64(i))); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	all, err := ReadDir(dir)
	if err != nil || len(all) != 2 {
		t.Fatalf("ReadDir after reopen: %d %v", len(all), err)
	}
}

func TestHourOf_Rejects(t *testing.T) {
	if _, err := HourOf("/tmp/events-2024.jsonl.zst"); err == nil {
		t.Fatalf("expected error")
	}
}
