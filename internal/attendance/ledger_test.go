package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC)

func newTestLedger(store Store) *Ledger {
	return NewLedger(store, Options{
		Location: time.UTC,
		Timeout:  time.Second,
		Now:      func() time.Time { return fixedNow },
	})
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"cs101", "CS101"},
		{"  cs 101 ", "CS 101"},
		{"CS  101", "CS 101"},
		{"physics", "PHYSICS"},
		{"\u00e9tude", "\u00c9TUDE"},
		{"e\u0301tude", "\u00c9TUDE"},
		{"   ", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := NormalizeLabel(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeLabel(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLedgerKey(t *testing.T) {
	l := newTestLedger(NewMemoryStore())
	k, err := l.Key(" R1 ", "cs101 ", " maths")
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	want := Key{Identity: "R1", ClassCode: "CS101", Subject: "MATHS", Day: "2026-03-09"}
	if k != want {
		t.Errorf("Key() = %+v, want %+v", k, want)
	}

	if _, err := l.Key("R1", "  ", "MATHS"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Key() with blank class error = %v, want ErrInvalidKey", err)
	}
}

func TestLedgerKeyUsesSchoolTimeZone(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	l := NewLedger(NewMemoryStore(), Options{Location: loc, Now: func() time.Time { return fixedNow }})
	k, err := l.Key("R1", "CS101", "MATHS")
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	if k.Day != "2026-03-10" {
		t.Errorf("Key().Day = %q, want 2026-03-10", k.Day)
	}
}

func TestRecordIfAbsentSequentialDuplicate(t *testing.T) {
	store := NewMemoryStore()
	l := newTestLedger(store)
	ctx := context.Background()
	key, _ := l.Key("R1", "CS101", "MATHS")

	first, err := l.RecordIfAbsent(ctx, key, 92)
	if err != nil {
		t.Fatalf("RecordIfAbsent() error = %v", err)
	}
	if first.Status != Written || first.Record.ID == 0 || first.Record.Confidence != 92 {
		t.Errorf("first outcome = %+v, want Written with ID and confidence", first)
	}

	second, err := l.RecordIfAbsent(ctx, key, 95)
	if err != nil {
		t.Fatalf("RecordIfAbsent() error = %v", err)
	}
	if second.Status != Duplicate {
		t.Errorf("second outcome = %v, want Duplicate", second.Status)
	}

	history, err := l.History(ctx, "R1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 || history[0].Confidence != 92 {
		t.Errorf("History() = %+v, want exactly the first record", history)
	}
}

func TestRecordIfAbsentConcurrent(t *testing.T) {
	const n = 64
	l := newTestLedger(NewMemoryStore())
	key, _ := l.Key("R1", "CS101", "MATHS")

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		written    int
		duplicates int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := l.RecordIfAbsent(context.Background(), key, 90)
			if err != nil {
				t.Errorf("RecordIfAbsent() error = %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch out.Status {
			case Written:
				written++
			case Duplicate:
				duplicates++
			}
		}()
	}
	wg.Wait()

	if written != 1 || duplicates != n-1 {
		t.Errorf("written = %d, duplicates = %d, want 1 and %d", written, duplicates, n-1)
	}
}

func TestRecordIfAbsentDistinctKeys(t *testing.T) {
	l := newTestLedger(NewMemoryStore())
	ctx := context.Background()
	keys := []Key{
		{Identity: "R1", ClassCode: "CS101", Subject: "MATHS", Day: "2026-03-09"},
		{Identity: "R1", ClassCode: "CS101", Subject: "PHYSICS", Day: "2026-03-09"},
		{Identity: "R1", ClassCode: "CS102", Subject: "MATHS", Day: "2026-03-09"},
		{Identity: "R1", ClassCode: "CS101", Subject: "MATHS", Day: "2026-03-10"},
		{Identity: "R2", ClassCode: "CS101", Subject: "MATHS", Day: "2026-03-09"},
	}
	for _, k := range keys {
		out, err := l.RecordIfAbsent(ctx, k, 90)
		if err != nil {
			t.Fatalf("RecordIfAbsent(%+v) error = %v", k, err)
		}
		if out.Status != Written {
			t.Errorf("RecordIfAbsent(%+v) = %v, want Written", k, out.Status)
		}
	}
}

func TestRecordIfAbsentInvalidKey(t *testing.T) {
	l := newTestLedger(NewMemoryStore())
	_, err := l.RecordIfAbsent(context.Background(), Key{Identity: "R1", ClassCode: "CS101", Subject: "MATHS", Day: "09/03/2026"}, 90)
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("RecordIfAbsent() error = %v, want ErrInvalidKey", err)
	}
}

type failingStore struct{ err error }

func (f failingStore) InsertIfAbsent(context.Context, Record) (Record, bool, error) {
	return Record{}, false, f.err
}

func (f failingStore) ListByIdentity(context.Context, string) ([]Record, error) {
	return nil, f.err
}

func TestRecordIfAbsentStorageError(t *testing.T) {
	storeErr := errors.New("connection reset")
	l := newTestLedger(failingStore{err: storeErr})
	key, _ := l.Key("R1", "CS101", "MATHS")
	if _, err := l.RecordIfAbsent(context.Background(), key, 90); !errors.Is(err, storeErr) {
		t.Errorf("RecordIfAbsent() error = %v, want wrapped store error", err)
	}
	if _, err := l.History(context.Background(), "R1"); !errors.Is(err, storeErr) {
		t.Errorf("History() error = %v, want wrapped store error", err)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for i, day := range []string{"2026-03-01", "2026-03-03", "2026-03-02"} {
		_, _, err := store.InsertIfAbsent(ctx, Record{
			Key:  Key{Identity: "R1", ClassCode: "CS101", Subject: "MATHS", Day: day},
			Time: time.Date(2026, 3, 1+i, 9, 0, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("InsertIfAbsent() error = %v", err)
		}
	}
	records, err := newTestLedger(store).History(ctx, "R1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	for i := 1; i < len(records); i++ {
		if records[i].Time.After(records[i-1].Time) {
			t.Errorf("records not newest first: %v before %v", records[i-1].Time, records[i].Time)
		}
	}
}
