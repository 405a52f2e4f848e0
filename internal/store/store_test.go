package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/abelbrown/projector/internal/coord"
)

// Verify Store implements coord.Recorder at compile time.
var _ coord.Recorder = (*Store)(nil)

func openTest(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpen(t *testing.T) {
	st := openTest(t)

	for _, table := range []string{"corpora", "sentences", "runs"} {
		var name string
		err := st.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Fatalf("%s table not created: %v", table, err)
		}
	}
}

func TestOpenFileUsesWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projector.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()

	var mode string
	if err := st.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("expected wal journal mode, got %q", mode)
	}
}

func TestSaveCorpusPreservesOrder(t *testing.T) {
	st := openTest(t)

	sentences := []string{"the cat sat", "on the mat", "and purred", "loudly"}
	c, err := st.SaveCorpus("cats", "cats.txt", sentences)
	if err != nil {
		t.Fatalf("SaveCorpus failed: %v", err)
	}
	if c.ID == 0 {
		t.Error("expected a generated id")
	}
	if c.Sentences != 4 {
		t.Errorf("expected 4 sentences, got %d", c.Sentences)
	}

	got, err := st.Sentences("cats")
	if err != nil {
		t.Fatalf("Sentences failed: %v", err)
	}
	if len(got) != len(sentences) {
		t.Fatalf("expected %d sentences, got %d", len(sentences), len(got))
	}
	for i := range sentences {
		if got[i] != sentences[i] {
			t.Errorf("sentence %d: expected %q, got %q", i, sentences[i], got[i])
		}
	}
}

func TestSaveCorpusReplaces(t *testing.T) {
	st := openTest(t)

	if _, err := st.SaveCorpus("c", "a.txt", []string{"one", "two", "three"}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.SaveCorpus("c", "b.txt", []string{"uno"}); err != nil {
		t.Fatal(err)
	}

	got, err := st.Sentences("c")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "uno" {
		t.Errorf("expected replacement corpus, got %v", got)
	}

	list, err := st.ListCorpora()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Source != "b.txt" {
		t.Errorf("expected one corpus from b.txt, got %+v", list)
	}

	var orphans int
	if err := st.db.QueryRow("SELECT COUNT(*) FROM sentences").Scan(&orphans); err != nil {
		t.Fatal(err)
	}
	if orphans != 1 {
		t.Errorf("expected 1 sentence row after replace, got %d", orphans)
	}
}

func TestSaveCorpusRequiresName(t *testing.T) {
	st := openTest(t)
	if _, err := st.SaveCorpus("", "", []string{"x"}); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestSentencesNotFound(t *testing.T) {
	st := openTest(t)
	_, err := st.Sentences("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListAndDeleteCorpora(t *testing.T) {
	st := openTest(t)

	for i := range 3 {
		if _, err := st.SaveCorpus(fmt.Sprintf("c%d", i), "", []string{"a", "b"}); err != nil {
			t.Fatal(err)
		}
	}

	list, err := st.ListCorpora()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 corpora, got %d", len(list))
	}

	if err := st.DeleteCorpus("c1"); err != nil {
		t.Fatalf("DeleteCorpus failed: %v", err)
	}
	if err := st.DeleteCorpus("c1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}

	list, err = st.ListCorpora()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 corpora after delete, got %d", len(list))
	}
}

func TestRecordAndListRuns(t *testing.T) {
	st := openTest(t)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	records := []coord.RunRecord{
		{Job: 1, RunID: "a", Model: "m", Precision: "fp32", Sentences: 10, Status: coord.StatusSuperseded, Started: base},
		{Job: 2, RunID: "b", Model: "m", Precision: "fp32", Sentences: 10, Status: coord.StatusError,
			Message: "model exploded", Started: base.Add(time.Second), Elapsed: 250 * time.Millisecond},
		{Job: 3, RunID: "c", Model: "m", Precision: "q8", Sentences: 12, Status: coord.StatusDone,
			Started: base.Add(2 * time.Second), Elapsed: 1500 * time.Millisecond},
	}
	for _, rec := range records {
		if err := st.RecordRun(rec); err != nil {
			t.Fatalf("RecordRun failed: %v", err)
		}
	}

	runs, err := st.RecentRuns(2)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != "c" || runs[1].RunID != "b" {
		t.Errorf("expected newest first, got %s, %s", runs[0].RunID, runs[1].RunID)
	}
	if runs[0].ElapsedMs != 1500 {
		t.Errorf("expected 1500ms, got %v", runs[0].ElapsedMs)
	}
	if runs[0].Job != 3 || runs[0].Precision != "q8" || runs[0].Sentences != 12 {
		t.Errorf("unexpected run fields: %+v", runs[0])
	}
	if runs[1].Message != "model exploded" || runs[1].Status != "error" {
		t.Errorf("unexpected error run: %+v", runs[1])
	}
	if !runs[0].Started.Equal(base.Add(2 * time.Second)) {
		t.Errorf("started_at round trip: got %v", runs[0].Started)
	}
}

func TestConcurrentRecordRun(t *testing.T) {
	st := openTest(t)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- st.RecordRun(coord.RunRecord{Job: coord.JobID(i), RunID: fmt.Sprint(i), Model: "m",
				Status: coord.StatusDone, Started: time.Now()})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent RecordRun failed: %v", err)
		}
	}

	runs, err := st.RecentRuns(100)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 20 {
		t.Errorf("expected 20 runs, got %d", len(runs))
	}
	ids := map[int64]bool{}
	for _, r := range runs {
		if ids[r.ID] {
			t.Fatalf("duplicate row id %d", r.ID)
		}
		ids[r.ID] = true
	}
}
