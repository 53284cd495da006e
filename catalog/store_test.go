package catalog

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

const testSchema = `
CREATE TABLE users (uploader_id INTEGER PRIMARY KEY);
CREATE TABLE videos (
	numeric_id INTEGER PRIMARY KEY,
	short_id TEXT NOT NULL,
	uploader_id INTEGER NOT NULL,
	title TEXT,
	description TEXT,
	cover_uri TEXT,
	created_at INTEGER,
	season_id INTEGER,
	tags TEXT,
	touhou_status INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE video_parts (
	cid INTEGER PRIMARY KEY,
	numeric_id INTEGER NOT NULL REFERENCES videos(numeric_id),
	ordinal INTEGER,
	label TEXT,
	duration_seconds INTEGER,
	created_at INTEGER
);
`

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Skipf("sqlite not available: %v", err)
	}
	if _, err := raw.Exec(testSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	_ = raw.Close()

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleVideo() Video {
	return Video{
		NumericID:  1001,
		ShortID:    "BV1xyz",
		UploaderID: 42,
		Title:      "Touhou 14 TAS",
		CreatedAt:  1700000000,
		Tags:       []string{"Touhou", "TAS"},
		Parts: []VideoPart{
			{PartID: 1, Ordinal: 1, Label: "P1", DurationSeconds: 600, CreatedAt: 1700000000},
			{PartID: 2, Ordinal: 2, Label: "P2", DurationSeconds: 300, CreatedAt: 1700000001},
		},
		Classification: AutoMatch,
	}
}

func TestSaveVideoInsertsVideoAndParts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveVideo(ctx, sampleVideo()); err != nil {
		t.Fatalf("SaveVideo: %v", err)
	}

	var title string
	var status int
	if err := store.db.QueryRow(`SELECT title, touhou_status FROM videos WHERE numeric_id = ?`, 1001).Scan(&title, &status); err != nil {
		t.Fatalf("query video: %v", err)
	}
	if title != "Touhou 14 TAS" || Classification(status) != AutoMatch {
		t.Fatalf("unexpected row: title=%q status=%d", title, status)
	}

	var partCount int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM video_parts WHERE numeric_id = ?`, 1001).Scan(&partCount); err != nil {
		t.Fatalf("query parts: %v", err)
	}
	if partCount != 2 {
		t.Fatalf("expected 2 parts, got %d", partCount)
	}
}

func TestSaveVideoIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := store.SaveVideo(ctx, sampleVideo()); err != nil {
			t.Fatalf("SaveVideo run %d: %v", i, err)
		}
	}

	var videoCount, partCount int
	_ = store.db.QueryRow(`SELECT COUNT(*) FROM videos WHERE numeric_id = ?`, 1001).Scan(&videoCount)
	_ = store.db.QueryRow(`SELECT COUNT(*) FROM video_parts WHERE numeric_id = ?`, 1001).Scan(&partCount)
	if videoCount != 1 {
		t.Fatalf("expected exactly 1 video row after re-ingest, got %d", videoCount)
	}
	if partCount != 2 {
		t.Fatalf("expected exactly 2 part rows after re-ingest, got %d", partCount)
	}
}

func TestSaveVideoReplacesStaleParts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v := sampleVideo()
	if err := store.SaveVideo(ctx, v); err != nil {
		t.Fatalf("SaveVideo: %v", err)
	}

	v.Parts = []VideoPart{{PartID: 1, Ordinal: 1, Label: "P1", DurationSeconds: 601, CreatedAt: 1700000002}}
	if err := store.SaveVideo(ctx, v); err != nil {
		t.Fatalf("SaveVideo update: %v", err)
	}

	var partCount int
	_ = store.db.QueryRow(`SELECT COUNT(*) FROM video_parts WHERE numeric_id = ?`, 1001).Scan(&partCount)
	if partCount != 1 {
		t.Fatalf("expected stale part 2 removed, got %d parts", partCount)
	}
}

func TestSaveVideoNeverDowngradesConfirmedClassification(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seed := sampleVideo()
	seed.Classification = ConfirmedNoMatch
	if err := store.SaveVideo(ctx, seed); err != nil {
		t.Fatalf("seed SaveVideo: %v", err)
	}

	reingest := sampleVideo()
	reingest.Classification = AutoMatch // as if Classify() ran fresh and found a match
	if err := store.SaveVideo(ctx, reingest); err != nil {
		t.Fatalf("reingest SaveVideo: %v", err)
	}

	var status int
	_ = store.db.QueryRow(`SELECT touhou_status FROM videos WHERE numeric_id = ?`, 1001).Scan(&status)
	if Classification(status) != ConfirmedNoMatch {
		t.Fatalf("expected confirmed_no_match to survive re-ingest, got %v", Classification(status))
	}
}

func TestListUploaderIDsReturnsAscending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []int64{300, 100, 200} {
		if _, err := store.db.Exec(`INSERT INTO users (uploader_id) VALUES (?)`, id); err != nil {
			t.Fatalf("seed uploader %d: %v", id, err)
		}
	}

	ids, err := store.ListUploaderIDs(ctx)
	if err != nil {
		t.Fatalf("ListUploaderIDs: %v", err)
	}
	want := []int64{100, 200, 300}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v, want %v", ids, want)
		}
	}
}
