package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Store is C7: transactional upsert of a video record and its parts over a
// local single-file relational database (spec.md §4.7, §6 "Persistent
// state"). The handle is shared across workers and serialized by sqlite's
// own single-writer discipline plus database/sql's connection pool —
// grounded on the teacher's chat/auto.go begin/commit/rollback idiom, ported
// from Postgres-style $n placeholders to sqlite's ? placeholders.
type Store struct {
	db *sql.DB
}

// Open opens (and does not itself create schema for) the sqlite file at path.
// Schema creation is the out-of-scope initializer's responsibility (spec.md
// §1); the columns this package assumes are documented on SaveVideo.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1) // one writer; avoids interleaved transactions on a single file (§4.7)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// ListUploaderIDs returns every uploader id the core should process, in
// ascending order for deterministic run ordering.
func (s *Store) ListUploaderIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uploader_id FROM users ORDER BY uploader_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list uploader ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan uploader id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// scopedTransaction begins a transaction, runs fn, and commits on normal
// return or rolls back on any error — the begin/commit/rollback pair the
// design notes require (§9), expressed with defer rather than the source's
// try/finally.
func (s *Store) scopedTransaction(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, beginErr := s.db.BeginTx(ctx, nil)
	if beginErr != nil {
		return fmt.Errorf("begin transaction: %w", beginErr)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}

// SaveVideo performs an upsert-or-replace of v's video row and all of its
// part rows, atomically (invariant 1): either the full set commits or
// nothing does. It reads the video's pre-existing classification to honor
// the no-downgrade rule (invariant 4) before overwriting the row.
//
// Assumed schema (owned by the out-of-scope initializer, §6):
//
//	videos(numeric_id PK, short_id, uploader_id, title, description, cover_uri,
//	       created_at, season_id, tags, touhou_status)
//	video_parts(cid PK, numeric_id FK, ordinal, label, duration_seconds, created_at)
func (s *Store) SaveVideo(ctx context.Context, v Video) error {
	return s.scopedTransaction(ctx, func(tx *sql.Tx) error {
		var existing int
		err := tx.QueryRowContext(ctx, `SELECT touhou_status FROM videos WHERE numeric_id = ?`, v.NumericID).Scan(&existing)
		switch {
		case err == sql.ErrNoRows:
			// first observation; nothing to preserve
		case err != nil:
			return fmt.Errorf("read prior classification: %w", err)
		default:
			if prior := Classification(existing); prior.IsConfirmed() {
				v.Classification = prior
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO videos (numeric_id, short_id, uploader_id, title, description, cover_uri, created_at, season_id, tags, touhou_status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(numeric_id) DO UPDATE SET
				short_id=excluded.short_id, uploader_id=excluded.uploader_id, title=excluded.title,
				description=excluded.description, cover_uri=excluded.cover_uri, created_at=excluded.created_at,
				season_id=excluded.season_id, tags=excluded.tags, touhou_status=excluded.touhou_status
		`, v.NumericID, v.ShortID, v.UploaderID, v.Title, v.Description, v.CoverURI, v.CreatedAt,
			nullableInt64(v.BundleID), strings.Join(v.Tags, ","), int(v.Classification))
		if err != nil {
			return fmt.Errorf("upsert video: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM video_parts WHERE numeric_id = ?`, v.NumericID); err != nil {
			return fmt.Errorf("clear stale parts: %w", err)
		}
		for _, part := range v.Parts {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO video_parts (cid, numeric_id, ordinal, label, duration_seconds, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(cid) DO UPDATE SET
					numeric_id=excluded.numeric_id, ordinal=excluded.ordinal, label=excluded.label,
					duration_seconds=excluded.duration_seconds, created_at=excluded.created_at
			`, part.PartID, v.NumericID, part.Ordinal, part.Label, part.DurationSeconds, part.CreatedAt)
			if err != nil {
				return fmt.Errorf("upsert part %d: %w", part.PartID, err)
			}
		}
		return nil
	})
}

// GetVideo returns one video and its parts by numeric id, or sql.ErrNoRows
// if absent. It backs the read-only HTTP surface.
func (s *Store) GetVideo(ctx context.Context, numericID int64) (Video, error) {
	v, err := s.scanVideoRow(ctx, s.db.QueryRowContext(ctx, `
		SELECT numeric_id, short_id, uploader_id, title, description, cover_uri, created_at, season_id, tags, touhou_status
		FROM videos WHERE numeric_id = ?`, numericID))
	if err != nil {
		return Video{}, err
	}
	parts, err := s.loadParts(ctx, numericID)
	if err != nil {
		return Video{}, fmt.Errorf("load parts for video %d: %w", numericID, err)
	}
	v.Parts = parts
	return v, nil
}

// ListByUploader returns every video for uploaderID, most recently created first.
func (s *Store) ListByUploader(ctx context.Context, uploaderID int64) ([]Video, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT numeric_id, short_id, uploader_id, title, description, cover_uri, created_at, season_id, tags, touhou_status
		FROM videos WHERE uploader_id = ? ORDER BY created_at DESC`, uploaderID)
	if err != nil {
		return nil, fmt.Errorf("list videos by uploader: %w", err)
	}
	defer rows.Close()

	var videos []Video
	for rows.Next() {
		v, err := s.scanVideoRow(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("scan video row: %w", err)
		}
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range videos {
		parts, err := s.loadParts(ctx, videos[i].NumericID)
		if err != nil {
			return nil, fmt.Errorf("load parts for video %d: %w", videos[i].NumericID, err)
		}
		videos[i].Parts = parts
	}
	return videos, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows, both of which expose Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanVideoRow(ctx context.Context, row rowScanner) (Video, error) {
	var v Video
	var seasonID sql.NullInt64
	var tags string
	var status int
	if err := row.Scan(&v.NumericID, &v.ShortID, &v.UploaderID, &v.Title, &v.Description, &v.CoverURI, &v.CreatedAt, &seasonID, &tags, &status); err != nil {
		return Video{}, err
	}
	if seasonID.Valid {
		v.BundleID = &seasonID.Int64
	}
	if tags != "" {
		v.Tags = strings.Split(tags, ",")
	}
	v.Classification = Classification(status)
	return v, nil
}

func (s *Store) loadParts(ctx context.Context, numericID int64) ([]VideoPart, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cid, ordinal, label, duration_seconds, created_at
		FROM video_parts WHERE numeric_id = ? ORDER BY ordinal ASC`, numericID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parts []VideoPart
	for rows.Next() {
		var p VideoPart
		if err := rows.Scan(&p.PartID, &p.Ordinal, &p.Label, &p.DurationSeconds, &p.CreatedAt); err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
