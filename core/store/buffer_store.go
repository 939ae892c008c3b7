package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotPending is returned when a state transition targets a row that is
// no longer pending. Terminal states are never overwritten.
var ErrNotPending = errors.New("buffer row is not pending")

type BufferStore interface {
	Append(ctx context.Context, doc *RawDocument) (int64, error)
	// SelectPending returns up to limit pending rows, oldest id first.
	// Rows in a terminal state are filtered in SQL, never in the caller.
	SelectPending(ctx context.Context, limit int) ([]RawDocument, error)
	// MarkProcessed runs inside the caller's transaction so the state
	// transition commits together with the document's entity writes.
	MarkProcessed(ctx context.Context, tx *sql.Tx, id int64) error
	MarkErrored(ctx context.Context, id int64, reason string) error
	ResetErrored(ctx context.Context) (int64, error)
	ListErrored(ctx context.Context, limit, offset int) ([]RawDocument, error)
	Stats(ctx context.Context) (BufferStats, error)
}

type bufferStore struct {
	db *DB
}

func NewBufferStore(db *DB) BufferStore {
	return &bufferStore{db: db}
}

func (s *bufferStore) Append(ctx context.Context, doc *RawDocument) (int64, error) {
	if s.db.Postgres() {
		var id int64
		err := s.db.QueryRowRebound(ctx, `
			INSERT INTO dtp_buffer (city_name, region_id, district_id, raw_json, status, received_at)
			VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
			doc.CityName, doc.RegionID, doc.DistrictID, doc.RawJSON, StatusPending, time.Now().UTC()).Scan(&id)
		return id, err
	}
	res, err := s.db.ExecRebound(ctx, `
		INSERT INTO dtp_buffer (city_name, region_id, district_id, raw_json, status, received_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		doc.CityName, doc.RegionID, doc.DistrictID, doc.RawJSON, StatusPending, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *bufferStore) SelectPending(ctx context.Context, limit int) ([]RawDocument, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryRebound(ctx, `
		SELECT id, city_name, region_id, district_id, raw_json, status, error_text, received_at, processed_at
		FROM dtp_buffer
		WHERE status = ?
		ORDER BY id ASC
		LIMIT ?`, StatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRawDocuments(rows)
}

func (s *bufferStore) MarkProcessed(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, s.db.Rebind(`
		UPDATE dtp_buffer SET status = ?, processed_at = ?, error_text = ''
		WHERE id = ? AND status = ?`),
		StatusProcessed, time.Now().UTC(), id, StatusPending)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotPending
	}
	return nil
}

func (s *bufferStore) MarkErrored(ctx context.Context, id int64, reason string) error {
	res, err := s.db.ExecRebound(ctx, `
		UPDATE dtp_buffer SET status = ?, error_text = ?
		WHERE id = ? AND status = ?`,
		StatusErrored, reason, id, StatusPending)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotPending
	}
	return nil
}

// ResetErrored returns errored rows to the pending state. This is the only
// way back from a terminal state and is triggered explicitly by an operator.
func (s *bufferStore) ResetErrored(ctx context.Context) (int64, error) {
	res, err := s.db.ExecRebound(ctx, `
		UPDATE dtp_buffer SET status = ?, error_text = ''
		WHERE status = ?`, StatusPending, StatusErrored)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

func (s *bufferStore) ListErrored(ctx context.Context, limit, offset int) ([]RawDocument, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryRebound(ctx, `
		SELECT id, city_name, region_id, district_id, raw_json, status, error_text, received_at, processed_at
		FROM dtp_buffer
		WHERE status = ?
		ORDER BY id ASC
		LIMIT ? OFFSET ?`, StatusErrored, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRawDocuments(rows)
}

func (s *bufferStore) Stats(ctx context.Context) (BufferStats, error) {
	var st BufferStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'processed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'errored' THEN 1 ELSE 0 END)
		FROM dtp_buffer`).Scan(
		&nullCount{&st.Pending}, &nullCount{&st.Processed}, &nullCount{&st.Errored})
	return st, err
}

func scanRawDocuments(rows *sql.Rows) ([]RawDocument, error) {
	var res []RawDocument
	for rows.Next() {
		var d RawDocument
		var processedAt sql.NullTime
		if err := rows.Scan(&d.ID, &d.CityName, &d.RegionID, &d.DistrictID, &d.RawJSON,
			&d.Status, &d.ErrorText, &d.ReceivedAt, &processedAt); err != nil {
			return nil, err
		}
		if processedAt.Valid {
			d.ProcessedAt = &processedAt.Time
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// nullCount scans a nullable aggregate into an int64, treating NULL as zero.
type nullCount struct {
	v *int64
}

func (n *nullCount) Scan(src any) error {
	var ni sql.NullInt64
	if err := ni.Scan(src); err != nil {
		return err
	}
	if ni.Valid {
		*n.v = ni.Int64
	} else {
		*n.v = 0
	}
	return nil
}
