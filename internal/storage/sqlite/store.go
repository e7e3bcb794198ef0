package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/casefile/internal/storage"
	"github.com/scrypster/casefile/pkg/types"
)

// Store implements storage.RecordStore using SQLite.
type Store struct {
	db *sql.DB
}

// New opens a SQLite record store, configures WAL mode and creates the
// schema.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Using a single open
	// connection serialises writes and avoids SQLITE_BUSY errors under
	// concurrent load. WAL mode allows concurrent readers to proceed
	// without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set busy timeout so that callers wait instead of getting an immediate
	// SQLITE_BUSY error when the connection is held by another goroutine.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReplaceRecords atomically swaps the (deviceID, category) partition.
func (s *Store) ReplaceRecords(ctx context.Context, deviceID string, category types.Category, records []types.Record) error {
	if deviceID == "" {
		return fmt.Errorf("%w: device ID is required", storage.ErrInvalidInput)
	}
	if !category.Valid() {
		return fmt.Errorf("%w: unknown category %q", storage.ErrInvalidInput, category)
	}
	for _, r := range records {
		if r.Category != category {
			return fmt.Errorf("%w: record category %q does not match partition %q",
				storage.ErrInvalidInput, r.Category, category)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM records WHERE device_id = ? AND category = ?",
		deviceID, category); err != nil {
		return fmt.Errorf("failed to clear partition: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (device_id, category, timestamp, data, searchable)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		data, err := json.Marshal(r.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal record payload: %w", err)
		}
		// Searchable text is lowered at write time so queries can match
		// case-insensitively with a plain LIKE.
		if _, err := stmt.ExecContext(ctx, deviceID, category, r.Timestamp,
			string(data), strings.ToLower(r.Searchable)); err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
	}

	if err := upsertCategoryCount(ctx, tx, deviceID, category, len(records)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit partition swap: %w", err)
	}
	return nil
}

// QueryRecords returns records matching opts, newest first.
func (s *Store) QueryRecords(ctx context.Context, opts storage.QueryOptions) (*storage.PaginatedResult[storage.RecordHit], error) {
	opts.Normalize()

	var (
		conds []string
		args  []any
	)
	if len(opts.DeviceIDs) > 0 {
		conds = append(conds, "device_id IN ("+placeholders(len(opts.DeviceIDs))+")")
		for _, id := range opts.DeviceIDs {
			args = append(args, id)
		}
	}
	if opts.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, opts.Category)
	}
	if opts.Query != "" {
		conds = append(conds, "searchable LIKE ?")
		args = append(args, "%"+strings.ToLower(opts.Query)+"%")
	}
	if opts.DateFrom != "" {
		conds = append(conds, "timestamp >= ?")
		args = append(args, opts.DateFrom)
	}
	if opts.DateTo != "" {
		conds = append(conds, "timestamp != '' AND timestamp <= ?")
		args = append(args, storage.EndOfDay(opts.DateTo))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	query := `
		SELECT device_id, category, timestamp, data
		FROM records` + where + `
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query,
		append(args, opts.PerPage, storage.Offset(opts.Page, opts.PerPage))...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	items := []storage.RecordHit{}
	for rows.Next() {
		var (
			hit  storage.RecordHit
			data string
		)
		if err := rows.Scan(&hit.DeviceID, &hit.Category, &hit.Timestamp, &data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &hit.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record payload: %w", err)
		}
		items = append(items, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	return &storage.PaginatedResult[storage.RecordHit]{
		Items:   items,
		Total:   total,
		Page:    opts.Page,
		PerPage: opts.PerPage,
	}, nil
}

// UpsertDevice registers or updates a device row.
func (s *Store) UpsertDevice(ctx context.Context, device types.Device) error {
	if device.ID == "" {
		return fmt.Errorf("%w: device ID is required", storage.ErrInvalidInput)
	}

	var extractionsJSON []byte
	if len(device.Extractions) > 0 {
		var err error
		extractionsJSON, err = json.Marshal(device.Extractions)
		if err != nil {
			return fmt.Errorf("failed to marshal extractions: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, type, owner, source, merged, extractions)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			owner = excluded.owner,
			source = excluded.source,
			merged = excluded.merged,
			extractions = excluded.extractions
	`, device.ID, device.Name, device.Type, device.Owner, device.Source,
		device.Merged, nullableBytes(extractionsJSON))
	if err != nil {
		return fmt.Errorf("failed to upsert device: %w", err)
	}
	return nil
}

// ListDevices returns all devices with category counts populated.
func (s *Store) ListDevices(ctx context.Context) ([]types.Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, owner, source, merged, extractions
		FROM devices
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	devices := []types.Device{}
	byID := map[string]int{}
	for rows.Next() {
		var (
			d           types.Device
			extractions sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.Name, &d.Type, &d.Owner, &d.Source,
			&d.Merged, &extractions); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		if extractions.Valid && extractions.String != "" {
			if err := json.Unmarshal([]byte(extractions.String), &d.Extractions); err != nil {
				return nil, fmt.Errorf("failed to unmarshal extractions: %w", err)
			}
		}
		d.Categories = map[types.Category]int{}
		byID[d.ID] = len(devices)
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}

	counts, err := s.db.QueryContext(ctx,
		"SELECT device_id, category, count FROM device_category_counts")
	if err != nil {
		return nil, fmt.Errorf("failed to query category counts: %w", err)
	}
	defer counts.Close()

	for counts.Next() {
		var (
			deviceID string
			category types.Category
			count    int
		)
		if err := counts.Scan(&deviceID, &category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		if i, ok := byID[deviceID]; ok && count > 0 {
			devices[i].Categories[category] = count
			devices[i].TotalRecords += count
		}
	}
	if err := counts.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate category counts: %w", err)
	}

	return devices, nil
}

// SetCategoryCount records the category count for a partition whose records
// are not stored inline.
func (s *Store) SetCategoryCount(ctx context.Context, deviceID string, category types.Category, count int) error {
	if deviceID == "" {
		return fmt.Errorf("%w: device ID is required", storage.ErrInvalidInput)
	}
	if !category.Valid() {
		return fmt.Errorf("%w: unknown category %q", storage.ErrInvalidInput, category)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device_category_counts (device_id, category, count)
		VALUES (?, ?, ?)
		ON CONFLICT(device_id, category) DO UPDATE SET count = excluded.count
	`, deviceID, category, count)
	if err != nil {
		return fmt.Errorf("failed to set category count: %w", err)
	}
	return nil
}

// FileState returns the recorded modification time for a source file.
func (s *Store) FileState(ctx context.Context, path string) (int64, bool, error) {
	var mtime int64
	err := s.db.QueryRowContext(ctx,
		"SELECT mtime FROM file_index WHERE path = ?", path).Scan(&mtime)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get file state: %w", err)
	}
	return mtime, true, nil
}

// SetFileState records a source file's modification time and record count.
func (s *Store) SetFileState(ctx context.Context, path string, mtime int64, recordCount int) error {
	if path == "" {
		return fmt.Errorf("%w: path is required", storage.ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_index (path, mtime, record_count, indexed_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(path) DO UPDATE SET
			mtime = excluded.mtime,
			record_count = excluded.record_count,
			indexed_at = excluded.indexed_at
	`, path, mtime, recordCount)
	if err != nil {
		return fmt.Errorf("failed to set file state: %w", err)
	}
	return nil
}

// ReplaceThreads atomically swaps a device's chat threads and messages.
func (s *Store) ReplaceThreads(ctx context.Context, deviceID string, threads []types.ChatThread, messages map[int][]types.ChatMessage) error {
	if deviceID == "" {
		return fmt.Errorf("%w: device ID is required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM chat_messages WHERE device_id = ?", deviceID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM chat_threads WHERE device_id = ?", deviceID); err != nil {
		return fmt.Errorf("failed to clear threads: %w", err)
	}

	threadStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chat_threads (
			device_id, thread_id, source, started, participants,
			message_count, first_date, last_date, last_message_preview
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare thread insert: %w", err)
	}
	defer threadStmt.Close()

	msgStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chat_messages (
			device_id, thread_id, seq, timestamp, sender, body, source_app
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer msgStmt.Close()

	for _, t := range threads {
		participantsJSON, err := json.Marshal(t.Participants)
		if err != nil {
			return fmt.Errorf("failed to marshal participants: %w", err)
		}
		if _, err := threadStmt.ExecContext(ctx, deviceID, t.ThreadID, t.SourceApp,
			t.Started, string(participantsJSON), t.MessageCount,
			t.FirstDate, t.LastDate, t.LastMessagePreview); err != nil {
			return fmt.Errorf("failed to insert thread: %w", err)
		}

		for seq, m := range messages[t.ThreadID] {
			if _, err := msgStmt.ExecContext(ctx, deviceID, t.ThreadID, seq,
				m.Time, m.Sender, m.Body, m.SourceApp); err != nil {
				return fmt.Errorf("failed to insert message: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit thread swap: %w", err)
	}
	return nil
}

// ListThreads returns chat threads matching opts, most recent first.
func (s *Store) ListThreads(ctx context.Context, opts storage.ThreadOptions) (*storage.PaginatedResult[types.ChatThread], error) {
	opts.Normalize()

	var (
		conds []string
		args  []any
	)
	if len(opts.DeviceIDs) > 0 {
		conds = append(conds, "device_id IN ("+placeholders(len(opts.DeviceIDs))+")")
		for _, id := range opts.DeviceIDs {
			args = append(args, id)
		}
	}
	if opts.Search != "" {
		needle := "%" + strings.ToLower(opts.Search) + "%"
		conds = append(conds, `(LOWER(participants) LIKE ?
			OR LOWER(last_message_preview) LIKE ?
			OR LOWER(source) LIKE ?)`)
		args = append(args, needle, needle, needle)
	}
	// A thread matches the window when its message span overlaps it.
	if opts.DateFrom != "" {
		conds = append(conds, "last_date >= ?")
		args = append(args, opts.DateFrom)
	}
	if opts.DateTo != "" {
		conds = append(conds, "first_date != '' AND first_date <= ?")
		args = append(args, storage.EndOfDay(opts.DateTo))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chat_threads"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count threads: %w", err)
	}

	query := `
		SELECT device_id, thread_id, source, started, participants,
			message_count, first_date, last_date, last_message_preview
		FROM chat_threads` + where + `
		ORDER BY last_date DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query,
		append(args, opts.PerPage, storage.Offset(opts.Page, opts.PerPage))...)
	if err != nil {
		return nil, fmt.Errorf("failed to query threads: %w", err)
	}
	defer rows.Close()

	items := []types.ChatThread{}
	for rows.Next() {
		var (
			t            types.ChatThread
			participants sql.NullString
		)
		if err := rows.Scan(&t.DeviceID, &t.ThreadID, &t.SourceApp, &t.Started,
			&participants, &t.MessageCount, &t.FirstDate, &t.LastDate,
			&t.LastMessagePreview); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		if participants.Valid && participants.String != "" {
			if err := json.Unmarshal([]byte(participants.String), &t.Participants); err != nil {
				return nil, fmt.Errorf("failed to unmarshal participants: %w", err)
			}
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate threads: %w", err)
	}

	return &storage.PaginatedResult[types.ChatThread]{
		Items:   items,
		Total:   total,
		Page:    opts.Page,
		PerPage: opts.PerPage,
	}, nil
}

// ThreadMessages returns one thread's messages in order. An unknown thread
// yields an empty slice.
func (s *Store) ThreadMessages(ctx context.Context, deviceIDs []string, threadID int) ([]types.ChatMessage, error) {
	conds := []string{"thread_id = ?"}
	args := []any{threadID}
	if len(deviceIDs) > 0 {
		conds = append(conds, "device_id IN ("+placeholders(len(deviceIDs))+")")
		for _, id := range deviceIDs {
			args = append(args, id)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, sender, body, source_app
		FROM chat_messages
		WHERE `+strings.Join(conds, " AND ")+`
		ORDER BY device_id, seq
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	msgs := []types.ChatMessage{}
	for rows.Next() {
		var m types.ChatMessage
		if err := rows.Scan(&m.Time, &m.Sender, &m.Body, &m.SourceApp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return msgs, nil
}

// ReplaceDiscoveries replaces the whole discovery set.
func (s *Store) ReplaceDiscoveries(ctx context.Context, discoveries []types.Discovery) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM discoveries"); err != nil {
		return fmt.Errorf("failed to clear discoveries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO discoveries (
			id, title, category, flames, device_id, owner, content,
			timestamp, verified, tags, data_type, source_app
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare discovery insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range discoveries {
		tagsJSON, err := json.Marshal(d.Tags)
		if err != nil {
			return fmt.Errorf("failed to marshal tags: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Title, d.Category, d.Flames,
			d.DeviceID, d.Owner, d.Content, d.Timestamp, d.Verified,
			string(tagsJSON), d.DataType, d.SourceApp); err != nil {
			return fmt.Errorf("failed to insert discovery: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit discovery swap: %w", err)
	}
	return nil
}

// ListDiscoveries returns discoveries matching opts in the requested order.
func (s *Store) ListDiscoveries(ctx context.Context, opts storage.DiscoveryOptions) (*storage.PaginatedResult[types.Discovery], error) {
	opts.Normalize()

	var (
		conds []string
		args  []any
	)
	if opts.Category != "all" {
		conds = append(conds, "category = ?")
		args = append(args, opts.Category)
	}
	if opts.Person != "all" {
		conds = append(conds, "(LOWER(owner) = ? OR LOWER(tags) LIKE ?)")
		person := strings.ToLower(opts.Person)
		args = append(args, person, `%"`+person+`"%`)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var order string
	switch opts.Sort {
	case storage.SortDateDesc:
		order = "timestamp DESC"
	case storage.SortDateAsc:
		order = "timestamp ASC"
	default:
		// Importance: significance tier first, curated findings before
		// derived ones within a tier, then recency.
		order = "flames DESC, verified DESC, timestamp DESC"
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM discoveries"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count discoveries: %w", err)
	}

	query := `
		SELECT id, title, category, flames, device_id, owner, content,
			timestamp, verified, tags, data_type, source_app
		FROM discoveries` + where + `
		ORDER BY ` + order + `
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query,
		append(args, opts.PerPage, storage.Offset(opts.Page, opts.PerPage))...)
	if err != nil {
		return nil, fmt.Errorf("failed to query discoveries: %w", err)
	}
	defer rows.Close()

	items := []types.Discovery{}
	for rows.Next() {
		var (
			d    types.Discovery
			tags sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.Title, &d.Category, &d.Flames, &d.DeviceID,
			&d.Owner, &d.Content, &d.Timestamp, &d.Verified, &tags,
			&d.DataType, &d.SourceApp); err != nil {
			return nil, fmt.Errorf("failed to scan discovery: %w", err)
		}
		if tags.Valid && tags.String != "" {
			if err := json.Unmarshal([]byte(tags.String), &d.Tags); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
			}
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate discoveries: %w", err)
	}

	return &storage.PaginatedResult[types.Discovery]{
		Items:   items,
		Total:   total,
		Page:    opts.Page,
		PerPage: opts.PerPage,
	}, nil
}

// DiscoveryCategoryCounts returns the number of discoveries per category.
func (s *Store) DiscoveryCategoryCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT category, COUNT(*) FROM discoveries GROUP BY category")
	if err != nil {
		return nil, fmt.Errorf("failed to query discovery counts: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var (
			category string
			count    int
		)
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan discovery count: %w", err)
		}
		counts[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate discovery counts: %w", err)
	}
	return counts, nil
}

func upsertCategoryCount(ctx context.Context, tx *sql.Tx, deviceID string, category types.Category, count int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO device_category_counts (device_id, category, count)
		VALUES (?, ?, ?)
		ON CONFLICT(device_id, category) DO UPDATE SET count = excluded.count
	`, deviceID, category, count)
	if err != nil {
		return fmt.Errorf("failed to update category count: %w", err)
	}
	return nil
}

// placeholders returns n comma-separated SQL placeholders.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
