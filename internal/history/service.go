package history

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/fasttube/fasttube/internal/database"
)

// maxEntries caps the retained history; the oldest rows beyond the cap are
// pruned on every insert.
const maxEntries = 100

// Service records and serves the download history.
type Service struct {
	db     *database.DB
	logger zerolog.Logger
}

// NewService creates a new history service.
func NewService(db *database.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// Create appends a history entry and prunes beyond the retention cap.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Entry, error) {
	conn := s.db.Conn()

	res, err := conn.ExecContext(ctx,
		`INSERT INTO download_history (download_id, url, title, status, file_path, file_size, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		input.DownloadID, input.URL, input.Title, input.Status,
		nullable(input.FilePath), input.FileSize, nullable(input.Error),
	)
	if err != nil {
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	// Retention: keep only the newest maxEntries rows.
	_, err = conn.ExecContext(ctx,
		`DELETE FROM download_history
		 WHERE id NOT IN (SELECT id FROM download_history ORDER BY id DESC LIMIT ?)`,
		maxEntries,
	)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to prune download history")
	}

	return s.getByID(ctx, id)
}

// List returns history entries newest first, optionally filtered by status.
func (s *Service) List(ctx context.Context, opts ListOptions) (*ListResponse, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = 50
	}
	if opts.PageSize > maxEntries {
		opts.PageSize = maxEntries
	}

	offset := (opts.Page - 1) * opts.PageSize
	conn := s.db.Conn()

	var rows *sql.Rows
	var err error
	var totalCount int64

	if opts.Status != "" {
		rows, err = conn.QueryContext(ctx,
			`SELECT id, download_id, url, title, status, file_path, file_size, error, created_at
			 FROM download_history WHERE status = ? ORDER BY id DESC LIMIT ? OFFSET ?`,
			opts.Status, opts.PageSize, offset,
		)
		if err != nil {
			return nil, err
		}
		countErr := conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM download_history WHERE status = ?`, opts.Status,
		).Scan(&totalCount)
		if countErr != nil {
			rows.Close()
			return nil, countErr
		}
	} else {
		rows, err = conn.QueryContext(ctx,
			`SELECT id, download_id, url, title, status, file_path, file_size, error, created_at
			 FROM download_history ORDER BY id DESC LIMIT ? OFFSET ?`,
			opts.PageSize, offset,
		)
		if err != nil {
			return nil, err
		}
		countErr := conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM download_history`,
		).Scan(&totalCount)
		if countErr != nil {
			rows.Close()
			return nil, countErr
		}
	}
	defer rows.Close()

	entries := make([]*Entry, 0, opts.PageSize)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &ListResponse{
		Entries:    entries,
		TotalCount: totalCount,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
	}, nil
}

// DeleteAll clears the history.
func (s *Service) DeleteAll(ctx context.Context) error {
	_, err := s.db.Conn().ExecContext(ctx, `DELETE FROM download_history`)
	return err
}

func (s *Service) getByID(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.Conn().QueryRowContext(ctx,
		`SELECT id, download_id, url, title, status, file_path, file_size, error, created_at
		 FROM download_history WHERE id = ?`, id,
	)
	return scanEntry(row)
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scannable) (*Entry, error) {
	var e Entry
	var filePath, errMsg sql.NullString
	var fileSize sql.NullInt64
	if err := row.Scan(&e.ID, &e.DownloadID, &e.URL, &e.Title, &e.Status,
		&filePath, &fileSize, &errMsg, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.FilePath = filePath.String
	e.FileSize = fileSize.Int64
	e.Error = errMsg.String
	return &e, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
