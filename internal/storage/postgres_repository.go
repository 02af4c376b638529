package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fernando-live/internal/models"
)

type postgresRepository struct {
	pool  *pgxpool.Pool
	cfg   PostgresConfig
	clock func() time.Time
}

// NewPostgresRepository opens a Postgres-backed repository and applies the
// schema migrations.
func NewPostgresRepository(dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := migratePool(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &postgresRepository{pool: pool, cfg: cfg, clock: cfg.Clock}, nil
}

func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// streamCols renders the stream column list with an optional table alias.
func streamCols(alias string) string {
	p := ""
	if alias != "" {
		p = alias + "."
	}
	cols := []string{
		"id", "creator_id", "title", "description", "COALESCE(" + p + "category_id, '')", "stream_key",
		"status", "is_public", "is_mature", "recording_path", "playback_url", "duration_seconds",
		"started_at", "ended_at", "scheduled_at", "current_viewers", "peak_viewers", "total_views",
		"total_likes", "deleted", "deleted_at", "created_at", "updated_at",
	}
	for i, col := range cols {
		if !strings.HasPrefix(col, "COALESCE") {
			cols[i] = p + col
		}
	}
	return strings.Join(cols, ", ")
}

var streamColumns = streamCols("")

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStream(row rowScanner) (models.Stream, error) {
	var stream models.Stream
	var status string
	err := row.Scan(
		&stream.ID, &stream.CreatorID, &stream.Title, &stream.Description, &stream.CategoryID,
		&stream.StreamKey, &status, &stream.IsPublic, &stream.IsMature, &stream.RecordingPath,
		&stream.PlaybackURL, &stream.DurationSeconds, &stream.StartedAt, &stream.EndedAt,
		&stream.ScheduledAt, &stream.CurrentViewers, &stream.PeakViewers, &stream.TotalViews,
		&stream.TotalLikes, &stream.Deleted, &stream.DeletedAt, &stream.CreatedAt, &stream.UpdatedAt,
	)
	if err != nil {
		return models.Stream{}, err
	}
	stream.Status = models.StreamStatus(status)
	return stream, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func (r *postgresRepository) CreateCreator(params CreateCreatorParams) (models.Creator, error) {
	displayName := strings.TrimSpace(params.DisplayName)
	if displayName == "" {
		return models.Creator{}, fmt.Errorf("display name is required")
	}
	channelName := strings.TrimSpace(params.ChannelName)
	if channelName == "" {
		channelName = displayName
	}

	creator := models.Creator{
		ID:          newID(),
		DisplayName: displayName,
		ChannelName: channelName,
		Status:      models.CreatorActive,
		CreatedAt:   r.clock(),
	}
	_, err := r.pool.Exec(context.Background(),
		`INSERT INTO creators (id, display_name, channel_name, status, total_streams, created_at)
		 VALUES ($1, $2, $3, $4, 0, $5)`,
		creator.ID, creator.DisplayName, creator.ChannelName, string(creator.Status), creator.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "creators_channel_name_key") {
			return models.Creator{}, ErrDuplicateName
		}
		return models.Creator{}, fmt.Errorf("insert creator: %w", err)
	}
	return creator, nil
}

func (r *postgresRepository) GetCreator(id string) (models.Creator, bool) {
	var creator models.Creator
	var status string
	err := r.pool.QueryRow(context.Background(),
		`SELECT id, display_name, channel_name, status, total_streams, created_at
		 FROM creators WHERE id = $1`, id).
		Scan(&creator.ID, &creator.DisplayName, &creator.ChannelName, &status, &creator.TotalStreams, &creator.CreatedAt)
	if err != nil {
		return models.Creator{}, false
	}
	creator.Status = models.CreatorStatus(status)
	return creator, true
}

func (r *postgresRepository) ListCreators() []models.Creator {
	rows, err := r.pool.Query(context.Background(),
		`SELECT id, display_name, channel_name, status, total_streams, created_at
		 FROM creators ORDER BY channel_name`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var creators []models.Creator
	for rows.Next() {
		var creator models.Creator
		var status string
		if err := rows.Scan(&creator.ID, &creator.DisplayName, &creator.ChannelName, &status, &creator.TotalStreams, &creator.CreatedAt); err != nil {
			return nil
		}
		creator.Status = models.CreatorStatus(status)
		creators = append(creators, creator)
	}
	return creators
}

func (r *postgresRepository) SetCreatorStatus(id string, status models.CreatorStatus) (models.Creator, error) {
	tag, err := r.pool.Exec(context.Background(),
		`UPDATE creators SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return models.Creator{}, fmt.Errorf("update creator status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.Creator{}, ErrCreatorNotFound
	}
	creator, _ := r.GetCreator(id)
	return creator, nil
}

func (r *postgresRepository) StartStream(params StartStreamParams) (models.Stream, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return models.Stream{}, ErrTitleRequired
	}

	ctx := context.Background()
	creator, ok := r.GetCreator(params.CreatorID)
	if !ok {
		return models.Stream{}, ErrCreatorNotFound
	}
	if creator.Status != models.CreatorActive {
		return models.Stream{}, ErrCreatorInactive
	}
	if params.CategoryID != "" {
		if _, ok := r.GetCategory(params.CategoryID); !ok {
			return models.Stream{}, ErrCategoryNotFound
		}
	}

	key, err := generateStreamKey()
	if err != nil {
		return models.Stream{}, err
	}

	now := r.clock()
	stream := models.Stream{
		ID:          newID(),
		CreatorID:   params.CreatorID,
		Title:       title,
		Description: strings.TrimSpace(params.Description),
		CategoryID:  params.CategoryID,
		StreamKey:   key,
		Status:      models.StreamLive,
		IsPublic:    params.IsPublic,
		IsMature:    params.IsMature,
		StartedAt:   now,
		ScheduledAt: params.ScheduledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Stream{}, fmt.Errorf("begin go-live: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var categoryID any
	if stream.CategoryID != "" {
		categoryID = stream.CategoryID
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO streams (id, creator_id, title, description, category_id, stream_key,
			status, is_public, is_mature, started_at, scheduled_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		stream.ID, stream.CreatorID, stream.Title, stream.Description, categoryID, stream.StreamKey,
		string(stream.Status), stream.IsPublic, stream.IsMature, stream.StartedAt, stream.ScheduledAt,
		stream.CreatedAt, stream.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "streams_one_live_per_creator") {
			return models.Stream{}, ErrAlreadyLive
		}
		return models.Stream{}, fmt.Errorf("insert stream: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE creators SET total_streams = total_streams + 1 WHERE id = $1`, stream.CreatorID); err != nil {
		return models.Stream{}, fmt.Errorf("count stream: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err, "streams_one_live_per_creator") {
			return models.Stream{}, ErrAlreadyLive
		}
		return models.Stream{}, fmt.Errorf("commit go-live: %w", err)
	}
	return stream, nil
}

func (r *postgresRepository) StopStream(params StopStreamParams) (models.Stream, error) {
	ctx := context.Background()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Stream{}, fmt.Errorf("begin stop: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stream, err := scanStream(tx.QueryRow(ctx,
		`SELECT `+streamColumns+` FROM streams WHERE id = $1 AND NOT deleted FOR UPDATE`, params.StreamID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Stream{}, ErrStreamNotFound
	} else if err != nil {
		return models.Stream{}, fmt.Errorf("load stream: %w", err)
	}
	if !params.AsAdmin && stream.CreatorID != params.RequesterID {
		return models.Stream{}, ErrNotOwner
	}
	if stream.Status != models.StreamLive {
		return models.Stream{}, ErrNotLive
	}

	now := r.clock()
	ended := now
	stream.Status = models.StreamOffline
	stream.EndedAt = &ended
	stream.DurationSeconds = int(now.Sub(stream.StartedAt).Seconds())
	if stream.DurationSeconds < 0 {
		stream.DurationSeconds = 0
	}
	stream.CurrentViewers = 0
	stream.UpdatedAt = now

	if _, err := tx.Exec(ctx,
		`UPDATE streams SET status = $2, ended_at = $3, duration_seconds = $4,
			current_viewers = 0, updated_at = $5
		 WHERE id = $1`,
		stream.ID, string(stream.Status), stream.EndedAt, stream.DurationSeconds, stream.UpdatedAt); err != nil {
		return models.Stream{}, fmt.Errorf("end stream: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Stream{}, fmt.Errorf("commit stop: %w", err)
	}
	return stream, nil
}

func (r *postgresRepository) GetStream(id string) (models.Stream, bool) {
	stream, err := scanStream(r.pool.QueryRow(context.Background(),
		`SELECT `+streamColumns+` FROM streams WHERE id = $1 AND NOT deleted`, id))
	if err != nil {
		return models.Stream{}, false
	}
	return stream, true
}

func (r *postgresRepository) UpdateStream(id, requesterID string, asAdmin bool, update StreamUpdate) (models.Stream, error) {
	ctx := context.Background()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Stream{}, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stream, err := scanStream(tx.QueryRow(ctx,
		`SELECT `+streamColumns+` FROM streams WHERE id = $1 AND NOT deleted FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Stream{}, ErrStreamNotFound
	} else if err != nil {
		return models.Stream{}, fmt.Errorf("load stream: %w", err)
	}
	if !asAdmin && stream.CreatorID != requesterID {
		return models.Stream{}, ErrNotOwner
	}

	if update.Title != nil {
		trimmed := strings.TrimSpace(*update.Title)
		if trimmed == "" {
			return models.Stream{}, ErrTitleRequired
		}
		stream.Title = trimmed
	}
	if update.Description != nil {
		stream.Description = strings.TrimSpace(*update.Description)
	}
	if update.CategoryID != nil {
		if *update.CategoryID != "" {
			if _, ok := r.GetCategory(*update.CategoryID); !ok {
				return models.Stream{}, ErrCategoryNotFound
			}
		}
		stream.CategoryID = *update.CategoryID
	}
	if update.IsPublic != nil {
		stream.IsPublic = *update.IsPublic
	}
	if update.IsMature != nil {
		stream.IsMature = *update.IsMature
	}
	if update.ScheduledAt != nil {
		scheduled := update.ScheduledAt.UTC()
		stream.ScheduledAt = &scheduled
	}
	stream.UpdatedAt = r.clock()

	var categoryID any
	if stream.CategoryID != "" {
		categoryID = stream.CategoryID
	}
	if _, err := tx.Exec(ctx,
		`UPDATE streams SET title = $2, description = $3, category_id = $4, is_public = $5,
			is_mature = $6, scheduled_at = $7, updated_at = $8
		 WHERE id = $1`,
		stream.ID, stream.Title, stream.Description, categoryID, stream.IsPublic,
		stream.IsMature, stream.ScheduledAt, stream.UpdatedAt); err != nil {
		return models.Stream{}, fmt.Errorf("update stream: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Stream{}, fmt.Errorf("commit update: %w", err)
	}
	return stream, nil
}

func (r *postgresRepository) SoftDeleteStream(id string) error {
	now := r.clock()
	tag, err := r.pool.Exec(context.Background(),
		`UPDATE streams SET deleted = TRUE, deleted_at = $2, updated_at = $2
		 WHERE id = $1 AND NOT deleted`, id, now)
	if err != nil {
		return fmt.Errorf("delete stream: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStreamNotFound
	}
	return nil
}

func (r *postgresRepository) ListLiveStreams(opts ListStreamsOptions) ([]models.Stream, int) {
	return r.listDirectory(opts, `s.status = 'LIVE' AND s.is_public`)
}

func (r *postgresRepository) ListRecordedStreams(opts ListStreamsOptions) ([]models.Stream, int) {
	return r.listDirectory(opts, `s.status = 'OFFLINE' AND s.recording_path <> '' AND s.is_public`)
}

func (r *postgresRepository) listDirectory(opts ListStreamsOptions, where string) ([]models.Stream, int) {
	query := `SELECT ` + streamCols("s") + `, count(*) OVER () AS total
		FROM streams s JOIN creators c ON c.id = s.creator_id
		WHERE NOT s.deleted AND ` + where
	args := []any{}
	if opts.CategoryID != "" {
		args = append(args, opts.CategoryID)
		query += fmt.Sprintf(" AND s.category_id = $%d", len(args))
	}
	if q := strings.TrimSpace(opts.Query); q != "" {
		args = append(args, "%"+q+"%")
		n := len(args)
		query += fmt.Sprintf(" AND (s.title ILIKE $%d OR s.description ILIKE $%d OR c.channel_name ILIKE $%d OR c.display_name ILIKE $%d)", n, n, n, n)
	}
	query += " ORDER BY s.started_at DESC, s.id"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(context.Background(), query, args...)
	if err != nil {
		return nil, 0
	}
	defer rows.Close()

	var streams []models.Stream
	total := 0
	for rows.Next() {
		stream, count, err := scanStreamWithTotal(rows)
		if err != nil {
			return nil, 0
		}
		total = count
		streams = append(streams, stream)
	}
	return streams, total
}

func scanStreamWithTotal(rows pgx.Rows) (models.Stream, int, error) {
	var stream models.Stream
	var status string
	var total int
	err := rows.Scan(
		&stream.ID, &stream.CreatorID, &stream.Title, &stream.Description, &stream.CategoryID,
		&stream.StreamKey, &status, &stream.IsPublic, &stream.IsMature, &stream.RecordingPath,
		&stream.PlaybackURL, &stream.DurationSeconds, &stream.StartedAt, &stream.EndedAt,
		&stream.ScheduledAt, &stream.CurrentViewers, &stream.PeakViewers, &stream.TotalViews,
		&stream.TotalLikes, &stream.Deleted, &stream.DeletedAt, &stream.CreatedAt, &stream.UpdatedAt,
		&total,
	)
	if err != nil {
		return models.Stream{}, 0, err
	}
	stream.Status = models.StreamStatus(status)
	return stream, total, nil
}

func (r *postgresRepository) ListCreatorStreams(creatorID string) []models.Stream {
	rows, err := r.pool.Query(context.Background(),
		`SELECT `+streamColumns+` FROM streams
		 WHERE creator_id = $1 AND NOT deleted
		 ORDER BY started_at DESC, id`, creatorID)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var streams []models.Stream
	for rows.Next() {
		stream, err := scanStream(rows)
		if err != nil {
			return nil
		}
		streams = append(streams, stream)
	}
	return streams
}

func (r *postgresRepository) AdjustViewers(streamID string, delta int) (models.Stream, error) {
	stream, err := scanStream(r.pool.QueryRow(context.Background(),
		`UPDATE streams SET
			current_viewers = GREATEST(current_viewers + $2, 0),
			peak_viewers = GREATEST(peak_viewers, GREATEST(current_viewers + $2, 0)),
			total_views = total_views + GREATEST($2, 0),
			updated_at = $3
		 WHERE id = $1 AND NOT deleted AND status = 'LIVE'
		 RETURNING `+streamColumns, streamID, delta, r.clock()))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, ok := r.GetStream(streamID); ok {
			return models.Stream{}, ErrNotLive
		}
		return models.Stream{}, ErrStreamNotFound
	} else if err != nil {
		return models.Stream{}, fmt.Errorf("adjust viewers: %w", err)
	}
	return stream, nil
}

func (r *postgresRepository) ListUnmatchedOffline(ctx context.Context) ([]models.Stream, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+streamColumns+` FROM streams
		 WHERE status = 'OFFLINE' AND recording_path = '' AND NOT deleted
		 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list unmatched streams: %w", err)
	}
	defer rows.Close()

	var streams []models.Stream
	for rows.Next() {
		stream, err := scanStream(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		streams = append(streams, stream)
	}
	return streams, rows.Err()
}

func (r *postgresRepository) SetStreamRecording(ctx context.Context, streamID, recordingPath, playbackURL string) (models.Stream, error) {
	stream, err := scanStream(r.pool.QueryRow(ctx,
		`UPDATE streams SET recording_path = $2, playback_url = $3, updated_at = $4
		 WHERE id = $1 AND NOT deleted AND (recording_path = '' OR recording_path = $2)
		 RETURNING `+streamColumns, streamID, recordingPath, playbackURL, r.clock()))
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the stream is gone or it already carries a different
		// recording; the existing association wins.
		if existing, ok := r.GetStream(streamID); ok {
			return existing, nil
		}
		return models.Stream{}, ErrStreamNotFound
	} else if err != nil {
		return models.Stream{}, fmt.Errorf("set stream recording: %w", err)
	}
	return stream, nil
}

func (r *postgresRepository) CreateCategory(name string) (models.StreamCategory, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return models.StreamCategory{}, fmt.Errorf("category name is required")
	}
	category := models.StreamCategory{
		ID:        newID(),
		Name:      trimmed,
		Slug:      slugify(trimmed),
		CreatedAt: r.clock(),
	}
	_, err := r.pool.Exec(context.Background(),
		`INSERT INTO stream_categories (id, name, slug, created_at) VALUES ($1, $2, $3, $4)`,
		category.ID, category.Name, category.Slug, category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return models.StreamCategory{}, ErrDuplicateName
		}
		return models.StreamCategory{}, fmt.Errorf("insert category: %w", err)
	}
	return category, nil
}

func (r *postgresRepository) GetCategory(id string) (models.StreamCategory, bool) {
	var category models.StreamCategory
	err := r.pool.QueryRow(context.Background(),
		`SELECT id, name, slug, created_at FROM stream_categories WHERE id = $1`, id).
		Scan(&category.ID, &category.Name, &category.Slug, &category.CreatedAt)
	if err != nil {
		return models.StreamCategory{}, false
	}
	return category, true
}

func (r *postgresRepository) ListCategories() []models.StreamCategory {
	rows, err := r.pool.Query(context.Background(),
		`SELECT id, name, slug, created_at FROM stream_categories ORDER BY name`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var categories []models.StreamCategory
	for rows.Next() {
		var category models.StreamCategory
		if err := rows.Scan(&category.ID, &category.Name, &category.Slug, &category.CreatedAt); err != nil {
			return nil
		}
		categories = append(categories, category)
	}
	return categories
}

var _ Repository = (*postgresRepository)(nil)
