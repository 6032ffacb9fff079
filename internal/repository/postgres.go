package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/deltran/swift-processor/internal/resilience"
)

// PostgresConfig holds the connection-pool settings, mirrored directly
// from the processor's database configuration section (§6).
type PostgresConfig struct {
	ConnectionString string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
}

// retryTransient runs fn, retrying only errors isTransient classifies
// as transient, with exponential backoff: up to 3 attempts, waiting 1s
// after the first and 2s after the second. Non-transient errors surface
// on the first attempt.
func retryTransient(ctx context.Context, fn func(context.Context) error) error {
	delay := 1 * time.Second
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransient(err) {
			return err
		}
		if attempt == 2 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("%w: %v", resilience.ErrMaxRetriesExceeded, lastErr)
}

// PostgresRepository is the C6 backend: Postgres for durable storage,
// an optional Redis client as a read-through cache for GetById.
type PostgresRepository struct {
	db    *sql.DB
	cache *redis.Client // nil disables caching
	ttl   time.Duration
}

// NewPostgresRepository opens the connection pool and verifies
// connectivity, following the teacher's PostgresDB construction.
func NewPostgresRepository(config PostgresConfig, cache *redis.Client) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("repository: failed to ping database: %w", err)
	}

	return &PostgresRepository{db: db, cache: cache, ttl: 30 * time.Second}, nil
}

func (p *PostgresRepository) Close() error { return p.db.Close() }

// Save is an idempotent upsert by ID (§3 invariant i, §4.6): on
// conflict, every field is replaced except createdAt. processedAt is
// written from msg.ProcessedAt; Save fills it with the current time only
// when it is zero, so a caller-supplied processedAt is stored as given.
// Transient errors are retried by retryTransient; non-transient errors
// surface immediately.
func (p *PostgresRepository) Save(ctx context.Context, msg *ProcessedMessage) (string, error) {
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return "", fmt.Errorf("repository: failed to marshal metadata: %w", err)
	}

	now := time.Now().UTC()
	if msg.ProcessedAt.IsZero() {
		msg.ProcessedAt = now
	}

	query := `
		INSERT INTO swift_processor.processed_messages (
			id, message_type, raw_message, parsed_message, status,
			created_at, processed_at, error_details, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			message_type   = EXCLUDED.message_type,
			raw_message    = EXCLUDED.raw_message,
			parsed_message = EXCLUDED.parsed_message,
			status         = EXCLUDED.status,
			processed_at   = EXCLUDED.processed_at,
			error_details  = EXCLUDED.error_details,
			metadata       = EXCLUDED.metadata
	`

	err = retryTransient(ctx, func(ctx context.Context) error {
		_, execErr := p.db.ExecContext(ctx, query,
			msg.ID, msg.MessageType, msg.RawMessage, nullableBytes(msg.ParsedMessage),
			string(msg.Status), now, msg.ProcessedAt, nullableString(msg.ErrorDetails), metadata,
		)
		return execErr
	})
	if err != nil {
		return "", fmt.Errorf("repository: save failed: %w", err)
	}

	if p.cache != nil {
		p.cache.Del(ctx, cacheKey(msg.ID))
	}
	return msg.ID, nil
}

func (p *PostgresRepository) GetById(ctx context.Context, id string) (*ProcessedMessage, error) {
	if p.cache != nil {
		if data, err := p.cache.Get(ctx, cacheKey(id)).Bytes(); err == nil {
			var msg ProcessedMessage
			if jsonErr := json.Unmarshal(data, &msg); jsonErr == nil {
				return &msg, nil
			}
		}
	}

	query := `
		SELECT id, message_type, raw_message, parsed_message, status,
		       created_at, processed_at, error_details, metadata
		FROM swift_processor.processed_messages
		WHERE id = $1
	`
	msg, err := p.scanOne(ctx, query, id)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		if data, err := json.Marshal(msg); err == nil {
			p.cache.Set(ctx, cacheKey(id), data, p.ttl)
		}
	}
	return msg, nil
}

func (p *PostgresRepository) scanOne(ctx context.Context, query string, args ...interface{}) (*ProcessedMessage, error) {
	var msg ProcessedMessage
	var parsed []byte
	var errorDetails sql.NullString
	var metadata []byte
	var status string

	row := p.db.QueryRowContext(ctx, query, args...)
	err := row.Scan(&msg.ID, &msg.MessageType, &msg.RawMessage, &parsed, &status,
		&msg.CreatedAt, &msg.ProcessedAt, &errorDetails, &metadata)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: query failed: %w", err)
	}

	msg.Status = Status(status)
	msg.ParsedMessage = parsed
	msg.ErrorDetails = errorDetails.String
	if len(metadata) > 0 {
		if jsonErr := json.Unmarshal(metadata, &msg.Metadata); jsonErr != nil {
			return nil, fmt.Errorf("repository: failed to unmarshal metadata: %w", jsonErr)
		}
	}
	return &msg, nil
}

// Query returns records ordered by processedAt desc with skip/take
// pagination (§4.6). A take outside [1,100] is replaced by 100; a
// negative skip is replaced by 0.
func (p *PostgresRepository) Query(ctx context.Context, filter Filter) ([]*ProcessedMessage, error) {
	where, args := filter.buildWhere()
	take := filter.Take
	if take <= 0 || take > 100 {
		take = 100
	}
	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}

	query := fmt.Sprintf(`
		SELECT id, message_type, raw_message, parsed_message, status,
		       created_at, processed_at, error_details, metadata
		FROM swift_processor.processed_messages
		%s
		ORDER BY processed_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, take, skip)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: query failed: %w", err)
	}
	defer rows.Close()

	var results []*ProcessedMessage
	for rows.Next() {
		var msg ProcessedMessage
		var parsed []byte
		var errorDetails sql.NullString
		var metadata []byte
		var status string

		if err := rows.Scan(&msg.ID, &msg.MessageType, &msg.RawMessage, &parsed, &status,
			&msg.CreatedAt, &msg.ProcessedAt, &errorDetails, &metadata); err != nil {
			return nil, fmt.Errorf("repository: row scan failed: %w", err)
		}
		msg.Status = Status(status)
		msg.ParsedMessage = parsed
		msg.ErrorDetails = errorDetails.String
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &msg.Metadata)
		}
		results = append(results, &msg)
	}
	return results, rows.Err()
}

func (p *PostgresRepository) UpdateStatus(ctx context.Context, id string, status Status) error {
	result, err := p.db.ExecContext(ctx,
		`UPDATE swift_processor.processed_messages SET status = $2, processed_at = $3 WHERE id = $1`,
		id, string(status), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("repository: update status failed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: update status failed: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	if p.cache != nil {
		p.cache.Del(ctx, cacheKey(id))
	}
	return nil
}

func (p *PostgresRepository) Count(ctx context.Context, filter Filter) (int, error) {
	where, args := filter.buildWhere()
	query := fmt.Sprintf(`SELECT COUNT(*) FROM swift_processor.processed_messages %s`, where)

	var count int
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("repository: count failed: %w", err)
	}
	return count, nil
}

func (f Filter) buildWhere() (string, []interface{}) {
	var clauses []string
	var args []interface{}
	add := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.MessageType != "" {
		add("message_type = $%d", f.MessageType)
	}
	if !f.FromDate.IsZero() {
		add("processed_at >= $%d", f.FromDate)
	}
	if !f.ToDate.IsZero() {
		add("processed_at <= $%d", f.ToDate)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func cacheKey(id string) string { return "processed_message:" + id }

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

// isTransient classifies a database error as retryable: connection
// loss, timeout, or a generic unavailability signal. Constraint
// violations and the like are not transient and surface immediately.
func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "connection", "unavailable", "too many clients", "deadline exceeded"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
