package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"vidtube/internal/config"
	"vidtube/internal/models"
	"vidtube/internal/storage"
	"vidtube/internal/storage/postgres/migrations"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const uniqueViolation = "23505"

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	poolConfig, err := pgxpool.ParseConfig(dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	if err := runMigrations(ctx, dsn(cfg)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

// runMigrations applies embedded goose migrations over a short-lived
// database/sql connection; pgxpool has no database/sql adapter.
func runMigrations(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}

func (r *PostgresRepo) SaveUser(ctx context.Context, u models.User) (int64, error) {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (username, email, full_name, password_hash, avatar_url, cover_image_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id;
	`

	var id int64

	err := r.pool.QueryRow(ctx, query,
		strings.ToLower(u.Username), u.Email, u.FullName, u.PassHash, u.AvatarURL, u.CoverImageURL,
	).Scan(&id)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == uniqueViolation {
			return 0, storage.ErrUserExists
		}

		return 0, fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return id, nil
}

const userColumns = `id, username, email, full_name, password_hash, avatar_url, cover_image_url, refresh_token_hash, created_at, updated_at`

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.FullName,
		&u.PassHash,
		&u.AvatarURL,
		&u.CoverImageURL,
		&u.RefreshTokenHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, storage.ErrUserNotFound
	}

	return u, err
}

func (r *PostgresRepo) UserByID(ctx context.Context, id int64) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1;`

	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// UserByIdentifier resolves a user by username or email. Usernames are stored
// lowercase, so the lookup normalizes the identifier the same way.
func (r *PostgresRepo) UserByIdentifier(ctx context.Context, identifier string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1 OR email = $2;`

	return scanUser(r.pool.QueryRow(ctx, query, strings.ToLower(identifier), identifier))
}

func (r *PostgresRepo) UpdateAccount(ctx context.Context, id int64, fullName, email string) (models.User, error) {
	const op = "storage.postgres.UpdateAccount"

	query := `
		UPDATE users
		SET full_name = $1, email = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING ` + userColumns + `;`

	u, err := scanUser(r.pool.QueryRow(ctx, query, fullName, email, id))
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == uniqueViolation {
			return models.User{}, storage.ErrUserExists
		}
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (r *PostgresRepo) UpdatePassword(ctx context.Context, id int64, passHash []byte) error {
	query := `UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2;`

	tag, err := r.pool.Exec(ctx, query, passHash, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (r *PostgresRepo) UpdateAvatar(ctx context.Context, id int64, url string) (models.User, error) {
	query := `UPDATE users SET avatar_url = $1, updated_at = NOW() WHERE id = $2 RETURNING ` + userColumns + `;`

	return scanUser(r.pool.QueryRow(ctx, query, url, id))
}

func (r *PostgresRepo) UpdateCoverImage(ctx context.Context, id int64, url string) (models.User, error) {
	query := `UPDATE users SET cover_image_url = $1, updated_at = NOW() WHERE id = $2 RETURNING ` + userColumns + `;`

	return scanUser(r.pool.QueryRow(ctx, query, url, id))
}

// SetSession unconditionally overwrites the stored refresh token hash.
// Logging in revokes any previous session: one live session per user.
func (r *PostgresRepo) SetSession(ctx context.Context, userID int64, tokenHash []byte) error {
	query := `UPDATE users SET refresh_token_hash = $1, updated_at = NOW() WHERE id = $2;`

	tag, err := r.pool.Exec(ctx, query, tokenHash, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

// RotateSession swaps the stored refresh token hash only if it still equals
// oldHash. The conditional UPDATE is the compare-and-swap that makes two
// concurrent refreshes with the same token resolve to a single winner.
func (r *PostgresRepo) RotateSession(ctx context.Context, userID int64, oldHash, newHash []byte) error {
	query := `
		UPDATE users
		SET refresh_token_hash = $1, updated_at = NOW()
		WHERE id = $2 AND refresh_token_hash = $3;
	`

	tag, err := r.pool.Exec(ctx, query, newHash, userID, oldHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrSessionMismatch
	}

	return nil
}

func (r *PostgresRepo) ClearSession(ctx context.Context, userID int64) error {
	query := `UPDATE users SET refresh_token_hash = NULL, updated_at = NOW() WHERE id = $1;`

	tag, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (r *PostgresRepo) Subscribe(ctx context.Context, subscriberID, channelID int64) error {
	const op = "storage.postgres.Subscribe"

	query := `INSERT INTO subscriptions (subscriber_id, channel_id) VALUES ($1, $2);`

	_, err := r.pool.Exec(ctx, query, subscriberID, channelID)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == uniqueViolation {
			return storage.ErrAlreadySubscribed
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) Unsubscribe(ctx context.Context, subscriberID, channelID int64) error {
	query := `DELETE FROM subscriptions WHERE subscriber_id = $1 AND channel_id = $2;`

	tag, err := r.pool.Exec(ctx, query, subscriberID, channelID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotSubscribed
	}

	return nil
}

// ChannelProfile aggregates a channel's public data with its subscriber
// counts and whether the viewer subscribes to it, in a single round trip.
func (r *PostgresRepo) ChannelProfile(ctx context.Context, username string, viewerID int64) (models.ChannelProfile, error) {
	const op = "storage.postgres.ChannelProfile"

	query := `
		SELECT
			u.id, u.username, u.email, u.full_name, u.avatar_url, u.cover_image_url, u.created_at,
			(SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = u.id)    AS subscriber_count,
			(SELECT COUNT(*) FROM subscriptions s WHERE s.subscriber_id = u.id) AS subscribed_to_count,
			EXISTS (
				SELECT 1 FROM subscriptions s
				WHERE s.channel_id = u.id AND s.subscriber_id = $2
			) AS is_subscribed
		FROM users u
		WHERE u.username = $1;
	`

	var p models.ChannelProfile
	err := r.pool.QueryRow(ctx, query, strings.ToLower(username), viewerID).Scan(
		&p.ID,
		&p.Username,
		&p.Email,
		&p.FullName,
		&p.AvatarURL,
		&p.CoverImageURL,
		&p.CreatedAt,
		&p.SubscriberCount,
		&p.SubscribedToCount,
		&p.IsSubscribed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ChannelProfile{}, storage.ErrUserNotFound
		}

		return models.ChannelProfile{}, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
