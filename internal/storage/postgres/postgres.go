package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"imageCutout/internal/config"
	"imageCutout/internal/models"
)

type Storage struct {
	DB *sql.DB
}

func InitDB(dbCfg *config.Database) (*Storage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbCfg.Host,
		dbCfg.Port,
		dbCfg.User,
		dbCfg.Password,
		dbCfg.DBName,
		dbCfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	return &Storage{DB: db}, nil
}

// Migrate applies pending schema migrations from migrationsPath.
func Migrate(dbCfg *config.Database, migrationsPath string) error {
	url := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		dbCfg.User,
		dbCfg.Password,
		dbCfg.Host,
		dbCfg.Port,
		dbCfg.DBName,
		dbCfg.SSLMode,
	)

	m, err := migrate.New("file://"+migrationsPath, url)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

func (s *Storage) SaveImage(ctx context.Context, image *models.Image) error {
	const op = "storage.postgres.SaveImage"

	query := `
        INSERT INTO images (id, short_id, original_url, processed_url, is_mirrored)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at`

	err := s.DB.QueryRowContext(ctx, query,
		image.ID,
		image.ShortID,
		image.OriginalURL,
		image.ProcessedURL,
		image.IsMirrored,
	).Scan(&image.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) GetImage(ctx context.Context, id string) (*models.Image, error) {
	const op = "storage.postgres.GetImage"

	query := `
        SELECT id, short_id, original_url, processed_url, is_mirrored, created_at
        FROM images
        WHERE id = $1`

	return s.scanImage(ctx, op, query, id)
}

func (s *Storage) GetImageByShortID(ctx context.Context, shortID string) (*models.Image, error) {
	const op = "storage.postgres.GetImageByShortID"

	query := `
        SELECT id, short_id, original_url, processed_url, is_mirrored, created_at
        FROM images
        WHERE short_id = $1`

	return s.scanImage(ctx, op, query, shortID)
}

func (s *Storage) scanImage(ctx context.Context, op, query string, arg any) (*models.Image, error) {
	image := &models.Image{}

	err := s.DB.QueryRowContext(ctx, query, arg).Scan(
		&image.ID,
		&image.ShortID,
		&image.OriginalURL,
		&image.ProcessedURL,
		&image.IsMirrored,
		&image.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: image %v not found: %w", op, arg, sql.ErrNoRows)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return image, nil
}

func (s *Storage) DeleteImage(ctx context.Context, id string) error {
	const op = "storage.postgres.DeleteImage"

	query := `
        DELETE FROM images
        WHERE id = $1`

	result, err := s.DB.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: image with ID %s not found: %w", op, id, sql.ErrNoRows)
	}

	return nil
}

func (s *Storage) Close() error {
	return s.DB.Close()
}
