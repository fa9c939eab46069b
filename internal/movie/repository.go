package movie

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateExternalID signals an imdb/tmdb id already present in the
// catalog (unique per entry, enforced by partial unique indexes).
var ErrDuplicateExternalID = errors.New("movie external id already exists")

const pgUniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// List returns catalog entries without children, newest first, optionally
// filtered by a case-insensitive title substring.
func (r *Repository) List(ctx context.Context, query string) ([]Movie, error) {
	const base = `
		SELECT id, title, year, genre, description, rating, imdb_id, tmdb_id, created_at, updated_at
		FROM movies`

	var rows *sql.Rows
	var err error
	if query == "" {
		rows, err = r.db.QueryContext(ctx, base+` ORDER BY created_at DESC`)
	} else {
		rows, err = r.db.QueryContext(ctx, base+` WHERE title ILIKE '%' || $1 || '%' ORDER BY created_at DESC`, query)
	}
	if err != nil {
		return nil, fmt.Errorf("query movies: %w", err)
	}
	defer rows.Close()

	movies := make([]Movie, 0)
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, err
		}
		movies = append(movies, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movies: %w", err)
	}

	return movies, nil
}

// Get returns one movie with its images and ratings.
func (r *Repository) Get(ctx context.Context, id string) (Movie, error) {
	var m Movie
	var rating sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, year, genre, description, rating, imdb_id, tmdb_id, created_at, updated_at
		FROM movies
		WHERE id = $1
	`, id).Scan(&m.ID, &m.Title, &m.Year, &m.Genre, &m.Description, &rating, &m.ImdbID, &m.TmdbID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Movie{}, err
		}
		return Movie{}, fmt.Errorf("query movie: %w", err)
	}
	if rating.Valid {
		m.Rating = &rating.Float64
	}

	if m.Images, err = r.imagesFor(ctx, id); err != nil {
		return Movie{}, err
	}
	if m.Ratings, err = r.ratingsFor(ctx, id); err != nil {
		return Movie{}, err
	}

	return m, nil
}

func (r *Repository) Create(ctx context.Context, input MovieInput) (Movie, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Movie{}, fmt.Errorf("generate movie id: %w", err)
	}

	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Movie{}, fmt.Errorf("begin create tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO movies (id, title, year, genre, description, rating, imdb_id, tmdb_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, id.String(), input.Title, input.Year, input.Genre, input.Description, ratingValue(input.Rating), input.ImdbID, input.TmdbID, now)
	if err != nil {
		return Movie{}, mapWriteError(err, "insert movie")
	}

	if err := insertChildren(ctx, tx, id.String(), input.Images, input.Ratings); err != nil {
		return Movie{}, err
	}

	if err := tx.Commit(); err != nil {
		return Movie{}, fmt.Errorf("commit create tx: %w", err)
	}

	return r.Get(ctx, id.String())
}

// Update replaces the movie row and its children. Returns sql.ErrNoRows when
// the id is unknown.
func (r *Repository) Update(ctx context.Context, id string, input MovieInput) (Movie, error) {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Movie{}, fmt.Errorf("begin update tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE movies
		SET title = $2, year = $3, genre = $4, description = $5, rating = $6, imdb_id = $7, tmdb_id = $8, updated_at = $9
		WHERE id = $1
	`, id, input.Title, input.Year, input.Genre, input.Description, ratingValue(input.Rating), input.ImdbID, input.TmdbID, now)
	if err != nil {
		return Movie{}, mapWriteError(err, "update movie")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Movie{}, fmt.Errorf("update rows affected: %w", err)
	}
	if affected == 0 {
		return Movie{}, sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM movie_images WHERE movie_id = $1`, id); err != nil {
		return Movie{}, fmt.Errorf("delete movie images: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM movie_ratings WHERE movie_id = $1`, id); err != nil {
		return Movie{}, fmt.Errorf("delete movie ratings: %w", err)
	}
	if err := insertChildren(ctx, tx, id, input.Images, input.Ratings); err != nil {
		return Movie{}, err
	}

	if err := tx.Commit(); err != nil {
		return Movie{}, fmt.Errorf("commit update tx: %w", err)
	}

	return r.Get(ctx, id)
}

// Delete removes the movie; images and ratings go with it via FK cascade.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM movies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete movie: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (r *Repository) imagesFor(ctx context.Context, movieID string) ([]Image, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, movie_id, url, kind
		FROM movie_images
		WHERE movie_id = $1
		ORDER BY id
	`, movieID)
	if err != nil {
		return nil, fmt.Errorf("query movie images: %w", err)
	}
	defer rows.Close()

	images := make([]Image, 0)
	for rows.Next() {
		var img Image
		if err := rows.Scan(&img.ID, &img.MovieID, &img.URL, &img.Kind); err != nil {
			return nil, fmt.Errorf("scan movie image: %w", err)
		}
		images = append(images, img)
	}

	return images, rows.Err()
}

func (r *Repository) ratingsFor(ctx context.Context, movieID string) ([]Rating, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, movie_id, source, value
		FROM movie_ratings
		WHERE movie_id = $1
		ORDER BY id
	`, movieID)
	if err != nil {
		return nil, fmt.Errorf("query movie ratings: %w", err)
	}
	defer rows.Close()

	ratings := make([]Rating, 0)
	for rows.Next() {
		var rating Rating
		if err := rows.Scan(&rating.ID, &rating.MovieID, &rating.Source, &rating.Value); err != nil {
			return nil, fmt.Errorf("scan movie rating: %w", err)
		}
		ratings = append(ratings, rating)
	}

	return ratings, rows.Err()
}

func insertChildren(ctx context.Context, tx *sql.Tx, movieID string, images []ImageInput, ratings []RatingInput) error {
	for _, image := range images {
		childID, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate image id: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO movie_images (id, movie_id, url, kind)
			VALUES ($1, $2, $3, $4)
		`, childID.String(), movieID, image.URL, image.Kind); err != nil {
			return fmt.Errorf("insert movie image: %w", err)
		}
	}

	for _, rating := range ratings {
		childID, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate rating id: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO movie_ratings (id, movie_id, source, value)
			VALUES ($1, $2, $3, $4)
		`, childID.String(), movieID, rating.Source, rating.Value); err != nil {
			return fmt.Errorf("insert movie rating: %w", err)
		}
	}

	return nil
}

func scanMovie(rows *sql.Rows) (Movie, error) {
	var m Movie
	var rating sql.NullFloat64
	if err := rows.Scan(&m.ID, &m.Title, &m.Year, &m.Genre, &m.Description, &rating, &m.ImdbID, &m.TmdbID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return Movie{}, fmt.Errorf("scan movie: %w", err)
	}
	if rating.Valid {
		m.Rating = &rating.Float64
	}
	m.Images = []Image{}
	m.Ratings = []Rating{}
	return m, nil
}

func ratingValue(rating *float64) any {
	if rating == nil {
		return nil
	}
	return *rating
}

func mapWriteError(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicateExternalID
	}
	return fmt.Errorf("%s: %w", op, err)
}
