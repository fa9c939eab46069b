package movie

import "time"

// Movie is one catalog entry. Rating is a pointer on purpose: nil means "no
// rating recorded", which is distinct from a legitimate 0.0 and is what the
// enrichment merge keys on.
type Movie struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Year        int       `json:"year"`
	Genre       string    `json:"genre"`
	Description string    `json:"description"`
	Rating      *float64  `json:"rating"`
	ImdbID      string    `json:"imdbId"`
	TmdbID      string    `json:"tmdbId"`
	Images      []Image   `json:"images"`
	Ratings     []Rating  `json:"ratings"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Image is a child record, cascade-deleted with its movie.
type Image struct {
	ID      string `json:"id"`
	MovieID string `json:"-"`
	URL     string `json:"url"`
	Kind    string `json:"kind"`
}

// Rating is one per-source score, cascade-deleted with its movie.
type Rating struct {
	ID      string  `json:"id"`
	MovieID string  `json:"-"`
	Source  string  `json:"source"`
	Value   float64 `json:"value"`
}

// MovieInput is the write DTO for create and update.
type MovieInput struct {
	Title       string        `json:"title"`
	Year        int           `json:"year"`
	Genre       string        `json:"genre"`
	Description string        `json:"description"`
	Rating      *float64      `json:"rating"`
	ImdbID      string        `json:"imdbId"`
	TmdbID      string        `json:"tmdbId"`
	Images      []ImageInput  `json:"images"`
	Ratings     []RatingInput `json:"ratings"`
}

type ImageInput struct {
	URL  string `json:"url"`
	Kind string `json:"kind"`
}

type RatingInput struct {
	Source string  `json:"source"`
	Value  float64 `json:"value"`
}
