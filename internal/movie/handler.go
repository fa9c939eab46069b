package movie

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
)

var imdbIDRegex = regexp.MustCompile(`^tt\d{7,8}$`)

const maxJSONBodyBytes = 1 << 20

// Catalog is the persistence surface the handler needs; *Repository
// implements it.
type Catalog interface {
	List(ctx context.Context, query string) ([]Movie, error)
	Get(ctx context.Context, id string) (Movie, error)
	Create(ctx context.Context, input MovieInput) (Movie, error)
	Update(ctx context.Context, id string, input MovieInput) (Movie, error)
	Delete(ctx context.Context, id string) error
}

// MetadataSource looks up movie metadata at an external provider.
type MetadataSource interface {
	Lookup(ctx context.Context, term string) (Movie, error)
	LookupByTmdbID(ctx context.Context, tmdbID string) (Movie, error)
}

type Handler struct {
	catalog  Catalog
	metadata MetadataSource
}

func NewHandler(catalog Catalog, metadata MetadataSource) *Handler {
	return &Handler{catalog: catalog, metadata: metadata}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	movies, err := h.catalog.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("q")))
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list movies")
		return
	}

	writeJSON(w, http.StatusOK, movies)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	m, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "movie not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to load movie")
		return
	}

	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	m, err := h.catalog.Create(r.Context(), input)
	if err != nil {
		if errors.Is(err, ErrDuplicateExternalID) {
			writeError(w, http.StatusConflict, "movie with this external id already exists")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create movie")
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	m, err := h.catalog.Update(r.Context(), id, input)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "movie not found")
			return
		}
		if errors.Is(err, ErrDuplicateExternalID) {
			writeError(w, http.StatusConflict, "movie with this external id already exists")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to update movie")
		return
	}

	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.catalog.Delete(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "movie not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete movie")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Enrich fetches provider metadata for a stored movie, fills its gaps
// without overwriting anything already set, then persists the merged record.
func (h *Handler) Enrich(w http.ResponseWriter, r *http.Request) {
	if h.metadata == nil {
		writeError(w, http.StatusNotFound, "metadata provider is not configured")
		return
	}

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	stored, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "movie not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to load movie")
		return
	}

	var fetched Movie
	if stored.TmdbID != "" {
		fetched, err = h.metadata.LookupByTmdbID(r.Context(), stored.TmdbID)
	} else {
		fetched, err = h.metadata.Lookup(r.Context(), stored.Title)
	}
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusBadGateway, "failed to fetch movie metadata")
		return
	}

	EnrichWith(&stored, fetched)

	merged, err := h.catalog.Update(r.Context(), id, inputFrom(stored))
	if err != nil {
		if errors.Is(err, ErrDuplicateExternalID) {
			writeError(w, http.StatusConflict, "movie with this external id already exists")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to save enriched movie")
		return
	}

	writeJSON(w, http.StatusOK, merged)
}

func inputFrom(m Movie) MovieInput {
	input := MovieInput{
		Title:       m.Title,
		Year:        m.Year,
		Genre:       m.Genre,
		Description: m.Description,
		Rating:      m.Rating,
		ImdbID:      m.ImdbID,
		TmdbID:      m.TmdbID,
	}
	for _, image := range m.Images {
		input.Images = append(input.Images, ImageInput{URL: image.URL, Kind: image.Kind})
	}
	for _, rating := range m.Ratings {
		input.Ratings = append(input.Ratings, RatingInput{Source: rating.Source, Value: rating.Value})
	}
	return input
}

func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid movie id")
		return "", false
	}
	return id, true
}

func parseInput(w http.ResponseWriter, r *http.Request) (MovieInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input MovieInput
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return MovieInput{}, false
	}

	input.Title = strings.TrimSpace(input.Title)
	input.Genre = strings.TrimSpace(input.Genre)
	input.Description = strings.TrimSpace(input.Description)
	input.ImdbID = strings.TrimSpace(input.ImdbID)
	input.TmdbID = strings.TrimSpace(input.TmdbID)

	if input.Title == "" || utf8.RuneCountInString(input.Title) > 300 {
		writeError(w, http.StatusBadRequest, "title is required and must be at most 300 characters")
		return MovieInput{}, false
	}
	if input.Year != 0 && (input.Year < 1870 || input.Year > 2100) {
		writeError(w, http.StatusBadRequest, "year is out of range")
		return MovieInput{}, false
	}
	if input.Rating != nil && (*input.Rating < 0 || *input.Rating > 10) {
		writeError(w, http.StatusBadRequest, "rating must be between 0 and 10")
		return MovieInput{}, false
	}
	if input.ImdbID != "" && !imdbIDRegex.MatchString(input.ImdbID) {
		writeError(w, http.StatusBadRequest, "imdbId format is invalid")
		return MovieInput{}, false
	}
	for _, image := range input.Images {
		if !strings.HasPrefix(image.URL, "http://") && !strings.HasPrefix(image.URL, "https://") {
			writeError(w, http.StatusBadRequest, "image url must be an http(s) URL")
			return MovieInput{}, false
		}
	}

	return input, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"errorMessage": message})
}
