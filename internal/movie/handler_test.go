package movie

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	mu     sync.Mutex
	movies map[string]Movie
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{movies: make(map[string]Movie)}
}

func (c *fakeCatalog) List(_ context.Context, query string) ([]Movie, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	movies := make([]Movie, 0, len(c.movies))
	for _, m := range c.movies {
		if query == "" || strings.Contains(strings.ToLower(m.Title), strings.ToLower(query)) {
			movies = append(movies, m)
		}
	}
	return movies, nil
}

func (c *fakeCatalog) Get(_ context.Context, id string) (Movie, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.movies[id]
	if !ok {
		return Movie{}, sql.ErrNoRows
	}
	return m, nil
}

func (c *fakeCatalog) Create(_ context.Context, input MovieInput) (Movie, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.movies {
		if input.ImdbID != "" && existing.ImdbID == input.ImdbID {
			return Movie{}, ErrDuplicateExternalID
		}
	}

	m := movieFromInput(uuid.NewString(), input)
	c.movies[m.ID] = m
	return m, nil
}

func (c *fakeCatalog) Update(_ context.Context, id string, input MovieInput) (Movie, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.movies[id]; !ok {
		return Movie{}, sql.ErrNoRows
	}

	m := movieFromInput(id, input)
	c.movies[id] = m
	return m, nil
}

func (c *fakeCatalog) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.movies[id]; !ok {
		return sql.ErrNoRows
	}
	delete(c.movies, id)
	return nil
}

func movieFromInput(id string, input MovieInput) Movie {
	m := Movie{
		ID:          id,
		Title:       input.Title,
		Year:        input.Year,
		Genre:       input.Genre,
		Description: input.Description,
		Rating:      input.Rating,
		ImdbID:      input.ImdbID,
		TmdbID:      input.TmdbID,
		Images:      []Image{},
		Ratings:     []Rating{},
	}
	for _, image := range input.Images {
		m.Images = append(m.Images, Image{MovieID: id, URL: image.URL, Kind: image.Kind})
	}
	for _, rating := range input.Ratings {
		m.Ratings = append(m.Ratings, Rating{MovieID: id, Source: rating.Source, Value: rating.Value})
	}
	return m
}

type fakeMetadata struct {
	movie Movie
	err   error

	lookupTerms []string
	tmdbIDs     []string
}

func (f *fakeMetadata) Lookup(_ context.Context, term string) (Movie, error) {
	f.lookupTerms = append(f.lookupTerms, term)
	return f.movie, f.err
}

func (f *fakeMetadata) LookupByTmdbID(_ context.Context, tmdbID string) (Movie, error) {
	f.tmdbIDs = append(f.tmdbIDs, tmdbID)
	return f.movie, f.err
}

func newMovieMux(catalog Catalog, metadata MetadataSource) *http.ServeMux {
	h := NewHandler(catalog, metadata)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /movies", h.List)
	mux.HandleFunc("GET /movies/{id}", h.Get)
	mux.HandleFunc("POST /movies", h.Create)
	mux.HandleFunc("PUT /movies/{id}", h.Update)
	mux.HandleFunc("DELETE /movies/{id}", h.Delete)
	mux.HandleFunc("POST /movies/{id}/enrich", h.Enrich)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeMovie(t *testing.T, rec *httptest.ResponseRecorder) Movie {
	t.Helper()

	var m Movie
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestCreateAndGetMovie(t *testing.T) {
	mux := newMovieMux(newFakeCatalog(), nil)

	rec := doJSON(t, mux, http.MethodPost, "/movies", map[string]any{
		"title":  "Heat",
		"year":   1995,
		"imdbId": "tt0113277",
		"images": []map[string]string{{"url": "https://img/poster.jpg", "kind": "poster"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeMovie(t, rec)
	assert.NotEmpty(t, created.ID)

	rec = doJSON(t, mux, http.MethodGet, "/movies/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeMovie(t, rec)
	assert.Equal(t, "Heat", got.Title)
	require.Len(t, got.Images, 1)
}

func TestCreateMovieValidation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing title", map[string]any{"year": 1995}},
		{"year out of range", map[string]any{"title": "Heat", "year": 1600}},
		{"rating out of range", map[string]any{"title": "Heat", "rating": 11.0}},
		{"bad imdb id", map[string]any{"title": "Heat", "imdbId": "nm0000129"}},
		{"bad image url", map[string]any{"title": "Heat", "images": []map[string]string{{"url": "ftp://img/poster.jpg"}}}},
		{"unknown field", map[string]any{"title": "Heat", "director": "Mann"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newMovieMux(newFakeCatalog(), nil)

			rec := doJSON(t, mux, http.MethodPost, "/movies", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), "errorMessage")
		})
	}
}

func TestCreateMovieDuplicateExternalID(t *testing.T) {
	mux := newMovieMux(newFakeCatalog(), nil)

	body := map[string]any{"title": "Heat", "imdbId": "tt0113277"}
	rec := doJSON(t, mux, http.MethodPost, "/movies", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/movies", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetMovieBadAndUnknownID(t *testing.T) {
	mux := newMovieMux(newFakeCatalog(), nil)

	rec := doJSON(t, mux, http.MethodGet, "/movies/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/movies/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateMovie(t *testing.T) {
	mux := newMovieMux(newFakeCatalog(), nil)

	rec := doJSON(t, mux, http.MethodPost, "/movies", map[string]any{"title": "Heat"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeMovie(t, rec)

	rec = doJSON(t, mux, http.MethodPut, "/movies/"+created.ID, map[string]any{"title": "Heat", "year": 1995})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1995, decodeMovie(t, rec).Year)

	rec = doJSON(t, mux, http.MethodPut, "/movies/"+uuid.NewString(), map[string]any{"title": "Heat"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteMovie(t *testing.T) {
	mux := newMovieMux(newFakeCatalog(), nil)

	rec := doJSON(t, mux, http.MethodPost, "/movies", map[string]any{"title": "Heat"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeMovie(t, rec)

	rec = doJSON(t, mux, http.MethodDelete, "/movies/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, mux, http.MethodDelete, "/movies/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnrichFillsGapsOnly(t *testing.T) {
	catalog := newFakeCatalog()
	metadata := &fakeMetadata{movie: Movie{
		Title:       "Heat (1995)",
		Year:        1995,
		Genre:       "Crime",
		Description: "provider text",
		Rating:      floatPtr(8.3),
		ImdbID:      "tt0113277",
		Images:      []Image{{URL: "https://img/fanart.jpg", Kind: "fanart"}},
		Ratings:     []Rating{{Source: "imdb", Value: 8.3}},
	}}
	mux := newMovieMux(catalog, metadata)

	rec := doJSON(t, mux, http.MethodPost, "/movies", map[string]any{"title": "Heat", "year": 1977})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeMovie(t, rec)

	rec = doJSON(t, mux, http.MethodPost, "/movies/"+created.ID+"/enrich", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	merged := decodeMovie(t, rec)

	assert.Equal(t, "Heat", merged.Title, "stored title wins")
	assert.Equal(t, 1977, merged.Year, "stored year wins")
	assert.Equal(t, "Crime", merged.Genre)
	assert.Equal(t, "provider text", merged.Description)
	assert.Equal(t, "tt0113277", merged.ImdbID)
	require.Len(t, merged.Images, 1)
	require.Len(t, merged.Ratings, 1)
	assert.Equal(t, []string{"Heat"}, metadata.lookupTerms, "no tmdb id means a title lookup")
}

func TestEnrichPrefersTmdbLookup(t *testing.T) {
	catalog := newFakeCatalog()
	metadata := &fakeMetadata{movie: Movie{Title: "Heat", TmdbID: "949"}}
	mux := newMovieMux(catalog, metadata)

	rec := doJSON(t, mux, http.MethodPost, "/movies", map[string]any{"title": "Heat", "tmdbId": "949"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeMovie(t, rec)

	rec = doJSON(t, mux, http.MethodPost, "/movies/"+created.ID+"/enrich", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"949"}, metadata.tmdbIDs)
	assert.Empty(t, metadata.lookupTerms)
}

func TestEnrichProviderFailure(t *testing.T) {
	catalog := newFakeCatalog()
	metadata := &fakeMetadata{err: errors.New("provider down")}
	mux := newMovieMux(catalog, metadata)

	rec := doJSON(t, mux, http.MethodPost, "/movies", map[string]any{"title": "Heat"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeMovie(t, rec)

	rec = doJSON(t, mux, http.MethodPost, "/movies/"+created.ID+"/enrich", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestEnrichWithoutProvider(t *testing.T) {
	mux := newMovieMux(newFakeCatalog(), nil)

	rec := doJSON(t, mux, http.MethodPost, "/movies/"+uuid.NewString()+"/enrich", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
