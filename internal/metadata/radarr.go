// Package metadata fetches movie metadata from a Radarr-compatible provider.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"streamselect/internal/movie"
)

// ErrNotFound means the provider returned no match for the lookup term.
var ErrNotFound = errors.New("no metadata found")

type Radarr struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewRadarr(baseURL, apiKey string) (*Radarr, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse radarr url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("radarr url must be http(s)")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("radarr api key is required")
	}

	return &Radarr{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}, nil
}

type lookupRecord struct {
	Title    string   `json:"title"`
	Year     int      `json:"year"`
	Overview string   `json:"overview"`
	Genres   []string `json:"genres"`
	ImdbID   string   `json:"imdbId"`
	TmdbID   int64    `json:"tmdbId"`
	Images   []struct {
		CoverType string `json:"coverType"`
		RemoteURL string `json:"remoteUrl"`
	} `json:"images"`
	Ratings map[string]struct {
		Value float64 `json:"value"`
	} `json:"ratings"`
}

// Lookup searches the provider by title and maps the best (first) match.
func (r *Radarr) Lookup(ctx context.Context, term string) (movie.Movie, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return movie.Movie{}, ErrNotFound
	}
	return r.lookup(ctx, term)
}

// LookupByTmdbID uses Radarr's tmdb:<id> search syntax for an exact match.
func (r *Radarr) LookupByTmdbID(ctx context.Context, tmdbID string) (movie.Movie, error) {
	tmdbID = strings.TrimSpace(tmdbID)
	if tmdbID == "" {
		return movie.Movie{}, ErrNotFound
	}
	return r.lookup(ctx, "tmdb:"+tmdbID)
}

func (r *Radarr) lookup(ctx context.Context, term string) (movie.Movie, error) {
	endpoint := r.baseURL + "/api/v3/movie/lookup?term=" + url.QueryEscape(term)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return movie.Movie{}, fmt.Errorf("build radarr lookup request: %w", err)
	}
	req.Header.Set("X-Api-Key", r.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return movie.Movie{}, fmt.Errorf("radarr lookup request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return movie.Movie{}, fmt.Errorf("read radarr response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return movie.Movie{}, fmt.Errorf("radarr lookup returned status %d", resp.StatusCode)
	}

	var records []lookupRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return movie.Movie{}, fmt.Errorf("decode radarr response: %w", err)
	}
	if len(records) == 0 {
		return movie.Movie{}, ErrNotFound
	}

	return mapRecord(records[0]), nil
}

func mapRecord(record lookupRecord) movie.Movie {
	m := movie.Movie{
		Title:       record.Title,
		Year:        record.Year,
		Genre:       strings.Join(record.Genres, ", "),
		Description: record.Overview,
		ImdbID:      record.ImdbID,
	}
	if record.TmdbID != 0 {
		m.TmdbID = strconv.FormatInt(record.TmdbID, 10)
	}

	for _, image := range record.Images {
		if image.RemoteURL == "" {
			continue
		}
		m.Images = append(m.Images, movie.Image{URL: image.RemoteURL, Kind: image.CoverType})
	}

	for source, rating := range record.Ratings {
		m.Ratings = append(m.Ratings, movie.Rating{Source: source, Value: rating.Value})
	}

	// Prefer the imdb score as the headline rating, tmdb otherwise.
	for _, source := range []string{"imdb", "tmdb"} {
		if rating, ok := record.Ratings[source]; ok {
			value := rating.Value
			m.Rating = &value
			break
		}
	}

	return m
}
