package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lookupResponse = `[
	{
		"title": "Heat",
		"year": 1995,
		"overview": "A heist crew and a detective circle each other.",
		"genres": ["Crime", "Drama"],
		"imdbId": "tt0113277",
		"tmdbId": 949,
		"images": [
			{"coverType": "poster", "remoteUrl": "https://img/poster.jpg"},
			{"coverType": "fanart", "remoteUrl": ""}
		],
		"ratings": {
			"imdb": {"value": 8.3},
			"tmdb": {"value": 7.9}
		}
	},
	{"title": "Heat 2", "year": 2029}
]`

func newLookupServer(t *testing.T, status int, body string) (*httptest.Server, *http.Request) {
	t.Helper()

	captured := &http.Request{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = *r
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	return server, captured
}

func TestNewRadarrValidation(t *testing.T) {
	_, err := NewRadarr("ftp://radarr.local", "key")
	assert.Error(t, err)

	_, err = NewRadarr("https://radarr.local", "  ")
	assert.Error(t, err)

	client, err := NewRadarr("https://radarr.local/", "key")
	require.NoError(t, err)
	assert.Equal(t, "https://radarr.local", client.baseURL)
}

func TestLookupMapsFirstMatch(t *testing.T) {
	server, captured := newLookupServer(t, http.StatusOK, lookupResponse)

	client, err := NewRadarr(server.URL, "secret-key")
	require.NoError(t, err)

	m, err := client.Lookup(context.Background(), "Heat")
	require.NoError(t, err)

	assert.Equal(t, "secret-key", captured.Header.Get("X-Api-Key"))
	assert.Equal(t, "/api/v3/movie/lookup", captured.URL.Path)
	assert.Equal(t, "Heat", captured.URL.Query().Get("term"))

	assert.Equal(t, "Heat", m.Title)
	assert.Equal(t, 1995, m.Year)
	assert.Equal(t, "Crime, Drama", m.Genre)
	assert.Equal(t, "tt0113277", m.ImdbID)
	assert.Equal(t, "949", m.TmdbID)
	require.NotNil(t, m.Rating)
	assert.Equal(t, 8.3, *m.Rating, "imdb score wins as the headline rating")
	require.Len(t, m.Images, 1, "images without a remote url are dropped")
	assert.Equal(t, "https://img/poster.jpg", m.Images[0].URL)
	assert.Equal(t, "poster", m.Images[0].Kind)
	assert.Len(t, m.Ratings, 2)
}

func TestLookupByTmdbIDUsesSearchSyntax(t *testing.T) {
	server, captured := newLookupServer(t, http.StatusOK, lookupResponse)

	client, err := NewRadarr(server.URL, "key")
	require.NoError(t, err)

	_, err = client.LookupByTmdbID(context.Background(), "949")
	require.NoError(t, err)
	assert.Equal(t, "tmdb:949", captured.URL.Query().Get("term"))
}

func TestLookupNoMatch(t *testing.T) {
	server, _ := newLookupServer(t, http.StatusOK, `[]`)

	client, err := NewRadarr(server.URL, "key")
	require.NoError(t, err)

	_, err = client.Lookup(context.Background(), "does not exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupEmptyTermShortCircuits(t *testing.T) {
	client, err := NewRadarr("https://radarr.local", "key")
	require.NoError(t, err)

	_, err = client.Lookup(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = client.LookupByTmdbID(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupProviderError(t *testing.T) {
	server, _ := newLookupServer(t, http.StatusInternalServerError, `{"message":"boom"}`)

	client, err := NewRadarr(server.URL, "key")
	require.NoError(t, err)

	_, err = client.Lookup(context.Background(), "Heat")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
