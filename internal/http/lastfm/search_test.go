package lastfm_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hbomb79/Marquee/internal/http/lastfm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *http.Request) {
	var captured http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = *r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)

	return server, &captured
}

func newSearcher(server *httptest.Server) lastfmSearcher {
	return lastfm.NewSearcherWithClient(lastfm.Config{ApiKey: "test-key", BaseURL: server.URL + "/2.0/"}, server.Client())
}

type lastfmSearcher interface {
	SearchTrack(ctx context.Context, query string) (*lastfm.Track, error)
}

func Test_SearchTrack_ReturnsMatch(t *testing.T) {
	server, req := newTestServer(t, http.StatusOK, `{
		"results": {
			"opensearch:totalResults": "1",
			"trackmatches": {"track": [{"name": "Clair de Lune", "artist": "Debussy", "url": "https://www.last.fm/music/Debussy/_/Clair+de+Lune"}]}
		}
	}`)

	track, err := newSearcher(server).SearchTrack(context.Background(), "song")
	require.NoError(t, err)
	assert.Equal(t, "Clair de Lune", track.Name)
	assert.Equal(t, "Debussy", track.Artist)

	query := req.URL.Query()
	assert.Equal(t, "/2.0/", req.URL.Path)
	assert.Equal(t, "track.search", query.Get("method"))
	assert.Equal(t, "song", query.Get("track"))
	assert.Equal(t, "test-key", query.Get("api_key"))
	assert.Equal(t, "json", query.Get("format"))
}

func Test_SearchTrack_PrefersClosestName(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK, `{
		"results": {
			"trackmatches": {"track": [
				{"name": "Moonlight Sonata (Remastered 2011)", "artist": "Beethoven"},
				{"name": "moonlight sonata", "artist": "Ludwig van Beethoven"}
			]}
		}
	}`)

	track, err := newSearcher(server).SearchTrack(context.Background(), "Moonlight Sonata")
	require.NoError(t, err)
	assert.Equal(t, "Ludwig van Beethoven", track.Artist)
}

func Test_SearchTrack_NoResults(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK, `{"results": {"trackmatches": {"track": []}}}`)

	track, err := newSearcher(server).SearchTrack(context.Background(), "raw_clip")
	assert.Nil(t, track)

	var noResult *lastfm.NoResultError
	assert.ErrorAs(t, err, &noResult)
}

func Test_SearchTrack_APIErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		httpCode   int
		lastfmCode int
	}{
		{"invalid api key", http.StatusForbidden, `{"error": 10, "message": "Invalid API key - You must be granted a valid key by last.fm"}`, http.StatusForbidden, 10},
		{"error in OK body", http.StatusOK, `{"error": 29, "message": "Rate limit exceeded"}`, http.StatusOK, 29},
		{"unparsable error body", http.StatusBadGateway, `<html>bad gateway</html>`, http.StatusBadGateway, -1},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			server, _ := newTestServer(t, test.status, test.body)

			_, err := newSearcher(server).SearchTrack(context.Background(), "anything")

			var failed *lastfm.FailedRequestError
			require.ErrorAs(t, err, &failed)
			assert.Equal(t, test.httpCode, failed.HTTPCode())
			assert.Equal(t, test.lastfmCode, failed.LastfmCode())
		})
	}
}

func Test_SearchTrack_MalformedBody(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK, `{"results": `)

	_, err := newSearcher(server).SearchTrack(context.Background(), "anything")

	var unknown *lastfm.UnknownRequestError
	assert.ErrorAs(t, err, &unknown)
}

func Test_SearchTrack_RequiresApiKey(t *testing.T) {
	searcher := lastfm.NewSearcher(lastfm.Config{})

	_, err := searcher.SearchTrack(context.Background(), "anything")

	var illegal *lastfm.IllegalRequestError
	assert.ErrorAs(t, err, &illegal)
}
