package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/hbomb79/Marquee/pkg/logger"
)

const (
	DefaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

	trackSearchMethod = "track.search"
	searchResultLimit = 5
)

var log = logger.Get("LastFM")

type (
	Config struct {
		ApiKey         string `yaml:"api_key" env:"LASTFM_API_KEY"`
		BaseURL        string `yaml:"base_url" env:"LASTFM_BASE_URL" env-default:"https://ws.audioscrobbler.com/2.0/" validate:"required,url"`
		TimeoutSeconds int    `yaml:"timeout_seconds" env:"LASTFM_TIMEOUT_SECONDS" env-default:"10" validate:"gte=0"`
	}

	Track struct {
		Name      string `json:"name"`
		Artist    string `json:"artist"`
		URL       string `json:"url"`
		Listeners string `json:"listeners"`
	}

	trackSearchResponse struct {
		lastfmError
		Results struct {
			TotalResults string `json:"opensearch:totalResults"`
			TrackMatches struct {
				Track []Track `json:"track"`
			} `json:"trackmatches"`
		} `json:"results"`
	}

	lastfmError struct {
		Code    int    `json:"error"`
		Message string `json:"message"`
	}

	// lastfmSearcher looks up track information from the Last.fm API
	// using free-text queries (typically the stem of an uploaded filename).
	// See https://www.last.fm/api/show/track.search
	lastfmSearcher struct {
		config Config
		client *http.Client
	}
)

func NewSearcher(config Config) *lastfmSearcher {
	client := &http.Client{Timeout: time.Duration(config.TimeoutSeconds) * time.Second}
	return NewSearcherWithClient(config, client)
}

func NewSearcherWithClient(config Config, client *http.Client) *lastfmSearcher {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}

	return &lastfmSearcher{config, client}
}

// SearchTrack queries Last.fm for tracks matching the query provided and
// returns the closest match. An error will be raised if:
//   - No API key is configured
//   - The request to Last.fm fails, or Last.fm reports an error
//   - The search returns zero results
func (searcher *lastfmSearcher) SearchTrack(ctx context.Context, query string) (*Track, error) {
	if searcher.config.ApiKey == "" {
		return nil, &IllegalRequestError{"no Last.fm API key has been configured"}
	}

	params := url.Values{}
	params.Set("method", trackSearchMethod)
	params.Set("track", query)
	params.Set("api_key", searcher.config.ApiKey)
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(searchResultLimit))

	var response trackSearchResponse
	if err := searcher.httpGetJsonResponse(ctx, searcher.config.BaseURL+"?"+params.Encode(), &response); err != nil {
		return nil, err
	}

	if response.Code != 0 {
		return nil, &FailedRequestError{httpCode: http.StatusOK, lastfmCode: response.Code, message: response.Message}
	}

	return bestMatch(response.Results.TrackMatches.Track, query)
}

// bestMatch selects the result whose name is most similar to the query.
// Ties are broken by Last.fm's own ordering, which is by relevance.
func bestMatch(tracks []Track, query string) (*Track, error) {
	if len(tracks) == 0 {
		return nil, &NoResultError{}
	} else if len(tracks) == 1 {
		return &tracks[0], nil
	}

	metric := &metrics.Hamming{CaseSensitive: false}
	bestIdx, bestScore := 0, -1.0
	for i, track := range tracks {
		score := strutil.Similarity(track.Name, query, metric)
		if score > bestScore {
			bestIdx, bestScore = i, score
		}
	}

	log.Emit(logger.DEBUG, "Selected Last.fm result %q by %q for query %q (similarity %.2f)\n", tracks[bestIdx].Name, tracks[bestIdx].Artist, query, bestScore)
	return &tracks[bestIdx], nil
}

func (searcher *lastfmSearcher) httpGetJsonResponse(ctx context.Context, urlPath string, targetInterface interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlPath, nil)
	if err != nil {
		return &UnknownRequestError{fmt.Sprintf("failed to construct request: %s", err.Error())}
	}

	resp, err := searcher.client.Do(req)
	if err != nil {
		return &UnknownRequestError{fmt.Sprintf("failed to perform GET to Last.fm: %s", err.Error())}
	}

	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		var apiError lastfmError
		if err := json.Unmarshal(respBody, &apiError); err != nil {
			return &FailedRequestError{httpCode: resp.StatusCode, message: "non-OK response could not be unmarshalled", lastfmCode: -1}
		}

		return &FailedRequestError{httpCode: resp.StatusCode, message: apiError.Message, lastfmCode: apiError.Code}
	}

	if err != nil {
		return &UnknownRequestError{fmt.Sprintf("failed to read response body: %s", err.Error())}
	}

	if err := json.Unmarshal(respBody, targetInterface); err != nil {
		return &UnknownRequestError{fmt.Sprintf("response JSON could not be unmarshalled: %s", err.Error())}
	}

	return nil
}

type (
	FailedRequestError struct {
		httpCode   int
		lastfmCode int
		message    string
	}
	NoResultError       struct{}
	UnknownRequestError struct{ reason string }
	IllegalRequestError struct{ reason string }
)

func (err *UnknownRequestError) Error() string {
	return fmt.Sprintf("unknown error occurred while communicating with Last.fm: %s", err.reason)
}
func (err *IllegalRequestError) Error() string {
	return fmt.Sprintf("illegal search request because %s", err.reason)
}
func (err *FailedRequestError) Error() string {
	return fmt.Sprintf("Request failure (HTTP %d, Last.fm error %d): %s", err.httpCode, err.lastfmCode, err.message)
}
func (err *FailedRequestError) HTTPCode() int   { return err.httpCode }
func (err *FailedRequestError) LastfmCode() int { return err.lastfmCode }
func (err *NoResultError) Error() string        { return "no results returned from Last.fm" }
