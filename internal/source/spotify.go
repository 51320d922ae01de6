package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultSpotifyBaseURL is the Spotify Web API endpoint.
const DefaultSpotifyBaseURL = "https://api.spotify.com/v1"

// TokenFunc supplies a valid access token for each request. Token refresh
// and the rest of the OAuth lifecycle live outside this adapter.
type TokenFunc func(ctx context.Context) (string, error)

// StaticToken wraps a fixed access token as a TokenFunc.
func StaticToken(token string) TokenFunc {
	return func(context.Context) (string, error) { return token, nil }
}

// SpotifySource polls the Spotify Web API currently-playing endpoint.
type SpotifySource struct {
	token      TokenFunc
	httpClient *http.Client
	baseURL    string
}

// SpotifyOption configures a SpotifySource.
type SpotifyOption func(*SpotifySource)

// WithSpotifyHTTPClient overrides the HTTP client.
func WithSpotifyHTTPClient(c *http.Client) SpotifyOption {
	return func(s *SpotifySource) { s.httpClient = c }
}

// WithSpotifyBaseURL overrides the API base URL, used for testing.
func WithSpotifyBaseURL(u string) SpotifyOption {
	return func(s *SpotifySource) { s.baseURL = strings.TrimRight(u, "/") }
}

// NewSpotifySource creates a Spotify source.
func NewSpotifySource(token TokenFunc, opts ...SpotifyOption) *SpotifySource {
	s := &SpotifySource{
		token:      token,
		httpClient: http.DefaultClient,
		baseURL:    DefaultSpotifyBaseURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Source.
func (s *SpotifySource) Name() string { return "spotify" }

// currentlyPlaying mirrors the subset of the Web API response we consume.
type currentlyPlaying struct {
	IsPlaying  bool  `json:"is_playing"`
	ProgressMs int64 `json:"progress_ms"`
	Item       *struct {
		Name       string `json:"name"`
		DurationMs int64  `json:"duration_ms"`
		Artists    []struct {
			Name string `json:"name"`
		} `json:"artists"`
		Album struct {
			Name   string `json:"name"`
			Images []struct {
				URL string `json:"url"`
			} `json:"images"`
		} `json:"album"`
	} `json:"item"`
}

// Current implements Source. API failures come back as error snapshots.
func (s *SpotifySource) Current(ctx context.Context) (Snapshot, error) {
	token, err := s.token(ctx)
	if err != nil {
		return ErrorSnapshot(s.Name(), "access token: "+err.Error()), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/me/player/currently-playing", nil)
	if err != nil {
		return ErrorSnapshot(s.Name(), err.Error()), nil
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return ErrorSnapshot(s.Name(), err.Error()), nil
	}
	defer resp.Body.Close()

	// 204 means no active device / nothing playing.
	if resp.StatusCode == http.StatusNoContent {
		return IdleSnapshot(s.Name()), nil
	}
	if resp.StatusCode != http.StatusOK {
		return ErrorSnapshot(s.Name(), fmt.Sprintf("spotify api status %d", resp.StatusCode)), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ErrorSnapshot(s.Name(), "read response: "+err.Error()), nil
	}
	if len(body) == 0 {
		return IdleSnapshot(s.Name()), nil
	}

	var cp currentlyPlaying
	if err := json.Unmarshal(body, &cp); err != nil {
		return ErrorSnapshot(s.Name(), "decode response: "+err.Error()), nil
	}
	if cp.Item == nil {
		return IdleSnapshot(s.Name()), nil
	}

	artists := make([]string, 0, len(cp.Item.Artists))
	for _, a := range cp.Item.Artists {
		artists = append(artists, a.Name)
	}

	snap := Snapshot{
		Playing:  cp.IsPlaying,
		Title:    cp.Item.Name,
		Artist:   strings.Join(artists, ", "),
		Album:    cp.Item.Album.Name,
		Duration: cp.Item.DurationMs,
		Progress: cp.ProgressMs,
		Source:   s.Name(),
	}
	if len(cp.Item.Album.Images) > 0 {
		snap.AlbumArt = cp.Item.Album.Images[0].URL
	}

	return snap.Clamped(), nil
}
