package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	defaultWatchBaseURL = "https://www.youtube.com/watch"
	maxWatchPageBytes   = 10 << 20
)

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?(?:.*&)?v=)([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`(?:youtu\.be/)([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`(?:youtube\.com/embed/)([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`(?:youtube\.com/v/)([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`^([A-Za-z0-9_-]{11})$`),
}

// ExtractVideoID pulls the 11-character video ID out of a YouTube URL.
// A bare video ID is accepted as-is.
func ExtractVideoID(input string) (string, error) {
	input = strings.TrimSpace(input)
	for _, re := range videoIDPatterns {
		if m := re.FindStringSubmatch(input); m != nil {
			return m[1], nil
		}
	}
	return "", &InvalidURLError{Input: input}
}

// Segment is one caption event.
type Segment struct {
	Text     string
	Start    float64
	Duration float64
}

// Transcript is the caption text of one video.
type Transcript struct {
	VideoID  string
	Language string
	// Generated reports whether the track was auto-generated (ASR)
	// rather than uploaded by the channel.
	Generated bool
	Text      string
	Segments  []Segment
	// Duration is the end of the last caption event, in seconds.
	Duration float64
}

// Fetcher downloads caption tracks from YouTube's public watch pages.
// No API key is needed; only videos with captions enabled will resolve.
type Fetcher struct {
	httpClient   *http.Client
	watchBaseURL string
}

// FetcherOption customizes a Fetcher.
type FetcherOption func(*Fetcher)

// WithWatchBaseURL overrides the watch page endpoint. Used in tests.
func WithWatchBaseURL(url string) FetcherOption {
	return func(f *Fetcher) {
		f.watchBaseURL = strings.TrimRight(url, "/")
	}
}

// NewFetcher builds a caption fetcher.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		watchBaseURL: defaultWatchBaseURL,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch resolves the video ID, picks the best caption track and returns
// its text. Manually uploaded tracks in a preferred language win over
// auto-generated ones; auto-generated tracks are the fallback.
func (f *Fetcher) Fetch(ctx context.Context, input string, languages []string) (Transcript, error) {
	videoID, err := ExtractVideoID(input)
	if err != nil {
		return Transcript{}, err
	}

	tracks, err := f.listCaptionTracks(ctx, videoID)
	if err != nil {
		return Transcript{}, err
	}
	track, ok := pickTrack(tracks, languages)
	if !ok {
		return Transcript{}, &NotFoundError{VideoID: videoID, Languages: languages}
	}

	segments, duration, err := f.fetchTrack(ctx, videoID, track.BaseURL)
	if err != nil {
		return Transcript{}, err
	}
	text := joinSegments(segments)
	if text == "" {
		return Transcript{}, &NotFoundError{VideoID: videoID, Languages: languages}
	}
	return Transcript{
		VideoID:   videoID,
		Language:  track.LanguageCode,
		Generated: track.Kind == "asr",
		Text:      text,
		Segments:  segments,
		Duration:  duration,
	}, nil
}

func joinSegments(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

// listCaptionTracks scrapes the player response embedded in the watch
// page for its captionTracks array.
func (f *Fetcher) listCaptionTracks(ctx context.Context, videoID string) ([]captionTrack, error) {
	url := fmt.Sprintf("%s?v=%s", f.watchBaseURL, videoID)
	body, err := f.get(ctx, videoID, url)
	if err != nil {
		return nil, err
	}

	const marker = `"captionTracks":`
	idx := strings.Index(body, marker)
	if idx < 0 {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(body[idx+len(marker):]))
	var tracks []captionTrack
	if err := dec.Decode(&tracks); err != nil {
		return nil, &FetchError{VideoID: videoID, Err: fmt.Errorf("parse caption tracks: %w", err)}
	}
	return tracks, nil
}

// pickTrack prefers manual tracks in listed language order, then
// auto-generated tracks in the same order. A track outside the listed
// languages never matches; the caller reports not-found.
func pickTrack(tracks []captionTrack, languages []string) (captionTrack, bool) {
	manual := make([]captionTrack, 0, len(tracks))
	generated := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if t.BaseURL == "" {
			continue
		}
		if t.Kind == "asr" {
			generated = append(generated, t)
		} else {
			manual = append(manual, t)
		}
	}
	for _, group := range [][]captionTrack{manual, generated} {
		for _, lang := range languages {
			for _, t := range group {
				if strings.EqualFold(baseLanguage(t.LanguageCode), baseLanguage(lang)) {
					return t, true
				}
			}
		}
		if len(languages) == 0 && len(group) > 0 {
			return group[0], true
		}
	}
	return captionTrack{}, false
}

func baseLanguage(code string) string {
	if i := strings.IndexAny(code, "-_"); i > 0 {
		return code[:i]
	}
	return code
}

// fetchTrack downloads the track in json3 format and parses its events.
func (f *Fetcher) fetchTrack(ctx context.Context, videoID, baseURL string) ([]Segment, float64, error) {
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	body, err := f.get(ctx, videoID, baseURL+sep+"fmt=json3")
	if err != nil {
		return nil, 0, err
	}

	var payload struct {
		Events []struct {
			StartMs    int64 `json:"tStartMs"`
			DurationMs int64 `json:"dDurationMs"`
			Segs       []struct {
				UTF8 string `json:"utf8"`
			} `json:"segs"`
		} `json:"events"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, 0, &FetchError{VideoID: videoID, Err: fmt.Errorf("parse caption events: %w", err)}
	}

	var segments []Segment
	var endMs int64
	for _, ev := range payload.Events {
		if end := ev.StartMs + ev.DurationMs; end > endMs {
			endMs = end
		}
		var sb strings.Builder
		for _, seg := range ev.Segs {
			sb.WriteString(seg.UTF8)
		}
		if line := strings.TrimSpace(sb.String()); line != "" {
			segments = append(segments, Segment{
				Text:     line,
				Start:    float64(ev.StartMs) / 1000,
				Duration: float64(ev.DurationMs) / 1000,
			})
		}
	}
	return segments, float64(endMs) / 1000, nil
}

func (f *Fetcher) get(ctx context.Context, videoID, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &FetchError{VideoID: videoID, Err: err}
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", &FetchError{VideoID: videoID, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &RateLimitError{VideoID: videoID}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{VideoID: videoID, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWatchPageBytes))
	if err != nil {
		return "", &FetchError{VideoID: videoID, Err: err}
	}
	return string(body), nil
}
