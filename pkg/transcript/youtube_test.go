package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/watch?list=PL123&v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://youtu.be/dQw4w9WgXcQ?t=42", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/v/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"  dQw4w9WgXcQ  ", "dQw4w9WgXcQ", false},
		{"https://vimeo.com/12345", "", true},
		{"not a url", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ExtractVideoID(tt.input)
		if tt.wantErr {
			var invalid *InvalidURLError
			if !errors.As(err, &invalid) {
				t.Errorf("ExtractVideoID(%q) err = %v, want InvalidURLError", tt.input, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ExtractVideoID(%q) err = %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ExtractVideoID(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// captionServer serves a fake watch page whose captionTracks point back
// at the same server, plus the json3 track bodies.
func captionServer(t *testing.T, tracks []map[string]string, events string) (*Fetcher, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		if len(tracks) == 0 {
			fmt.Fprint(w, `<html>{"playabilityStatus":{"status":"OK"}}</html>`)
			return
		}
		for i := range tracks {
			if tracks[i]["baseUrl"] == "" {
				tracks[i]["baseUrl"] = srv.URL + "/api/timedtext?lang=" + tracks[i]["languageCode"]
			}
		}
		raw, _ := json.Marshal(tracks)
		fmt.Fprintf(w, `<html>stuff "captionTracks":%s,"more":1</html>`, raw)
	})
	mux.HandleFunc("/api/timedtext", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, events)
	})
	return NewFetcher(WithWatchBaseURL(srv.URL + "/watch")), srv
}

const sampleEvents = `{"events":[
	{"tStartMs":0,"dDurationMs":2000,"segs":[{"utf8":"hello "},{"utf8":"world"}]},
	{"tStartMs":2000,"dDurationMs":3000,"segs":[{"utf8":"second line"}]},
	{"tStartMs":5000,"dDurationMs":1000}
]}`

func TestFetchJoinsSegments(t *testing.T) {
	f, _ := captionServer(t, []map[string]string{
		{"languageCode": "en"},
	}, sampleEvents)

	tr, err := f.Fetch(context.Background(), "https://youtu.be/dQw4w9WgXcQ", []string{"en"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if tr.Text != "hello world second line" {
		t.Fatalf("Text = %q, want %q", tr.Text, "hello world second line")
	}
	if tr.VideoID != "dQw4w9WgXcQ" {
		t.Fatalf("VideoID = %q", tr.VideoID)
	}
	if tr.Language != "en" || tr.Generated {
		t.Fatalf("track = (%q, generated=%v), want manual en", tr.Language, tr.Generated)
	}
	if tr.Duration != 6 {
		t.Fatalf("Duration = %v, want 6", tr.Duration)
	}
	if len(tr.Segments) != 2 {
		t.Fatalf("len(Segments) = %d, want 2", len(tr.Segments))
	}
	if tr.Segments[1].Start != 2 || tr.Segments[1].Duration != 3 {
		t.Fatalf("Segments[1] = %+v, want start 2s duration 3s", tr.Segments[1])
	}
}

func TestFetchPrefersManualOverGenerated(t *testing.T) {
	f, _ := captionServer(t, []map[string]string{
		{"languageCode": "en", "kind": "asr"},
		{"languageCode": "en"},
	}, sampleEvents)

	tr, err := f.Fetch(context.Background(), "dQw4w9WgXcQ", []string{"en"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if tr.Generated {
		t.Fatalf("a manual track must win over an auto-generated one")
	}
}

func TestFetchFallsBackToGenerated(t *testing.T) {
	f, _ := captionServer(t, []map[string]string{
		{"languageCode": "en-US", "kind": "asr"},
	}, sampleEvents)

	tr, err := f.Fetch(context.Background(), "dQw4w9WgXcQ", []string{"en"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !tr.Generated {
		t.Fatalf("expected the auto-generated track")
	}
	if tr.Language != "en-US" {
		t.Fatalf("Language = %q, want en-US via base-language match", tr.Language)
	}
}

func TestFetchNotFoundWhenLanguageMisses(t *testing.T) {
	f, _ := captionServer(t, []map[string]string{
		{"languageCode": "fr"},
	}, sampleEvents)

	_, err := f.Fetch(context.Background(), "dQw4w9WgXcQ", []string{"en"})
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want NotFoundError when no track is in a preferred language", err)
	}
	if notFound.VideoID != "dQw4w9WgXcQ" {
		t.Fatalf("VideoID = %q", notFound.VideoID)
	}
	if len(notFound.Languages) != 1 || notFound.Languages[0] != "en" {
		t.Fatalf("Languages = %v, want the attempted list [en]", notFound.Languages)
	}
}

func TestFetchNoCaptions(t *testing.T) {
	f, _ := captionServer(t, nil, "")

	_, err := f.Fetch(context.Background(), "dQw4w9WgXcQ", []string{"en"})
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
	if notFound.VideoID != "dQw4w9WgXcQ" {
		t.Fatalf("VideoID = %q", notFound.VideoID)
	}
}

func TestFetchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	f := NewFetcher(WithWatchBaseURL(srv.URL + "/watch"))

	_, err := f.Fetch(context.Background(), "dQw4w9WgXcQ", []string{"en"})
	var limited *RateLimitError
	if !errors.As(err, &limited) {
		t.Fatalf("err = %v, want RateLimitError", err)
	}
}

func TestFetchInvalidURL(t *testing.T) {
	f := NewFetcher()
	_, err := f.Fetch(context.Background(), "https://vimeo.com/999", []string{"en"})
	var invalid *InvalidURLError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidURLError", err)
	}
}
