package speech

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	gax "github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/durationpb"
)

const defaultMaxAudioBytes = 25 << 20

var defaultFormats = []string{"mp3", "wav", "flac", "ogg", "m4a"}

// recognizer is the slice of *speech.Client the transcriber needs.
// Tests substitute a fake.
type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
}

// Options bound what the transcriber accepts.
type Options struct {
	// Languages is the BCP-47 allow-list, first entry is the default.
	Languages []string
	// Formats is the accepted file extension list, without dots.
	Formats []string
	// MaxBytes caps the audio payload size.
	MaxBytes int64
	// SampleRateHertz is passed through when non-zero; the API infers
	// it from the file header otherwise.
	SampleRateHertz int
}

// Result is one transcription.
type Result struct {
	Text       string
	Language   string
	Confidence float64
	Words      []Word
	// Duration is the end offset of the last recognized word, seconds.
	// Trailing silence is not counted.
	Duration float64
}

// Word is one recognized word with its time offsets.
type Word struct {
	Word  string
	Start float64
	End   float64
}

// Transcriber converts audio files to text with Google Speech-to-Text.
type Transcriber struct {
	client recognizer
	closer io.Closer
	opts   Options
}

// NewTranscriber validates the credentials and project settings, then
// dials the Speech-to-Text API.
func NewTranscriber(ctx context.Context, credentialsFile, projectID string, opts Options) (*Transcriber, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, &ConfigError{Message: "google project id is required"}
	}
	if strings.TrimSpace(credentialsFile) == "" {
		return nil, &ConfigError{Message: "google credentials file is required"}
	}
	if _, err := os.Stat(credentialsFile); err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("google credentials file %q is not readable: %v", credentialsFile, err)}
	}
	c, err := speech.NewClient(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	t := newTranscriber(c, opts)
	t.closer = c
	return t, nil
}

func newTranscriber(client recognizer, opts Options) *Transcriber {
	if len(opts.Languages) == 0 {
		opts.Languages = []string{"en-US"}
	}
	if len(opts.Formats) == 0 {
		opts.Formats = defaultFormats
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxAudioBytes
	}
	return &Transcriber{client: client, opts: opts}
}

// Close releases the underlying gRPC connection.
func (t *Transcriber) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}

// DefaultLanguage returns the first allow-listed language.
func (t *Transcriber) DefaultLanguage() string { return t.opts.Languages[0] }

// MaxBytes returns the configured audio size ceiling.
func (t *Transcriber) MaxBytes() int64 { return t.opts.MaxBytes }

// ValidateFormat rejects filenames whose extension is not allowed.
// Callers run this before downloading anything.
func (t *Transcriber) ValidateFormat(filename string) error {
	ext := normalizeExt(filename)
	for _, f := range t.opts.Formats {
		if ext == f {
			return nil
		}
	}
	return &UnsupportedFormatError{Format: ext, Supported: t.opts.Formats}
}

// Transcribe recognizes one audio file. Checks run in order: language
// allow-list, blob read, size ceiling, format. size < 0 means unknown,
// which is logged and waved through.
func (t *Transcriber) Transcribe(ctx context.Context, r io.Reader, filename, language string, size int64) (Result, error) {
	if language == "" {
		language = t.DefaultLanguage()
	}
	base := filepath.Base(filename)
	if !t.languageAllowed(language) {
		return Result{}, &APIError{File: base, Language: language, Err: fmt.Errorf(
			"language %q is not enabled, allowed: %s",
			language, strings.Join(t.opts.Languages, ", "))}
	}

	audio, err := io.ReadAll(io.LimitReader(r, t.opts.MaxBytes+1))
	if err != nil {
		return Result{}, &APIError{File: base, Language: language, Err: fmt.Errorf("read audio: %w", err)}
	}
	if size < 0 {
		slog.Warn("audio size unknown, skipping ceiling check", "file", base)
	}
	if int64(len(audio)) > t.opts.MaxBytes {
		return Result{}, &TooLargeError{Size: int64(len(audio)), Max: t.opts.MaxBytes}
	}
	if err := t.ValidateFormat(filename); err != nil {
		return Result{}, err
	}
	if len(audio) == 0 {
		return Result{Language: language}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               language,
			Encoding:                   inferEncoding(filename),
			SampleRateHertz:            int32(t.opts.SampleRateHertz),
			EnableAutomaticPunctuation: true,
			EnableWordTimeOffsets:      true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}
	resp, err := t.client.Recognize(ctx, req)
	if err != nil {
		return Result{}, &APIError{File: base, Language: language, Err: err}
	}
	result := parseResponse(resp)
	result.Language = language
	return result, nil
}

func (t *Transcriber) languageAllowed(language string) bool {
	for _, l := range t.opts.Languages {
		if strings.EqualFold(l, language) {
			return true
		}
	}
	return false
}

func normalizeExt(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

func inferEncoding(filename string) speechpb.RecognitionConfig_AudioEncoding {
	switch normalizeExt(filename) {
	case "wav":
		return speechpb.RecognitionConfig_LINEAR16
	case "flac":
		return speechpb.RecognitionConfig_FLAC
	case "mp3", "m4a":
		return speechpb.RecognitionConfig_MP3
	case "ogg", "opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

// parseResponse joins the top alternatives, averages their confidence
// and takes the last word end offset as the audio duration.
func parseResponse(resp *speechpb.RecognizeResponse) Result {
	var out Result
	if resp == nil {
		return out
	}
	var parts []string
	var confSum float64
	var confN int
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		alt := r.Alternatives[0]
		if text := strings.TrimSpace(alt.Transcript); text != "" {
			parts = append(parts, text)
			confSum += float64(alt.Confidence)
			confN++
		}
		for _, w := range alt.Words {
			if w == nil {
				continue
			}
			word := Word{
				Word:  w.Word,
				Start: durToSec(w.StartTime),
				End:   durToSec(w.EndTime),
			}
			out.Words = append(out.Words, word)
			if word.End > out.Duration {
				out.Duration = word.End
			}
		}
	}
	out.Text = strings.Join(parts, " ")
	if confN > 0 {
		out.Confidence = confSum / float64(confN)
	}
	return out
}

func durToSec(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return float64(d.Seconds) + float64(d.Nanos)/1e9
}
