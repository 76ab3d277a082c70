package media

import (
	"context"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/guptaanant682/memorybank-backend/internal/platform/envutil"
	"github.com/guptaanant682/memorybank-backend/internal/platform/faults"
	"github.com/guptaanant682/memorybank-backend/internal/platform/httpx"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

// Transcriber turns audio into transcript text.
type Transcriber interface {
	TranscribeBytes(ctx context.Context, audio []byte, mimeType string) (string, error)
	Close() error
}

type speechTranscriber struct {
	log        *logger.Logger
	client     *speech.Client
	language   string
	maxRetries int
	retryBase  time.Duration
	retryMax   time.Duration
}

func NewSpeechTranscriber(log *logger.Logger) (Transcriber, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	client, err := speech.NewClient(context.Background(), clientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &speechTranscriber{
		log:        log.With("service", "SpeechTranscriber"),
		client:     client,
		language:   envutil.Str("SPEECH_LANGUAGE", "en-US"),
		maxRetries: envutil.Int("SPEECH_MAX_RETRIES", 4),
		retryBase:  envutil.Duration("SPEECH_RETRY_BASE", 750*time.Millisecond),
		retryMax:   envutil.Duration("SPEECH_RETRY_MAX", 10*time.Second),
	}, nil
}

func (s *speechTranscriber) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *speechTranscriber) TranscribeBytes(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               s.language,
			EnableAutomaticPunctuation: true,
			Encoding:                   inferEncoding(mimeType),
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}

	var resp *speechpb.LongRunningRecognizeResponse
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			if err := httpx.SleepCtx(ctx, httpx.Backoff(attempt-1, s.retryBase, s.retryMax)); err != nil {
				return "", err
			}
		}
		op, err := s.client.LongRunningRecognize(ctx, req)
		if err == nil {
			resp, err = op.Wait(ctx)
		}
		if err == nil {
			break
		}
		lastErr = err
		if !transientGRPC(err) {
			return "", &faults.UpstreamError{
				Service:   "speech",
				Transient: false,
				Err:       fmt.Errorf("%w: %v", faults.ErrConversionFailed, err),
			}
		}
		resp = nil
	}
	if resp == nil {
		return "", &faults.UpstreamError{
			Service:   "speech",
			Transient: true,
			Err:       fmt.Errorf("%w: %v", faults.ErrConversionFailed, lastErr),
		}
	}

	var full strings.Builder
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		t := strings.TrimSpace(r.Alternatives[0].Transcript)
		if t == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(t)
	}
	return strings.TrimSpace(full.String()), nil
}

func inferEncoding(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.Contains(m, "wav"):
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac"):
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3") || strings.Contains(m, "mpeg"):
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(m, "ogg") || strings.Contains(m, "opus"):
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

func transientGRPC(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
