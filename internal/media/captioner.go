package media

import (
	"context"
	"fmt"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/guptaanant682/memorybank-backend/internal/platform/faults"
	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

// Captioner turns images into descriptive text: extracted text plus scene
// labels, good enough to chunk and index like any other document.
type Captioner interface {
	CaptionBytes(ctx context.Context, img []byte, mimeType string) (string, error)
	Close() error
}

type visionCaptioner struct {
	log    *logger.Logger
	client *vision.ImageAnnotatorClient
}

func NewVisionCaptioner(log *logger.Logger) (Captioner, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	client, err := vision.NewImageAnnotatorClient(context.Background(), clientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &visionCaptioner{
		log:    log.With("service", "VisionCaptioner"),
		client: client,
	}, nil
}

func (s *visionCaptioner) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *visionCaptioner) CaptionBytes(ctx context.Context, img []byte, mimeType string) (string, error) {
	if len(img) == 0 {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image: &visionpb.Image{Content: img},
			Features: []*visionpb.Feature{
				{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				{Type: visionpb.Feature_LABEL_DETECTION, MaxResults: 10},
			},
		}},
	}

	resp, err := s.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return "", &faults.UpstreamError{
			Service:   "vision",
			Transient: transientGRPC(err),
			Err:       fmt.Errorf("%w: %v", faults.ErrConversionFailed, err),
		}
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return "", nil
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return "", &faults.UpstreamError{
			Service:   "vision",
			Transient: false,
			Err:       fmt.Errorf("%w: %s", faults.ErrConversionFailed, r0.Error.Message),
		}
	}

	var parts []string
	if fta := r0.FullTextAnnotation; fta != nil && strings.TrimSpace(fta.Text) != "" {
		parts = append(parts, collapseWhitespace(fta.Text))
	}
	if len(r0.LabelAnnotations) > 0 {
		labels := make([]string, 0, len(r0.LabelAnnotations))
		for _, l := range r0.LabelAnnotations {
			if l != nil && l.Description != "" {
				labels = append(labels, l.Description)
			}
		}
		if len(labels) > 0 {
			parts = append(parts, "Image shows: "+strings.Join(labels, ", ")+".")
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n")), nil
}

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
