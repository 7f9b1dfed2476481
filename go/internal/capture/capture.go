package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrCaptureCancelled is returned when the operator abandons enrollment.
var ErrCaptureCancelled = errors.New("face capture cancelled")

// DefaultRequiredSamples is how many frames make up one face template.
const DefaultRequiredSamples = 3

// CaptureRequest describes whose face is being enrolled
type CaptureRequest struct {
	Name string
	// Frames are samples already taken by the caller's camera, if any
	Frames []string
}

// Capturer produces an opaque face template for enrollment
type Capturer interface {
	Capture(ctx context.Context, req CaptureRequest) ([]byte, error)
}

// FrameSource yields encoded camera frames. Returning ErrCaptureCancelled
// aborts the capture.
type FrameSource interface {
	NextFrame(ctx context.Context) (string, error)
}

// Template is the serialized bundle stored as Employee.FaceData
type Template struct {
	Images       []string `json:"images"`
	Timestamp    int64    `json:"timestamp"` // unix millis
	CaptureCount int      `json:"captureCount"`
}

// SampleCapturer collects a fixed number of frames into a Template
type SampleCapturer struct {
	source   FrameSource
	required int
	clock    clockwork.Clock
}

// NewSampleCapturer creates a capturer that needs required frames (DefaultRequiredSamples when <= 0)
func NewSampleCapturer(source FrameSource, required int, clock clockwork.Clock) *SampleCapturer {
	if required <= 0 {
		required = DefaultRequiredSamples
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SampleCapturer{source: source, required: required, clock: clock}
}

// Capture reads frames until enough samples are collected
func (c *SampleCapturer) Capture(ctx context.Context, req CaptureRequest) ([]byte, error) {
	images := make([]string, 0, c.required)
	for len(images) < c.required {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCaptureCancelled, err)
		}

		frame, err := c.source.NextFrame(ctx)
		if err != nil {
			return nil, fmt.Errorf("capture sample %d: %w", len(images)+1, err)
		}
		if frame == "" {
			// no frame available yet, the camera retries
			continue
		}
		images = append(images, frame)

		log.Debug().
			Str("name", req.Name).
			Int("captured", len(images)).
			Int("required", c.required).
			Msg("face sample captured")
	}

	template, err := json.Marshal(Template{
		Images:       images,
		Timestamp:    c.clock.Now().UnixMilli(),
		CaptureCount: c.required,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal face template: %w", err)
	}
	return template, nil
}

// StaticFrames is a FrameSource that replays a fixed list of frames and then
// reports cancellation.
type StaticFrames struct {
	frames []string
	next   int
}

// NewStaticFrames creates a FrameSource over frames
func NewStaticFrames(frames ...string) *StaticFrames {
	return &StaticFrames{frames: frames}
}

// NextFrame returns the next frame or ErrCaptureCancelled when exhausted
func (s *StaticFrames) NextFrame(ctx context.Context) (string, error) {
	if s.next >= len(s.frames) {
		return "", ErrCaptureCancelled
	}
	frame := s.frames[s.next]
	s.next++
	return frame, nil
}

// CapturerFunc adapts a function to Capturer
type CapturerFunc func(ctx context.Context, req CaptureRequest) ([]byte, error)

// Capture calls f
func (f CapturerFunc) Capture(ctx context.Context, req CaptureRequest) ([]byte, error) {
	return f(ctx, req)
}

// RequestCapturer builds the template from the frames carried by the request,
// for enrollment clients that own the camera.
type RequestCapturer struct {
	required int
	clock    clockwork.Clock
}

// NewRequestCapturer creates a RequestCapturer (DefaultRequiredSamples when required <= 0)
func NewRequestCapturer(required int, clock clockwork.Clock) *RequestCapturer {
	return &RequestCapturer{required: required, clock: clock}
}

// Capture bundles req.Frames, failing with ErrCaptureCancelled when too few are usable
func (c *RequestCapturer) Capture(ctx context.Context, req CaptureRequest) ([]byte, error) {
	return NewSampleCapturer(NewStaticFrames(req.Frames...), c.required, c.clock).Capture(ctx, req)
}
