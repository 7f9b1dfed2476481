package recognition

import (
	"context"

	"github.com/mcdev12/facescan/go/internal/models"
)

// Detector decides whether an image contains a usable face
type Detector interface {
	Detect(ctx context.Context, image string) (bool, error)
}

// Recognizer matches an image against the enrolled candidates. It returns nil
// when nobody matches.
type Recognizer interface {
	Recognize(ctx context.Context, image string, candidates []models.Employee) (*models.Employee, error)
}

// Engine is both halves of the recognition collaborator
type Engine interface {
	Detector
	Recognizer
}
