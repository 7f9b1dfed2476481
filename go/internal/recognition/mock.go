package recognition

import (
	"context"
	"math/rand"
	"sync"

	"github.com/mcdev12/facescan/go/internal/models"
)

const (
	// DefaultDetectRate is the chance the mock finds a face
	DefaultDetectRate = 0.8
	// DefaultRecognizeRate is the chance the mock matches someone
	DefaultRecognizeRate = 0.7
)

// Mock is a coin-flip Engine standing in for real face recognition. A
// recognized face is a uniformly random candidate.
type Mock struct {
	mu            sync.Mutex
	rng           *rand.Rand
	detectRate    float64
	recognizeRate float64
}

// NewMock creates a mock engine with the default rates
func NewMock(seed int64) *Mock {
	return NewMockWithRates(seed, DefaultDetectRate, DefaultRecognizeRate)
}

// NewMockWithRates creates a mock engine; rates are probabilities in [0, 1]
func NewMockWithRates(seed int64, detectRate, recognizeRate float64) *Mock {
	return &Mock{
		rng:           rand.New(rand.NewSource(seed)),
		detectRate:    detectRate,
		recognizeRate: recognizeRate,
	}
}

// Detect reports a face with probability detectRate
func (m *Mock) Detect(ctx context.Context, image string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64() < m.detectRate, nil
}

// Recognize picks a random candidate with probability recognizeRate
func (m *Mock) Recognize(ctx context.Context, image string, candidates []models.Employee) (*models.Employee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rng.Float64() >= m.recognizeRate {
		return nil, nil
	}
	match := candidates[m.rng.Intn(len(candidates))].Clone()
	return &match, nil
}
