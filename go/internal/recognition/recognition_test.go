package recognition

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcdev12/facescan/go/internal/models"
)

var roster = []models.Employee{
	{ID: "EMP001", Name: "John Doe"},
	{ID: "EMP002", Name: "Jane Roe"},
}

func TestMockAlwaysAndNever(t *testing.T) {
	ctx := context.Background()

	always := NewMockWithRates(1, 1, 1)
	ok, err := always.Detect(ctx, "img")
	require.NoError(t, err)
	require.True(t, ok)

	match, err := always.Recognize(ctx, "img", roster)
	require.NoError(t, err)
	require.NotNil(t, match)
	require.Contains(t, []string{"EMP001", "EMP002"}, match.ID)

	never := NewMockWithRates(1, 0, 0)
	ok, err = never.Detect(ctx, "img")
	require.NoError(t, err)
	require.False(t, ok)

	match, err = never.Recognize(ctx, "img", roster)
	require.NoError(t, err)
	require.Nil(t, match)
}

func TestMockEmptyRoster(t *testing.T) {
	match, err := NewMockWithRates(1, 1, 1).Recognize(context.Background(), "img", nil)
	require.NoError(t, err)
	require.Nil(t, match)
}

func TestMockIsDeterministicPerSeed(t *testing.T) {
	ctx := context.Background()
	a, b := NewMock(42), NewMock(42)
	for i := 0; i < 20; i++ {
		da, _ := a.Detect(ctx, "img")
		db, _ := b.Detect(ctx, "img")
		require.Equal(t, da, db)
	}
}

func TestFaceClientSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/detect":
			json.NewEncoder(w).Encode(map[string]int{"faces_detected": 1})
		case "/search":
			var req struct {
				Candidates []searchCandidate `json:"candidates"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Len(t, req.Candidates, 2)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"matches": []searchMatch{{UserID: "EMP002", Similarity: 0.91}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewFaceClient(srv.URL, 0.5, false)
	ctx := context.Background()

	ok, err := c.Detect(ctx, "img")
	require.NoError(t, err)
	require.True(t, ok)

	match, err := c.Recognize(ctx, "img", roster)
	require.NoError(t, err)
	require.Equal(t, "EMP002", match.ID)
}

func TestFaceClientServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewFaceClient(srv.URL, 0, false).Detect(context.Background(), "img")
	require.ErrorContains(t, err, "face service error")
}

func TestFaceClientSkip(t *testing.T) {
	c := NewFaceClient("http://unused", 0, true)
	match, err := c.Recognize(context.Background(), "img", roster)
	require.NoError(t, err)
	require.Equal(t, "EMP001", match.ID)
	require.NoError(t, c.Health(context.Background()))
}
