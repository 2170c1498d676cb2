package replyformat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHumanSize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "512 bytes", HumanSize(512))
	assert.Equal(t, "1.00 KB", HumanSize(1024))
	assert.Equal(t, "197.85 KB", HumanSize(202600))
	assert.Equal(t, "2.00 MB", HumanSize(2*1024*1024))
}

func TestRenderDuplicateGroups(t *testing.T) {
	t.Parallel()
	details := []any{
		map[string]any{
			"size":  float64(202600),
			"count": float64(2),
			"files": []any{
				map[string]any{"name": "photo.jpg", "path": "/a/photo.jpg"},
				map[string]any{"name": "photo (copy).jpg", "path": "/b/photo (copy).jpg"},
			},
		},
	}
	got := Render(details)
	assert.Contains(t, got, "Group 1 (2 copies, 197.85 KB each):")
	assert.Contains(t, got, "- photo.jpg")
	assert.Contains(t, got, "- photo (copy).jpg")
}

func TestRenderScalarList(t *testing.T) {
	t.Parallel()
	got := Render([]any{"one", "two", "three"})
	assert.Equal(t, "- one\n- two\n- three", got)
}

func TestRenderObjectListSortsKeysAndTruncates(t *testing.T) {
	t.Parallel()
	longValue := make([]byte, 200)
	for i := range longValue {
		longValue[i] = 'x'
	}
	details := []any{
		map[string]any{"zeta": "z", "alpha": string(longValue)},
	}
	got := Render(details)
	assert.True(t, len(got) <= 120)
	assert.Contains(t, got, "alpha: ")
}

func TestRenderEmptyDetails(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", Render([]any{}))
}
