package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectDeliveryIntentMatchesConfiguredVerb(t *testing.T) {
	t.Parallel()
	got := DetectDeliveryIntent("Please email me the report", []string{"email", "send"}, "compose_email")
	assert.True(t, got.HasIntent)
	assert.Equal(t, []string{"email"}, got.DetectedVerbs)
	assert.Equal(t, "compose_email", got.RequiredTool)
}

func TestDetectDeliveryIntentIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	got := DetectDeliveryIntent("Please EMAIL me the report", []string{"email"}, "compose_email")
	assert.True(t, got.HasIntent)
	assert.Equal(t, []string{"email"}, got.DetectedVerbs)
}

func TestDetectDeliveryIntentNoMatch(t *testing.T) {
	t.Parallel()
	got := DetectDeliveryIntent("Just tell me what's in the folder", []string{"email", "send"}, "compose_email")
	assert.False(t, got.HasIntent)
	assert.Empty(t, got.DetectedVerbs)
	assert.Equal(t, "compose_email", got.RequiredTool)
}

func TestDetectDeliveryIntentMatchesMultipleVerbs(t *testing.T) {
	t.Parallel()
	got := DetectDeliveryIntent("email or send this to me", []string{"email", "send"}, "compose_email")
	assert.True(t, got.HasIntent)
	assert.ElementsMatch(t, []string{"email", "send"}, got.DetectedVerbs)
}

func TestDetectDeliveryIntentSkipsEmptyVerbs(t *testing.T) {
	t.Parallel()
	got := DetectDeliveryIntent("anything goes here", []string{"", "send"}, "compose_email")
	assert.False(t, got.HasIntent)
	assert.Empty(t, got.DetectedVerbs)
}

func TestDetectDeliveryIntentNoVerbsConfigured(t *testing.T) {
	t.Parallel()
	got := DetectDeliveryIntent("email this report", nil, "compose_email")
	assert.False(t, got.HasIntent)
	assert.Empty(t, got.DetectedVerbs)
}
