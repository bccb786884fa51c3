package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupFindsPersonasAndHelpers(t *testing.T) {
	r := Default("Jerry")

	p, err := r.Lookup("Vanessa")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Provider)

	h, err := r.Lookup(HelperTopicGenerator)
	require.NoError(t, err)
	assert.Contains(t, h.SystemMessage, "TopicGenerator")
}

func TestLookupUnknownPersonaIsTypedError(t *testing.T) {
	r := Default("Jerry")
	_, err := r.Lookup("Nobody")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownPersona))
}

func TestHelperDoesNotResolveParticipants(t *testing.T) {
	r := Default("Jerry")
	_, err := r.Helper("Vanessa")
	require.Error(t, err)
}

func TestParticipantNamesAreSorted(t *testing.T) {
	r := Default("Jerry")
	assert.Equal(t, []string{"Lukas", "Nicole", "Vanessa"}, r.ParticipantNames())
}

func TestRenderMasterExcludesSpeaker(t *testing.T) {
	r := Default("Jerry")
	rendered := r.RenderMaster("Vanessa", true)
	assert.Contains(t, rendered, "Jerry")
	assert.Contains(t, rendered, "Lukas, Nicole")
	assert.NotContains(t, rendered, "{user_name}")
	assert.NotContains(t, rendered, "{participants}")
}

func TestRenderMasterNoCodeVariant(t *testing.T) {
	r := Default("Jerry")
	rendered := r.RenderMaster("Vanessa", false)
	assert.Contains(t, rendered, "Only provide code samples")
}

func TestLoadFromFileWithDefaultsFilledIn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	doc := `user:
  name: Jerry
  greeting: Welcome back, Jerry!
personas:
  - name: Dyann
    system_message: You are Dyann.
    provider: anthropic
    color: blue
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	r, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "Jerry", r.UserName())
	assert.Equal(t, "Welcome back, Jerry!", r.Greeting())
	assert.True(t, r.IsParticipant("Dyann"))
	assert.False(t, r.IsParticipant("Vanessa"))

	// built-in helpers are always present
	for _, name := range []string{HelperTopicGenerator, HelperResponseDetector, HelperContextDetector, HelperModerator} {
		_, err := r.Helper(name)
		assert.NoError(t, err)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadFromFileOverridesHelper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	doc := `helpers:
  - name: Moderator
    system_message: Custom moderator prompt.
    provider: openai
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	r, err := LoadFromFile(path)
	require.NoError(t, err)

	h, err := r.Helper(HelperModerator)
	require.NoError(t, err)
	assert.Equal(t, "openai", h.Provider)
	assert.Equal(t, "Custom moderator prompt.", h.SystemMessage)
}
