package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRequirements_ReportsMissingInOrder(t *testing.T) {
	t.Parallel()

	s := NewState("c")
	s.Location = strptr("X")
	s.Bedrooms = strptr("2")

	p, err := requirementsStep{}.Run(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, p.MissingInfo)
	assert.Equal(t, []string{"price", "features"}, *p.MissingInfo)
}

func TestMissingFields_BlankCountsAsMissing(t *testing.T) {
	t.Parallel()

	s := NewState("c")
	s.MergeDetails(Details{Location: strptr("  "), Price: strptr("1"), Bedrooms: strptr("1"), Features: []string{}})
	assert.Equal(t, []string{"location", "features"}, MissingFields(s))
}

func TestState_ApplyNeverUnsets(t *testing.T) {
	t.Parallel()

	s := NewState("c")
	s.BrandSuggestions = strptr("brands")
	out := s.Apply(Patch{})
	assert.Equal(t, "brands", *out.BrandSuggestions)
	assert.Equal(t, "c", out.ClientID)

	empty := []string{}
	out = out.Apply(Patch{MissingInfo: &empty})
	assert.NotNil(t, out.MissingInfo)
	assert.Empty(t, out.MissingInfo)
}

func TestState_MergeDetailsClearsMissing(t *testing.T) {
	t.Parallel()

	s := NewState("c")
	s.MissingInfo = []string{"price"}
	s.MergeDetails(Details{Price: strptr("100")})
	assert.Nil(t, s.MissingInfo)
	assert.Equal(t, "100", *s.Price)
}

func TestState_ReseedKeepsDetails(t *testing.T) {
	t.Parallel()

	s := NewState("c")
	s.MergeDetails(fullDetails())
	s.BrandSuggestions = strptr("old")
	s.ImagePath = strptr("old.png")
	s.PostResult = &PostResult{Status: PostStatusSuccess}

	out := s.Reseed("new idea")
	assert.Equal(t, "c", out.ClientID)
	assert.Equal(t, "new idea", *out.UserInput)
	assert.Equal(t, "Austin", *out.Location)
	assert.Equal(t, []string{"pool", "garage"}, out.Features)
	assert.Nil(t, out.BrandSuggestions)
	assert.Nil(t, out.ImagePath)
	assert.Nil(t, out.PostResult)
}

func TestState_CloneIsDeep(t *testing.T) {
	t.Parallel()

	s := NewState("c")
	s.Features = []string{"a"}
	c := s.Clone()
	c.Features[0] = "b"
	assert.Equal(t, "a", s.Features[0])
}

func TestLoadPrompts(t *testing.T) {
	t.Parallel()

	p, err := LoadPrompts("")
	require.NoError(t, err)
	out, err := p.Branding.Render(struct{ UserInput string }{"tiny homes"})
	require.NoError(t, err)
	assert.Equal(t, "Business Idea: tiny homes", out)

	path := filepath.Join(t.TempDir(), "prompts.yaml")
	doc := `
branding: {system: "s1", user: "idea={{.UserInput}}"}
visuals: {system: "s2", user: "v"}
post: {system: "s3", user: "p"}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	p, err = LoadPrompts(path)
	require.NoError(t, err)
	out, err = p.Branding.Render(struct{ UserInput string }{"x"})
	require.NoError(t, err)
	assert.Equal(t, "idea=x", out)
}

func TestParsePrompts_RequiresEveryPrompt(t *testing.T) {
	t.Parallel()

	_, err := ParsePrompts([]byte(`branding: {system: "s", user: "u"}`))
	assert.Error(t, err)
}
