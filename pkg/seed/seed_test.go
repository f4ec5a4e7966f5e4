package seed_test

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailqueue/pkg/queue"
	"github.com/dmitrymomot/mailqueue/pkg/queue/memory"
	"github.com/dmitrymomot/mailqueue/pkg/seed"
)

func catalogFS() fstest.MapFS {
	return fstest.MapFS{
		"templates/welcome.md": {Data: []byte(`---
subject: Welcome, {{recipientName}}
from_name: Acme
text: Hi there
footer:
  rich: "[Unsubscribe]({{unsubscribeUrl}})"
---
# Hello {{recipientName}}
`)},
		"templates/tips.md": {Data: []byte(`---
key: tips-v2
subject: A few tips
active: false
---
Some tips.`)},
		"templates/README.txt": {Data: []byte("ignored")},
		"sequences/onboarding.yaml": {Data: []byte(`
key: onboarding
name: Onboarding
steps:
  - template: welcome
  - template: tips-v2
    delay: 2
    unit: day
`)},
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	c, err := seed.Load(catalogFS())
	require.NoError(t, err)
	require.Len(t, c.Templates, 2)
	require.Len(t, c.Sequences, 1)

	byKey := map[string]queue.Template{}
	for _, tpl := range c.Templates {
		byKey[tpl.Key] = tpl
	}

	welcome := byKey["welcome"]
	assert.Equal(t, "Welcome, {{recipientName}}", welcome.Subject)
	assert.Equal(t, "# Hello {{recipientName}}", welcome.Body.Rich)
	assert.Equal(t, "Hi there", welcome.Body.Text)
	assert.Equal(t, "[Unsubscribe]({{unsubscribeUrl}})", welcome.Footer.Rich)
	assert.Equal(t, "Acme", welcome.FromName)
	assert.True(t, welcome.Active)

	tips := byKey["tips-v2"]
	assert.False(t, tips.Active)
	assert.Equal(t, "Some tips.", tips.Body.Rich)

	seq := c.Sequences[0]
	assert.Equal(t, "onboarding", seq.Key)
	assert.True(t, seq.Active)
	assert.Equal(t, []queue.Step{
		{TemplateKey: "welcome", DelayValue: 0, DelayUnit: queue.Minutes},
		{TemplateKey: "tips-v2", DelayValue: 2, DelayUnit: queue.Days},
	}, seq.Steps)
}

func TestLoad_EmptyTree(t *testing.T) {
	t.Parallel()

	c, err := seed.Load(fstest.MapFS{})
	require.NoError(t, err)
	assert.Empty(t, c.Templates)
	assert.Empty(t, c.Sequences)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		files   fstest.MapFS
		wantErr error
	}{
		{
			name:    "unclosed frontmatter",
			files:   fstest.MapFS{"templates/a.md": {Data: []byte("---\nsubject: x\nbody")}},
			wantErr: seed.ErrInvalidFrontmatter,
		},
		{
			name:    "broken yaml",
			files:   fstest.MapFS{"templates/a.md": {Data: []byte("---\nsubject: [x\n---\nbody")}},
			wantErr: seed.ErrInvalidFrontmatter,
		},
		{
			name:    "missing subject",
			files:   fstest.MapFS{"templates/a.md": {Data: []byte("just a body")}},
			wantErr: seed.ErrInvalidTemplate,
		},
		{
			name:    "empty body",
			files:   fstest.MapFS{"templates/a.md": {Data: []byte("---\nsubject: x\n---\n")}},
			wantErr: seed.ErrInvalidTemplate,
		},
		{
			name: "duplicate template key",
			files: fstest.MapFS{
				"templates/a.md": {Data: []byte("---\nsubject: x\n---\nbody")},
				"templates/b.md": {Data: []byte("---\nkey: a\nsubject: x\n---\nbody")},
			},
			wantErr: seed.ErrInvalidTemplate,
		},
		{
			name: "unknown step template",
			files: fstest.MapFS{
				"sequences/s.yaml": {Data: []byte("steps:\n  - template: nope\n")},
			},
			wantErr: seed.ErrInvalidSequence,
		},
		{
			name: "bad unit",
			files: fstest.MapFS{
				"templates/a.md":   {Data: []byte("---\nsubject: x\n---\nbody")},
				"sequences/s.yaml": {Data: []byte("steps:\n  - template: a\n    delay: 1\n    unit: fortnight\n")},
			},
			wantErr: queue.ErrInvalidDelayUnit,
		},
		{
			name:    "no steps",
			files:   fstest.MapFS{"sequences/s.yml": {Data: []byte("name: Empty\n")}},
			wantErr: seed.ErrInvalidSequence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := seed.Load(tt.files)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSeed_IntoStore(t *testing.T) {
	t.Parallel()

	store := memory.New()
	ctx := context.Background()

	_, err := seed.Seed(ctx, catalogFS(), store, nil)
	require.NoError(t, err)

	tpl, err := store.ActiveTemplateByKey(ctx, "welcome")
	require.NoError(t, err)
	firstID := tpl.ID

	_, err = store.ActiveTemplateByKey(ctx, "tips-v2")
	require.ErrorIs(t, err, queue.ErrTemplateNotFound, "inactive templates are stored but not served")

	seq, err := store.ActiveSequenceByKey(ctx, "onboarding")
	require.NoError(t, err)
	require.Len(t, seq.Steps, 2)
	assert.Equal(t, firstID, seq.Steps[0].TemplateID)

	// Seeding twice keeps ids stable.
	_, err = seed.Seed(ctx, catalogFS(), store, nil)
	require.NoError(t, err)
	tpl, err = store.ActiveTemplateByKey(ctx, "welcome")
	require.NoError(t, err)
	assert.Equal(t, firstID, tpl.ID)
}
