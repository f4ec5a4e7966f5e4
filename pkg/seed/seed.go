package seed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/mailqueue/pkg/queue"
)

const (
	templatesDir = "templates"
	sequencesDir = "sequences"
)

// Writer stores catalog definitions. Both queue stores implement it.
type Writer interface {
	UpsertTemplate(ctx context.Context, t queue.Template) (string, error)
	UpsertSequence(ctx context.Context, seq queue.Sequence) (string, error)
}

// Catalog is a parsed set of definitions.
type Catalog struct {
	Templates []queue.Template
	Sequences []queue.Sequence
}

type templateMeta struct {
	Key       string        `yaml:"key"`
	Subject   string        `yaml:"subject"`
	FromName  string        `yaml:"from_name"`
	FromEmail string        `yaml:"from_email"`
	ReplyTo   string        `yaml:"reply_to"`
	Text      string        `yaml:"text"`
	Header    queue.Content `yaml:"header"`
	Footer    queue.Content `yaml:"footer"`
	Active    *bool         `yaml:"active"`
}

type sequenceFile struct {
	Key    string     `yaml:"key"`
	Name   string     `yaml:"name"`
	Steps  []stepFile `yaml:"steps"`
	Active *bool      `yaml:"active"`
}

type stepFile struct {
	Template string `yaml:"template"`
	Unit     string `yaml:"unit"`
	Delay    int    `yaml:"delay"`
}

// Load parses templates/*.md and sequences/*.y(a)ml from fsys. Missing
// directories are treated as empty. Sequence steps must reference templates
// defined in the same tree.
func Load(fsys fs.FS) (*Catalog, error) {
	c := &Catalog{}

	keys := make(map[string]struct{})
	err := walk(fsys, templatesDir, []string{".md", ".markdown"}, func(name string, data []byte) error {
		t, err := parseTemplate(name, data)
		if err != nil {
			return err
		}
		if _, dup := keys[t.Key]; dup {
			return fmt.Errorf("%w: duplicate key %q in %s", ErrInvalidTemplate, t.Key, name)
		}
		keys[t.Key] = struct{}{}
		c.Templates = append(c.Templates, t)
		return nil
	})
	if err != nil {
		return nil, err
	}

	seqKeys := make(map[string]struct{})
	err = walk(fsys, sequencesDir, []string{".yaml", ".yml"}, func(name string, data []byte) error {
		seq, err := parseSequence(name, data, keys)
		if err != nil {
			return err
		}
		if _, dup := seqKeys[seq.Key]; dup {
			return fmt.Errorf("%w: duplicate key %q in %s", ErrInvalidSequence, seq.Key, name)
		}
		seqKeys[seq.Key] = struct{}{}
		c.Sequences = append(c.Sequences, seq)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Apply upserts every template, then every sequence.
func Apply(ctx context.Context, w Writer, c *Catalog, log *slog.Logger) error {
	for _, t := range c.Templates {
		id, err := w.UpsertTemplate(ctx, t)
		if err != nil {
			return fmt.Errorf("seed: template %q: %w", t.Key, err)
		}
		if log != nil {
			log.DebugContext(ctx, "template seeded", slog.String("key", t.Key), slog.String("id", id))
		}
	}
	for _, seq := range c.Sequences {
		id, err := w.UpsertSequence(ctx, seq)
		if err != nil {
			return fmt.Errorf("seed: sequence %q: %w", seq.Key, err)
		}
		if log != nil {
			log.DebugContext(ctx, "sequence seeded", slog.String("key", seq.Key), slog.String("id", id))
		}
	}
	if log != nil {
		log.InfoContext(ctx, "catalog seeded",
			slog.Int("templates", len(c.Templates)),
			slog.Int("sequences", len(c.Sequences)),
		)
	}
	return nil
}

// Seed loads fsys and applies it to w.
func Seed(ctx context.Context, fsys fs.FS, w Writer, log *slog.Logger) (*Catalog, error) {
	c, err := Load(fsys)
	if err != nil {
		return nil, err
	}
	if err := Apply(ctx, w, c, log); err != nil {
		return nil, err
	}
	return c, nil
}

func walk(fsys fs.FS, dir string, exts []string, fn func(name string, data []byte) error) error {
	if _, err := fs.Stat(fsys, dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("seed: %w", err)
	}

	return fs.WalkDir(fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(path.Ext(p))
		if !slices.Contains(exts, ext) {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("seed: reading %q: %w", p, err)
		}
		return fn(p, data)
	})
}

func parseTemplate(name string, data []byte) (queue.Template, error) {
	var meta templateMeta
	body, err := splitFrontmatter(data, &meta)
	if err != nil {
		return queue.Template{}, fmt.Errorf("%s: %w", name, err)
	}

	key := meta.Key
	if key == "" {
		key = strings.TrimSuffix(path.Base(name), path.Ext(name))
	}
	t := queue.Template{
		Key:       key,
		Subject:   strings.TrimSpace(meta.Subject),
		Body:      queue.Content{Rich: strings.TrimSpace(body), Text: strings.TrimSpace(meta.Text)},
		Header:    meta.Header,
		Footer:    meta.Footer,
		FromName:  meta.FromName,
		FromEmail: meta.FromEmail,
		ReplyTo:   meta.ReplyTo,
		Active:    meta.Active == nil || *meta.Active,
	}

	switch {
	case t.Subject == "":
		return t, fmt.Errorf("%w: %s: subject is required", ErrInvalidTemplate, name)
	case t.Body.Empty():
		return t, fmt.Errorf("%w: %s: body is empty", ErrInvalidTemplate, name)
	}
	return t, nil
}

func parseSequence(name string, data []byte, templates map[string]struct{}) (queue.Sequence, error) {
	var f sequenceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return queue.Sequence{}, fmt.Errorf("%w: %s: %v", ErrInvalidSequence, name, err)
	}
	if f.Key == "" {
		f.Key = strings.TrimSuffix(path.Base(name), path.Ext(name))
	}
	if f.Name == "" {
		f.Name = f.Key
	}
	if len(f.Steps) == 0 {
		return queue.Sequence{}, fmt.Errorf("%w: %s: no steps", ErrInvalidSequence, name)
	}

	seq := queue.Sequence{
		Key:    f.Key,
		Name:   f.Name,
		Active: f.Active == nil || *f.Active,
		Steps:  make([]queue.Step, 0, len(f.Steps)),
	}
	for i, st := range f.Steps {
		if _, ok := templates[st.Template]; !ok {
			return queue.Sequence{}, fmt.Errorf("%w: %s: step %d references unknown template %q", ErrInvalidSequence, name, i, st.Template)
		}
		if st.Delay < 0 {
			return queue.Sequence{}, fmt.Errorf("%w: %s: step %d has a negative delay", ErrInvalidSequence, name, i)
		}
		unit := queue.Minutes
		if st.Unit != "" {
			u, err := queue.ParseDelayUnit(st.Unit)
			if err != nil {
				return queue.Sequence{}, fmt.Errorf("%w: %s: step %d: %w", ErrInvalidSequence, name, i, err)
			}
			unit = u
		}
		seq.Steps = append(seq.Steps, queue.Step{
			TemplateKey: st.Template,
			DelayValue:  st.Delay,
			DelayUnit:   unit,
		})
	}
	return seq, nil
}
