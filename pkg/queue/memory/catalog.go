package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/dmitrymomot/mailqueue/pkg/queue"
)

// PutTemplate stores or replaces a template by key.
func (s *Store) PutTemplate(t queue.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.UpdatedAt = s.now()
	s.templates[t.Key] = &t
}

// PutSequence stores or replaces a sequence by key.
func (s *Store) PutSequence(seq queue.Sequence) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq.ID == "" {
		seq.ID = uuid.NewString()
	}
	seq.Steps = slices.Clone(seq.Steps)
	s.sequences[seq.Key] = &seq
}

// PutRecipient stores or replaces a recipient by id.
func (s *Store) PutRecipient(r queue.Recipient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients[r.ID] = r
}

// ActiveTemplateByKey implements queue.TemplateStore.
func (s *Store) ActiveTemplateByKey(_ context.Context, key string) (*queue.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[key]
	if !ok || !t.Active {
		return nil, queue.ErrTemplateNotFound
	}
	c := *t
	return &c, nil
}

// ActiveSequenceByKey implements queue.SequenceStore.
func (s *Store) ActiveSequenceByKey(_ context.Context, key string) (*queue.Sequence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seq, ok := s.sequences[key]
	if !ok || !seq.Active {
		return nil, queue.ErrSequenceNotFound
	}
	c := *seq
	c.Steps = slices.Clone(seq.Steps)
	return &c, nil
}

// Recipient implements queue.RecipientStore.
func (s *Store) Recipient(_ context.Context, id string) (*queue.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.recipients[id]
	if !ok {
		return nil, queue.ErrRecipientNotFound
	}
	return &r, nil
}

// Recipients implements queue.RecipientStore.
func (s *Store) Recipients(_ context.Context, ids []string) (map[string]queue.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]queue.Recipient, len(ids))
	for _, id := range ids {
		if r, ok := s.recipients[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

// Append implements queue.LogSink.
func (s *Store) Append(_ context.Context, entry queue.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	s.logs = append(s.logs, entry)
	return nil
}

// Logs returns a copy of the send log.
func (s *Store) Logs() []queue.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.logs)
}

// UpsertTemplate stores a template by key, keeping the id of an existing
// one, and returns the id.
func (s *Store) UpsertTemplate(_ context.Context, t queue.Template) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.templates[t.Key]; ok {
		t.ID = prev.ID
	} else if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.UpdatedAt = s.now()
	s.templates[t.Key] = &t
	return t.ID, nil
}

// UpsertSequence stores a sequence by key, replacing its steps. Steps
// reference templates by TemplateKey; an unknown key fails the whole call.
func (s *Store) UpsertSequence(_ context.Context, seq queue.Sequence) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps := slices.Clone(seq.Steps)
	for i := range steps {
		t, ok := s.templates[steps[i].TemplateKey]
		if !ok {
			return "", fmt.Errorf("%w: step %d references %q", queue.ErrTemplateNotFound, i, steps[i].TemplateKey)
		}
		steps[i].TemplateID = t.ID
	}
	seq.Steps = steps

	if prev, ok := s.sequences[seq.Key]; ok {
		seq.ID = prev.ID
	} else if seq.ID == "" {
		seq.ID = uuid.NewString()
	}
	s.sequences[seq.Key] = &seq
	return seq.ID, nil
}
