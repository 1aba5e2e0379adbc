package sequence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

var errExhausted = shared.ErrSequenceExhausted

// Store persists sequence records for the in-process path.
type Store interface {
	Load(ctx context.Context, name string) (Sequence, bool, error)
	Save(ctx context.Context, seq Sequence) error
}

// Allocator atomically increments a sequence in the persistence layer,
// creating it from defaults on first use.
type Allocator interface {
	Allocate(ctx context.Context, defaults Sequence) (int64, Sequence, error)
}

// Generator produces formatted document numbers.
type Generator struct {
	store  Store
	atomic shared.Optional[Allocator]
	mu     sync.Mutex
	now    func() time.Time
}

// NewGenerator wires the in-process store and the optional atomic allocator.
func NewGenerator(store Store, atomic shared.Optional[Allocator]) *Generator {
	return &Generator{store: store, atomic: atomic, now: time.Now}
}

// WithNow overrides the clock used for {YEAR}.
func (g *Generator) WithNow(now func() time.Time) {
	if now != nil {
		g.now = now
	}
}

// Next returns the next formatted value for name. A prefixOverride other than
// the sequence's own prefix forces the in-process path so the override can be
// applied; overrides draw from the stored counter, not the atomic one.
func (g *Generator) Next(ctx context.Context, name, prefixOverride string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", shared.Validation("sequence.next", errors.New("sequence: name required"))
	}
	prefixOverride = strings.TrimSpace(prefixOverride)
	if prefixOverride == Defaults(name).Prefix {
		prefixOverride = ""
	}
	if prefixOverride == "" {
		if allocator, err := g.atomic.Get(); err == nil {
			value, seq, err := allocator.Allocate(ctx, Defaults(name))
			if err != nil {
				return "", wrapExhausted(err)
			}
			return Render(seq.Format, seq.Prefix, value, g.now()), nil
		}
	}
	return g.nextInProcess(ctx, name, prefixOverride)
}

func (g *Generator) nextInProcess(ctx context.Context, name, prefixOverride string) (string, error) {
	if g.store == nil {
		return "", shared.ErrNotConfigured
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	seq, ok, err := g.store.Load(ctx, name)
	if err != nil {
		return "", fmt.Errorf("sequence: load %s: %w", name, err)
	}
	if !ok {
		seq = Defaults(name)
	}
	value, err := seq.Advance()
	if err != nil {
		return "", wrapExhausted(err)
	}
	if err := g.store.Save(ctx, seq); err != nil {
		return "", fmt.Errorf("sequence: save %s: %w", name, err)
	}
	prefix := seq.Prefix
	if prefixOverride != "" {
		prefix = prefixOverride
	}
	return Render(seq.Format, prefix, value, g.now()), nil
}

func wrapExhausted(err error) error {
	if errors.Is(err, shared.ErrSequenceExhausted) {
		return shared.State("sequence.next", err)
	}
	return err
}

// MemoryStore keeps sequences in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	seqs map[string]Sequence
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seqs: map[string]Sequence{}}
}

func (m *MemoryStore) Load(_ context.Context, name string) (Sequence, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq, ok := m.seqs[name]
	return seq, ok, nil
}

func (m *MemoryStore) Save(_ context.Context, seq Sequence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seqs[seq.Name] = seq
	return nil
}
