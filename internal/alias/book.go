package alias

import (
	"eventtrader/internal/schema"
	"eventtrader/pkg/exception"

	"github.com/yanun0323/errors"
)

// Book is the set of alias states of one session, in configuration order.
type Book struct {
	states map[string]*State
	order  []string
}

func NewBook() *Book {
	return &Book{states: make(map[string]*State)}
}

// Add builds a state from cfg. A duplicate alias is a configuration error.
func (b *Book) Add(cfg Config) (*State, error) {
	if _, ok := b.states[cfg.SymbolAlias]; ok {
		return nil, errors.Wrapf(exception.ErrConfiguration, "alias %q: duplicate symbolAlias", cfg.SymbolAlias)
	}
	s, err := New(cfg)
	if err != nil {
		return nil, err
	}
	b.states[cfg.SymbolAlias] = s
	b.order = append(b.order, cfg.SymbolAlias)
	return s, nil
}

func (b *Book) Get(symbolAlias string) (*State, bool) {
	s, ok := b.states[symbolAlias]
	return s, ok
}

func (b *Book) Len() int {
	return len(b.order)
}

// All returns the states in configuration order.
func (b *Book) All() []*State {
	out := make([]*State, 0, len(b.order))
	for _, key := range b.order {
		out = append(out, b.states[key])
	}
	return out
}

// ApplyFill routes a fill to the owning alias.
func (b *Book) ApplyFill(symbolAlias string, purpose schema.Purpose, side schema.Side, qty int64) error {
	s, ok := b.states[symbolAlias]
	if !ok {
		return errors.Wrapf(exception.ErrUnknownAlias, "alias: %s", symbolAlias)
	}
	return s.ApplyFill(purpose, side, qty)
}

// AdjustWorking routes a working size change to the owning alias.
func (b *Book) AdjustWorking(symbolAlias string, purpose schema.Purpose, delta int64) {
	if s, ok := b.states[symbolAlias]; ok {
		s.AdjustWorking(purpose, delta)
	}
}

// Views snapshots every alias.
func (b *Book) Views() []View {
	out := make([]View, 0, len(b.order))
	for _, key := range b.order {
		out = append(out, b.states[key].View())
	}
	return out
}
