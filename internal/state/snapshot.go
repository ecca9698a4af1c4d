package state

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"eventtrader/internal/alias"

	"github.com/goccy/go-json"
	"github.com/yanun0323/errors"
)

// Snapshot captures alias state at a point in time.
type Snapshot struct {
	Timestamp int64        `json:"timestamp"`
	Session   string       `json:"session"`
	Aliases   []alias.View `json:"aliases"`
}

// Take builds a snapshot from the alias views, sorted by alias.
func Take(session string, views []alias.View, at time.Time) Snapshot {
	out := append([]alias.View(nil), views...)
	sort.Slice(out, func(i, j int) bool {
		return out[i].SymbolAlias < out[j].SymbolAlias
	})
	return Snapshot{
		Timestamp: at.UTC().UnixNano(),
		Session:   session,
		Aliases:   out,
	}
}

// Positions maps each alias to its net position.
func (s Snapshot) Positions() map[string]int64 {
	out := make(map[string]int64, len(s.Aliases))
	for _, v := range s.Aliases {
		out[v.SymbolAlias] = v.NetPosition
	}
	return out
}

// WriteSnapshot writes a snapshot to disk as JSON through a temp file.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create snapshot dir %s", dir)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "write snapshot %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "rename snapshot %s", path)
	}
	return nil
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, errors.Wrapf(err, "read snapshot %s", path)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errors.Wrapf(err, "unmarshal snapshot %s", path)
	}
	return snap, nil
}

// Seed copies snapshot positions into alias configs as their initial
// position. Aliases missing from the snapshot keep their configured value.
func Seed(cfgs []alias.Config, snap Snapshot) []alias.Config {
	positions := snap.Positions()
	out := make([]alias.Config, len(cfgs))
	for i, c := range cfgs {
		if net, ok := positions[c.SymbolAlias]; ok {
			c.InitialPosition = net
		}
		out[i] = c
	}
	return out
}
