package parser

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/renameio"
	"golang.org/x/xerrors"
)

func unixTime(sec int64) time.Time { return time.Unix(sec, 0) }

type persistedEntry struct {
	Name       string
	Hash       string
	Deps       []string
	Inferred   bool
	LastParsed int64 // unix seconds
	LastUsed   int64
	Frequency  float64
}

// SaveCache persists the parse cache to path via renameio, so a crash
// mid-write never corrupts a previous, valid cache document.
func (p *Parser) SaveCache(path string) error {
	start := p.cfg.Clock.Now()
	snapshot := p.cache.exportAll()
	docs := make([]persistedEntry, 0, len(snapshot))
	for name, e := range snapshot {
		docs = append(docs, persistedEntry{
			Name: name, Hash: e.Hash, Deps: e.Deps, Inferred: e.Inferred,
			LastParsed: e.LastParsed.Unix(), LastUsed: e.LastUsed.Unix(), Frequency: e.Frequency,
		})
	}
	b, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return xerrors.Errorf("parser.SaveCache: %w", err)
	}
	if err := renameio.WriteFile(path, b, 0644); err != nil {
		return xerrors.Errorf("parser.SaveCache: %w", err)
	}
	p.stats.recordSaveTime(p.cfg.Clock.Now().Sub(start))
	return nil
}

// LoadCache loads a previously saved parse cache from path. A missing file
// is not an error: it simply leaves the cache empty.
func (p *Parser) LoadCache(path string) error {
	start := p.cfg.Clock.Now()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return xerrors.Errorf("parser.LoadCache: %w", err)
	}
	var docs []persistedEntry
	if err := json.Unmarshal(b, &docs); err != nil {
		return xerrors.Errorf("parser.LoadCache: %w", err)
	}
	entries := make(map[string]cacheEntry, len(docs))
	for _, d := range docs {
		entries[d.Name] = cacheEntry{
			Hash: d.Hash, Deps: d.Deps, Inferred: d.Inferred,
			LastParsed: unixTime(d.LastParsed), LastUsed: unixTime(d.LastUsed), Frequency: d.Frequency,
		}
	}
	p.cache.importAll(entries)
	p.stats.recordLoadTime(p.cfg.Clock.Now().Sub(start))
	return nil
}
