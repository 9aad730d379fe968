package cache

import (
	"os"
	"sort"
)

// EvictUnused removes entries whose last access is older than maxAge and
// whose access count is below minAccessCount. Both thresholds come from the
// caller (for example 30 days and 5); no default is applied.
func (s *Store) EvictUnused(maxAge int64 /* seconds */, minAccessCount int64) []string {
	now := s.cfg.Clock.Now().Unix()
	var victims []string
	s.mu.RLock()
	for k, e := range s.entries {
		age := now - e.LastAccess.Unix()
		if age > maxAge && e.AccessCount < minAccessCount {
			victims = append(victims, k)
		}
	}
	s.mu.RUnlock()
	return s.evictKeys(victims)
}

// EvictOldVersions keeps at most maxVersions versions of each package, removing the
// oldest by install time.
func (s *Store) EvictOldVersions(maxVersions int) []string {
	if maxVersions <= 0 {
		return nil
	}
	s.mu.RLock()
	byName := make(map[string][]*Entry)
	for _, e := range s.entries {
		byName[e.Name] = append(byName[e.Name], e)
	}
	var victims []string
	for _, versions := range byName {
		if len(versions) <= maxVersions {
			continue
		}
		sort.Slice(versions, func(i, j int) bool {
			return versions[i].InstalledAt.Before(versions[j].InstalledAt)
		})
		for _, e := range versions[:len(versions)-maxVersions] {
			victims = append(victims, e.key())
		}
	}
	s.mu.RUnlock()
	return s.evictKeys(victims)
}

// EvictBySize removes least-recently-used entries until total cached size
// is at most capBytes.
func (s *Store) EvictBySize(capBytes int64) []string {
	s.mu.RLock()
	entries := make([]*Entry, 0, len(s.entries))
	var total int64
	for _, e := range s.entries {
		entries = append(entries, e)
		total += e.SizeBytes
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.Before(entries[j].LastAccess)
	})
	var victims []string
	for _, e := range entries {
		if total <= capBytes {
			break
		}
		victims = append(victims, e.key())
		total -= e.SizeBytes
	}
	s.mu.RUnlock()
	return s.evictKeys(victims)
}

// EvictByAge removes entries installed before maxAge seconds ago.
func (s *Store) EvictByAge(maxAge int64) []string {
	now := s.cfg.Clock.Now().Unix()
	var victims []string
	s.mu.RLock()
	for k, e := range s.entries {
		if now-e.InstalledAt.Unix() > maxAge {
			victims = append(victims, k)
		}
	}
	s.mu.RUnlock()
	return s.evictKeys(victims)
}

// evictKeys removes the given index keys from the cache, persisting the
// index once afterward, and returns the (name, version) pairs removed.
func (s *Store) evictKeys(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	s.mu.Lock()
	for _, k := range keys {
		if e, ok := s.entries[k]; ok {
			os.RemoveAll(e.Path)
			delete(s.entries, k)
		}
	}
	s.mu.Unlock()
	if err := s.persistIndex(); err != nil {
		s.cfg.Log.Printf("cache: %v", err)
	}
	return keys
}
