package record

import (
	"encoding/json"

	"github.com/VictoriaMetrics/fastcache"
)

// snapshotCache is a fast, bounded off-heap cache of each record's
// last-known serialized snapshot, keyed by name. It exists alongside (not
// instead of) the authoritative in-memory *Record map. The engine stores a
// snapshot on every READ and UPDATE and deletes it on discard and delete;
// it is unexported and nothing outside this package reads it.
type snapshotCache struct {
	c *fastcache.Cache
}

func newSnapshotCache(maxBytes int) *snapshotCache {
	return &snapshotCache{c: fastcache.New(maxBytes)}
}

func (s *snapshotCache) store(name string, data interface{}) {
	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	s.c.Set([]byte(name), b)
}

func (s *snapshotCache) load(name string) (interface{}, bool) {
	raw := s.c.Get(nil, []byte(name))
	if raw == nil {
		return nil, false
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

func (s *snapshotCache) delete(name string) {
	s.c.Del([]byte(name))
}
