package cache

import "sync/atomic"

// Statistics counts cache traffic. All methods are safe for concurrent use.
type Statistics struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64
	size      atomic.Int64
}

// NewStatistics returns zeroed counters.
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) Hit()      { s.hits.Add(1) }
func (s *Statistics) Miss()     { s.misses.Add(1) }
func (s *Statistics) Set()      { s.sets.Add(1) }
func (s *Statistics) Delete()   { s.deletes.Add(1) }
func (s *Statistics) Eviction() { s.evictions.Add(1) }

// UpdateSize records the number of entries after a write.
func (s *Statistics) UpdateSize(size int64) { s.size.Store(size) }

func (s *Statistics) Hits() int64        { return s.hits.Load() }
func (s *Statistics) Misses() int64      { return s.misses.Load() }
func (s *Statistics) Sets() int64        { return s.sets.Load() }
func (s *Statistics) Deletes() int64     { return s.deletes.Load() }
func (s *Statistics) Evictions() int64   { return s.evictions.Load() }
func (s *Statistics) CurrentSize() int64 { return s.size.Load() }

// HitRatio is hits over lookups, or 0 before the first lookup.
func (s *Statistics) HitRatio() float64 {
	hits, misses := s.Hits(), s.Misses()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

// Summary is a point-in-time copy of the counters.
type Summary struct {
	Hits      int64   `json:"hits" yaml:"hits"`
	Misses    int64   `json:"misses" yaml:"misses"`
	Sets      int64   `json:"sets" yaml:"sets"`
	Deletes   int64   `json:"deletes" yaml:"deletes"`
	Evictions int64   `json:"evictions" yaml:"evictions"`
	Size      int64   `json:"size" yaml:"size"`
	HitRatio  float64 `json:"hit_ratio" yaml:"hit_ratio"`
}

// Summary snapshots the counters. Nil statistics give a zero Summary.
func (s *Statistics) Summary() Summary {
	if s == nil {
		return Summary{}
	}
	return Summary{
		Hits:      s.Hits(),
		Misses:    s.Misses(),
		Sets:      s.Sets(),
		Deletes:   s.Deletes(),
		Evictions: s.Evictions(),
		Size:      s.CurrentSize(),
		HitRatio:  s.HitRatio(),
	}
}
