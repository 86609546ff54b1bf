package leaderboard

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"

	"badgekit/core"
)

const (
	maxHeight = 24
	// one in four nodes is promoted to the next level
	promote = 4
)

// link is a forward pointer plus the number of bottom-level steps it skips,
// which lets Get compute a rank without walking the whole list.
type link struct {
	to   *node
	span int
}

type node struct {
	entry Entry
	links []link
}

// SkipList is a concurrent Board. Put, Remove and Get run in O(log n).
type SkipList struct {
	mu     sync.RWMutex
	head   *node
	height int
	size   int
	byID   map[core.IndividualID]*node
	rng    *rand.Rand
}

func NewSkipList() *SkipList {
	var seed [16]byte
	_, _ = cryptorand.Read(seed[:])
	return &SkipList{
		head:   &node{links: make([]link, maxHeight)},
		height: 1,
		byID:   map[core.IndividualID]*node{},
		rng:    rand.New(rand.NewPCG(binary.LittleEndian.Uint64(seed[:8]), binary.LittleEndian.Uint64(seed[8:]))),
	}
}

// outranks orders by points, then multiplier, both descending, then id.
func outranks(a, b Entry) bool {
	if a.Points != b.Points {
		return a.Points > b.Points
	}
	if c := a.Multiplier.Cmp(b.Multiplier); c != 0 {
		return c > 0
	}
	return a.Individual < b.Individual
}

func (s *SkipList) newHeight() int {
	h := 1
	for h < maxHeight && s.rng.IntN(promote) == 0 {
		h++
	}
	return h
}

// Put inserts id or moves it to its new standing.
func (s *SkipList) Put(id core.IndividualID, st Standing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.byID[id]; ok {
		if n.entry.Standing.same(st) {
			return
		}
		s.delete(n.entry)
	}
	s.insert(Entry{Individual: id, Standing: st})
}

func (s *SkipList) insert(e Entry) {
	var (
		prev [maxHeight]*node
		pos  [maxHeight]int
	)
	x := s.head
	for lvl := s.height - 1; lvl >= 0; lvl-- {
		if lvl < s.height-1 {
			pos[lvl] = pos[lvl+1]
		}
		for next := x.links[lvl].to; next != nil && outranks(next.entry, e); next = x.links[lvl].to {
			pos[lvl] += x.links[lvl].span
			x = next
		}
		prev[lvl] = x
	}

	h := s.newHeight()
	for lvl := s.height; lvl < h; lvl++ {
		prev[lvl] = s.head
		s.head.links[lvl].span = s.size
	}
	s.height = max(s.height, h)

	n := &node{entry: e, links: make([]link, h)}
	for lvl := 0; lvl < h; lvl++ {
		before := pos[0] - pos[lvl]
		n.links[lvl] = link{to: prev[lvl].links[lvl].to, span: prev[lvl].links[lvl].span - before}
		prev[lvl].links[lvl] = link{to: n, span: before + 1}
	}
	for lvl := h; lvl < s.height; lvl++ {
		prev[lvl].links[lvl].span++
	}
	s.byID[e.Individual] = n
	s.size++
}

func (s *SkipList) delete(e Entry) {
	var prev [maxHeight]*node
	x := s.head
	for lvl := s.height - 1; lvl >= 0; lvl-- {
		for next := x.links[lvl].to; next != nil && outranks(next.entry, e); next = x.links[lvl].to {
			x = next
		}
		prev[lvl] = x
	}
	target := prev[0].links[0].to
	if target == nil || target.entry.Individual != e.Individual {
		return
	}
	for lvl := 0; lvl < s.height; lvl++ {
		l := &prev[lvl].links[lvl]
		if l.to == target {
			l.span += target.links[lvl].span - 1
			l.to = target.links[lvl].to
		} else {
			l.span--
		}
	}
	for s.height > 1 && s.head.links[s.height-1].to == nil {
		s.height--
	}
	delete(s.byID, e.Individual)
	s.size--
}

func (s *SkipList) Remove(id core.IndividualID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.byID[id]; ok {
		s.delete(n.entry)
	}
}

// TopN returns up to n entries with their 1-based ranks.
func (s *SkipList) TopN(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	out := make([]Entry, 0, min(n, s.size))
	for x := s.head.links[0].to; x != nil && len(out) < n; x = x.links[0].to {
		e := x.entry
		e.Rank = len(out) + 1
		out = append(out, e)
	}
	return out
}

// Get returns id's entry with its rank, summing spans along the search path.
func (s *SkipList) Get(id core.IndividualID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.byID[id]
	if !ok {
		return Entry{}, false
	}
	rank := 0
	x := s.head
	for lvl := s.height - 1; lvl >= 0; lvl-- {
		for next := x.links[lvl].to; next != nil && (next == n || outranks(next.entry, n.entry)); next = x.links[lvl].to {
			rank += x.links[lvl].span
			x = next
		}
		if x == n {
			e := n.entry
			e.Rank = rank
			return e, true
		}
	}
	return Entry{}, false
}

func (s *SkipList) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

var _ Board = (*SkipList)(nil)
