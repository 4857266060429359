package agreement

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Snapshot is a read-only copy of the agreement's remote fields. It may be
// stale as soon as it is returned.
type Snapshot struct {
	Agreement  common.Address `json:"agreement"`
	Client     common.Address `json:"client"`
	Freelancer common.Address `json:"freelancer"`
	Text       string         `json:"text"`
	Amount     *big.Int       `json:"amount"`
	Status     Status         `json:"status"`
	ReadAt     time.Time      `json:"readAt"`

	// seq orders reads issued by the same binding, assigned when the read starts.
	seq uint64
}

func (s *Snapshot) Seq() uint64 {
	return s.seq
}

func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	cp := *s
	if s.Amount != nil {
		cp.Amount = new(big.Int).Set(s.Amount)
	}
	return &cp
}

// SnapshotCache holds the last accepted snapshot for one binding.
type SnapshotCache struct {
	mu      sync.RWMutex
	current *Snapshot
}

func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{}
}

// Get returns a copy of the cached snapshot, nil if nothing was loaded.
func (c *SnapshotCache) Get() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Clone()
}

// Update replaces the cached snapshot wholesale. Snapshots read before the
// cached one, or reporting an earlier status, are rejected with ErrStaleSnapshot.
func (c *SnapshotCache) Update(s *Snapshot) error {
	if s == nil {
		return ErrStaleSnapshot
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cur := c.current; cur != nil && cur.Agreement == s.Agreement {
		if s.seq < cur.seq || s.Status < cur.Status {
			return ErrStaleSnapshot
		}
	}
	c.current = s.Clone()
	return nil
}

func (c *SnapshotCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}
