package ai

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fairyhunter13/ai-post-generator/internal/domain"
	"github.com/fairyhunter13/ai-post-generator/pkg/textx"
)

// KeyRing hands out provider credentials in round-robin order.
// It is safe for concurrent use; every call to Next advances the cursor.
type KeyRing struct {
	mu   sync.Mutex
	keys []string
	next int
}

// NewKeyRing validates the pool and returns a ring positioned at the first key.
// An empty pool or a blank entry is a configuration error.
func NewKeyRing(keys []string) (*KeyRing, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: credential pool is empty", domain.ErrConfiguration)
	}
	cp := make([]string, len(keys))
	for i, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			return nil, fmt.Errorf("%w: credential %d is missing", domain.ErrConfiguration, i+1)
		}
		cp[i] = k
	}
	return &KeyRing{keys: cp}, nil
}

// Next returns the current key and advances the cursor, wrapping after the last key.
func (r *KeyRing) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := r.keys[r.next]
	r.next = (r.next + 1) % len(r.keys)
	return k
}

// Size returns the number of credentials in the pool.
func (r *KeyRing) Size() int { return len(r.keys) }

// MaskKey keeps only the last four characters of a credential for logging.
func MaskKey(k string) string { return textx.MaskSecret(k) }
