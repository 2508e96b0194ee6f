package tool

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// Cache stores successful tool results per session, keyed by the call
// fingerprint. Entries live until the session is reset.
type Cache interface {
	Get(ctx context.Context, sessionID, fingerprint string) (Result, bool, error)
	Set(ctx context.Context, sessionID, fingerprint string, result Result) error
	Reset(ctx context.Context, sessionID string) error
}

// Fingerprint identifies a call by tool name and canonical arguments.
// encoding/json writes map keys in sorted order, so argument objects that
// differ only in key order share a fingerprint.
func Fingerprint(name string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	canonical, err := json.Marshal(args)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MemoryCache is an in-process Cache
type MemoryCache struct {
	mu       sync.RWMutex
	sessions map[string]map[string]Result
}

// NewMemoryCache creates an empty in-process cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{sessions: make(map[string]map[string]Result)}
}

// Get implements Cache
func (c *MemoryCache) Get(_ context.Context, sessionID, fingerprint string) (Result, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.sessions[sessionID][fingerprint]
	return result, ok, nil
}

// Set implements Cache
func (c *MemoryCache) Set(_ context.Context, sessionID, fingerprint string, result Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, ok := c.sessions[sessionID]
	if !ok {
		entries = make(map[string]Result)
		c.sessions[sessionID] = entries
	}
	entries[fingerprint] = result
	return nil
}

// Reset implements Cache
func (c *MemoryCache) Reset(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
	return nil
}

// Len returns the number of cached entries for a session
func (c *MemoryCache) Len(sessionID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions[sessionID])
}
