package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// GenesisHash is the previous hash of the first entry in a chain.
var GenesisHash = strings.Repeat("0", 64)

// Event is what the ledger edges record for every mutating request.
type Event struct {
	CorrelationID string `json:"cid,omitempty"`
	UserID        int64  `json:"user_id,omitempty"`
	BranchID      int64  `json:"branch_id,omitempty"`
	Method        string `json:"method"`
	Path          string `json:"path"`
	Status        int    `json:"status"`
	DurationMS    int64  `json:"duration_ms"`
}

// LogEntry represents a single audit log entry
type LogEntry struct {
	Seq          int64  `json:"seq"`
	Timestamp    string `json:"timestamp"`
	PreviousHash string `json:"previous_hash"`
	Payload      string `json:"payload"`
	Hash         string `json:"hash"`
}

// ChainLogger keeps an in-memory hash chain of audit entries and mirrors each
// entry to a zap logger. Rewriting any entry breaks every hash after it.
type ChainLogger struct {
	mu           sync.Mutex
	previousHash string
	seq          int64
	entries      []*LogEntry
	limit        int

	log *zap.Logger
	now func() time.Time
}

// Option configures a ChainLogger.
type Option func(*ChainLogger)

// WithLogger mirrors every appended entry to l.
func WithLogger(l *zap.Logger) Option {
	return func(c *ChainLogger) { c.log = l }
}

// WithRetention keeps at most n entries in memory. Older entries are dropped
// from the front; the chain continues from the last hash.
func WithRetention(n int) Option {
	return func(c *ChainLogger) { c.limit = n }
}

// WithClock overrides the entry timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *ChainLogger) { c.now = now }
}

func NewChainLogger(opts ...Option) *ChainLogger {
	c := &ChainLogger{
		previousHash: GenesisHash,
		log:          zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Append adds a raw payload to the chain.
func (c *ChainLogger) Append(payload string) *LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	entry := &LogEntry{
		Seq:          c.seq,
		Timestamp:    c.now().UTC().Format(time.RFC3339Nano),
		PreviousHash: c.previousHash,
		Payload:      payload,
	}
	entry.Hash = entryHash(entry.PreviousHash, entry.Seq, entry.Timestamp, entry.Payload)
	c.previousHash = entry.Hash

	c.entries = append(c.entries, entry)
	if c.limit > 0 && len(c.entries) > c.limit {
		c.entries = c.entries[len(c.entries)-c.limit:]
	}

	c.log.Info("audit",
		zap.Int64("seq", entry.Seq),
		zap.String("payload", entry.Payload),
		zap.String("hash", entry.Hash),
		zap.String("previous_hash", entry.PreviousHash),
	)
	return entry
}

// Record appends ev encoded as JSON.
func (c *ChainLogger) Record(ev Event) *LogEntry {
	b, _ := json.Marshal(ev) // scalar fields only
	return c.Append(string(b))
}

// Entries returns a copy of the retained entries.
func (c *ChainLogger) Entries() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LogEntry, len(c.entries))
	for i, e := range c.entries {
		out[i] = *e
	}
	return out
}

// Head returns the hash of the latest entry.
func (c *ChainLogger) Head() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previousHash
}

// VerifyChain checks that entries form an unbroken hash chain. It returns the
// index of the first bad entry, or -1 when the chain is intact.
func VerifyChain(entries []LogEntry) int {
	for i, entry := range entries {
		if i > 0 && entry.PreviousHash != entries[i-1].Hash {
			return i
		}
		if entryHash(entry.PreviousHash, entry.Seq, entry.Timestamp, entry.Payload) != entry.Hash {
			return i
		}
	}
	return -1
}

func entryHash(prev string, seq int64, ts, payload string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s|%s", prev, seq, ts, payload)))
	return hex.EncodeToString(sum[:])
}
