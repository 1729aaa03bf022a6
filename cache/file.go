package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/DeegaLabs/cronos-shield-x402/types"
)

// fileFormat is the on-disk document of a FileStore.
type fileFormat struct {
	SessionID string                         `json:"sessionId"`
	Records   map[string]types.PaymentRecord `json:"records"`
}

// FileStore is the durable Store variant: records are persisted as JSON so a
// process restart does not force re-payment for a resource whose challenge
// is still valid. Writes are flushed synchronously on every Record.
type FileStore struct {
	mu        sync.Mutex
	mem       *MemoryStore
	path      string
	sessionID string
}

// OpenFileStore loads (or creates) a durable payment store at path.
func OpenFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		mem:       NewMemoryStore(),
		path:      path,
		sessionID: uuid.NewString(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil
		}
		return nil, err
	}

	var doc fileFormat
	if err := json.Unmarshal(data, &doc); err != nil {
		// A corrupt store must not block payments; start over.
		return fs, nil
	}
	if doc.SessionID != "" {
		fs.sessionID = doc.SessionID
	}
	for id, rec := range doc.Records {
		fs.mem.Record(id, rec)
	}
	return fs, nil
}

// SessionID identifies the store across reloads.
func (f *FileStore) SessionID() string {
	return f.sessionID
}

func (f *FileStore) Lookup(paymentID string) *types.PaymentRecord {
	return f.mem.Lookup(paymentID)
}

func (f *FileStore) Record(paymentID string, rec types.PaymentRecord) {
	f.mem.Record(paymentID, rec)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushLocked()
}

func (f *FileStore) flushLocked() {
	doc := fileFormat{
		SessionID: f.sessionID,
		Records:   f.mem.snapshot(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return
	}

	tmp := f.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return
	}
	_ = os.Rename(tmp, f.path)
}

var _ Store = (*FileStore)(nil)
