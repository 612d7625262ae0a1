package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"signal-trader/internal/types"
)

// Ledger appends terminal trade records to daily JSON-lines files. Both
// cancelled and completed trades are recorded; the ledger is the one
// durable history of everything the engine did.
type Ledger struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

// New creates a file ledger rooted at dir.
func New(dir string) *Ledger {
	return &Ledger{dir: dir, now: time.Now}
}

// Record appends one trade outcome.
func (l *Ledger) Record(_ context.Context, rec *types.TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := filepath.Join(l.dir, l.now().UTC().Format("2006-01-02")+".jsonl")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}
