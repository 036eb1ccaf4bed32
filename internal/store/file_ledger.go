package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Yousefjoo17/stripe-backend/internal/domain"
)

// FileLedger keeps the payment ledger in a single JSON file. The whole collection
// is held in memory behind a mutex and rewritten atomically on every mutation.
type FileLedger struct {
	path string

	mu       sync.RWMutex
	records  []domain.Payment
	byID     map[int64]int
	byIntent map[string]int
	nextID   int64
}

// OpenFileLedger loads the ledger at path, creating the parent directory when the
// file does not exist yet.
func OpenFileLedger(path string) (*FileLedger, error) {
	l := &FileLedger{
		path:     path,
		byID:     make(map[int64]int),
		byIntent: make(map[string]int),
		nextID:   1,
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read ledger file: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
		return l, nil
	}

	var records []domain.Payment
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("decode ledger file: %w", err)
		}
	}

	for i, rec := range records {
		if _, dup := l.byIntent[rec.ProviderIntentID]; dup {
			return nil, fmt.Errorf("ledger file has %w: %s", ErrDuplicateIntent, rec.ProviderIntentID)
		}
		l.byID[rec.ID] = i
		l.byIntent[rec.ProviderIntentID] = i
		if rec.ID >= l.nextID {
			l.nextID = rec.ID + 1
		}
	}
	l.records = records

	log.Printf("level=info component=file_ledger msg=\"ledger loaded\" path=%s records=%d", path, len(records))
	return l, nil
}

func (l *FileLedger) Append(ctx context.Context, payment *domain.Payment) (*domain.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byIntent[payment.ProviderIntentID]; exists {
		return nil, ErrDuplicateIntent
	}

	rec := payment.Clone()
	rec.ID = l.nextID

	next := make([]domain.Payment, len(l.records), len(l.records)+1)
	copy(next, l.records)
	next = append(next, rec)

	if err := l.persist(next); err != nil {
		return nil, err
	}

	l.records = next
	l.byID[rec.ID] = len(next) - 1
	l.byIntent[rec.ProviderIntentID] = len(next) - 1
	l.nextID++

	out := rec.Clone()
	return &out, nil
}

func (l *FileLedger) FindByProviderIntentID(ctx context.Context, intentID string) (*domain.Payment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx, ok := l.byIntent[intentID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	out := l.records[idx].Clone()
	return &out, nil
}

func (l *FileLedger) FindByID(ctx context.Context, id int64, userID string) (*domain.Payment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx, ok := l.byID[id]
	if !ok || l.records[idx].UserID != userID {
		return nil, ErrPaymentNotFound
	}
	out := l.records[idx].Clone()
	return &out, nil
}

func (l *FileLedger) ListByUser(ctx context.Context, userID string) ([]domain.Payment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Payment, 0)
	for _, rec := range l.records {
		if rec.UserID == userID {
			out = append(out, rec.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (l *FileLedger) UpdateStatus(ctx context.Context, intentID string, status domain.PaymentStatus, at time.Time, reason string) (*domain.StatusUpdate, error) {
	if !status.IsTerminal() {
		return nil, ErrInvalidTransition
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.byIntent[intentID]
	if !ok {
		return nil, ErrPaymentNotFound
	}

	current := l.records[idx]
	if current.Status != domain.StatusPending {
		return &domain.StatusUpdate{Payment: current.Clone(), Previous: current.Status, Applied: false}, nil
	}

	updated := current.Clone()
	applyTerminal(&updated, status, at, reason)

	next := make([]domain.Payment, len(l.records))
	copy(next, l.records)
	next[idx] = updated

	if err := l.persist(next); err != nil {
		return nil, err
	}
	l.records = next

	return &domain.StatusUpdate{Payment: updated.Clone(), Previous: domain.StatusPending, Applied: true}, nil
}

func (l *FileLedger) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Payment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Payment, 0)
	for _, rec := range l.records {
		if rec.Status != domain.StatusPending || !rec.CreatedAt.Before(createdBefore) {
			continue
		}
		out = append(out, rec.Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// persist writes records to a temp file in the ledger directory, syncs it and
// renames it over the ledger. Callers hold the write lock.
func (l *FileLedger) persist(records []domain.Payment) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create ledger tmp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write ledger tmp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync ledger tmp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close ledger tmp: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return errors.Join(
				fmt.Errorf("commit ledger: %w", err),
				fmt.Errorf("remove ledger tmp %s: %w", tmpName, rmErr),
			)
		}
		return fmt.Errorf("commit ledger: %w", err)
	}

	syncDir(dir)
	return nil
}

// syncDir flushes the rename to disk. The new file is already in place, so a
// failure here is logged rather than returned.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		log.Printf("level=warn component=file_ledger msg=\"open ledger dir for sync failed\" dir=%s err=%v", dir, err)
		return
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		log.Printf("level=warn component=file_ledger msg=\"ledger dir sync failed\" dir=%s err=%v", dir, err)
	}
}
