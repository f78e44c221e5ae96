package service

import (
	"context"
	"sync"

	"github.com/basketfi/vaultcore/internal/model"
	"github.com/basketfi/vaultcore/internal/pkg/logger"
)

// ChangeRepo persists position-change records.
type ChangeRepo interface {
	Insert(ctx context.Context, change *model.PositionChange) error
	List(ctx context.Context, vaultID string, limit int) ([]*model.PositionChange, error)
}

// Broadcaster fans a change out to live subscribers (the websocket
// stream). Must not block.
type Broadcaster interface {
	Broadcast(change *model.PositionChange)
}

// ChangeRecorder decouples ledger mutation from persistence: records go
// through a buffered channel to a consumer goroutine, and a ring buffer
// answers queries when no repo is configured. Recording never blocks or
// fails the operation that produced the record.
type ChangeRecorder struct {
	ch        chan *model.PositionChange
	buffer    *changeBuffer
	repos     []ChangeRepo
	broadcast Broadcaster
	wg        sync.WaitGroup
}

func NewChangeRecorder(broadcast Broadcaster, repos ...ChangeRepo) *ChangeRecorder {
	r := &ChangeRecorder{
		ch:        make(chan *model.PositionChange, 1000),
		buffer:    newChangeBuffer(1000),
		repos:     repos,
		broadcast: broadcast,
	}
	r.wg.Add(1)
	go r.process()
	return r
}

func (r *ChangeRecorder) Record(change *model.PositionChange) {
	if change == nil {
		return
	}
	r.buffer.Add(change)
	select {
	case r.ch <- change:
	default:
		logger.Warn("change buffer full, dropping record", "vault", change.VaultID, "op", change.Op)
	}
}

func (r *ChangeRecorder) List(ctx context.Context, vaultID string, limit int) ([]*model.PositionChange, error) {
	for _, repo := range r.repos {
		records, err := repo.List(ctx, vaultID, limit)
		if err == nil {
			return records, nil
		}
		logger.Warn("change repo list failed, trying next", "error", err)
	}
	return r.buffer.List(vaultID, limit), nil
}

func (r *ChangeRecorder) process() {
	defer r.wg.Done()
	for change := range r.ch {
		for _, repo := range r.repos {
			if err := repo.Insert(context.Background(), change); err != nil {
				logger.Error("failed to persist change record", "error", err, "vault", change.VaultID)
			}
		}
		if r.broadcast != nil {
			r.broadcast.Broadcast(change)
		}
	}
}

func (r *ChangeRecorder) Close() {
	close(r.ch)
	r.wg.Wait()
}

type changeBuffer struct {
	mu      sync.Mutex
	maxSize int
	records []*model.PositionChange
	next    int
}

func newChangeBuffer(maxSize int) *changeBuffer {
	return &changeBuffer{
		maxSize: maxSize,
		records: make([]*model.PositionChange, 0, maxSize),
	}
}

func (b *changeBuffer) Add(change *model.PositionChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, change)
		return
	}
	b.records[b.next] = change
	b.next = (b.next + 1) % b.maxSize
}

func (b *changeBuffer) List(vaultID string, limit int) []*model.PositionChange {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > b.maxSize {
		limit = b.maxSize
	}
	results := make([]*model.PositionChange, 0, limit)
	total := len(b.records)
	for i := 0; i < total; i++ {
		idx := (b.next + total - 1 - i) % total
		entry := b.records[idx]
		if entry == nil {
			continue
		}
		if vaultID != "" && entry.VaultID != vaultID {
			continue
		}
		results = append(results, entry)
		if len(results) >= limit {
			break
		}
	}
	return results
}
