// Package memory implements storage interfaces in process memory
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/zimbra-api/upload-api/internal/storage"
	"github.com/zimbra-api/upload-api/pkg/message"
)

// Store implements storage.AttachmentStore with maps
type Store struct {
	mu        sync.RWMutex
	records   map[string]*storage.Record
	byRequest map[string][]string
	now       func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		records:   make(map[string]*storage.Record),
		byRequest: make(map[string][]string),
		now:       time.Now,
	}
}

func (s *Store) Save(ctx context.Context, requestID string, attachments []message.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range storage.NewRecords(requestID, attachments, s.now()) {
		if old, ok := s.records[r.AttachmentID]; ok {
			s.unindex(old)
		}
		s.records[r.AttachmentID] = r
		s.byRequest[requestID] = append(s.byRequest[requestID], r.AttachmentID)
	}
	return nil
}

func (s *Store) unindex(r *storage.Record) {
	ids := s.byRequest[r.RequestID]
	for i, id := range ids {
		if id == r.AttachmentID {
			s.byRequest[r.RequestID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(s.byRequest[r.RequestID]) == 0 {
		delete(s.byRequest, r.RequestID)
	}
}

func (s *Store) Get(ctx context.Context, attachmentID string) (*storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[attachmentID]
	if !ok {
		return nil, nil
	}
	rec := *r
	return &rec, nil
}

func (s *Store) ListByRequest(ctx context.Context, requestID string) ([]*storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*storage.Record, 0, len(s.byRequest[requestID]))
	for _, id := range s.byRequest[requestID] {
		rec := *s.records[id]
		records = append(records, &rec)
	}
	return records, nil
}

// Len returns the number of stored records
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

var _ storage.AttachmentStore = (*Store)(nil)
