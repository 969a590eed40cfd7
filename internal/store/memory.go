package store

import (
	"context"
	"sync"

	"curbly/internal/domain"
)

// Memory is an in-process DocumentStore. It is the failover fallback and
// the fixture for service tests. Snapshots are pushed to subscribers after
// every successful write or delete in the collection.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	subscribers []*memorySub
}

type memorySub struct {
	collection string
	filter     domain.Filter
	ch         chan []domain.Document
	done       <-chan struct{}
}

func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]map[string]any)}
}

func (m *Memory) Query(ctx context.Context, collection string, filter domain.Filter) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queryLocked(collection, filter), nil
}

func (m *Memory) queryLocked(collection string, filter domain.Filter) []domain.Document {
	docs := make([]domain.Document, 0)
	for id, fields := range m.collections[collection] {
		if !matches(fields, filter) {
			continue
		}
		copied := make(map[string]any, len(fields))
		for k, v := range fields {
			copied[k] = v
		}
		docs = append(docs, domain.Document{ID: id, Fields: copied})
	}
	return docs
}

func (m *Memory) Write(ctx context.Context, collection, id string, fields map[string]any) error {
	if id == "" {
		return domain.Validationf("document id is required")
	}

	m.mu.Lock()
	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]map[string]any)
		m.collections[collection] = coll
	}
	doc, ok := coll[id]
	if !ok {
		doc = make(map[string]any)
		coll[id] = doc
	}
	for k, v := range fields {
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}
	m.notifyLocked(collection)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	if coll, ok := m.collections[collection]; ok {
		delete(coll, id)
	}
	m.notifyLocked(collection)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, collection string, filter domain.Filter) (<-chan []domain.Document, error) {
	sub := &memorySub{
		collection: collection,
		filter:     filter,
		ch:         make(chan []domain.Document, 8),
		done:       ctx.Done(),
	}

	m.mu.Lock()
	m.subscribers = append(m.subscribers, sub)
	// Initial snapshot so consumers can build state before the first write.
	sub.push(m.queryLocked(collection, filter))
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		for i, s := range m.subscribers {
			if s == sub {
				m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
		close(sub.ch)
	}()

	return sub.ch, nil
}

func (m *Memory) notifyLocked(collection string) {
	for _, sub := range m.subscribers {
		if sub.collection != collection {
			continue
		}
		sub.push(m.queryLocked(collection, sub.filter))
	}
}

// push delivers the latest snapshot without blocking: when the consumer is
// behind, the stalest buffered snapshot is dropped in favor of this one.
func (s *memorySub) push(snapshot []domain.Document) {
	select {
	case <-s.done:
		return
	default:
	}
	for {
		select {
		case s.ch <- snapshot:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}
