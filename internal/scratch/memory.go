package scratch

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"photobox/internal/box"
)

// memoryStore keeps artifacts in memory, keyed by run ID then name.
type memoryStore struct {
	mu      sync.RWMutex
	runs    map[string]map[string][]byte
	touched map[string]time.Time
}

// NewMemoryScratchArea creates an in-memory scratch area.
// maxSize is the maximum total size in bytes; must be positive.
func NewMemoryScratchArea(maxSize int64, logger box.Logger) box.ScratchArea {
	return &area{
		store:   &memoryStore{runs: make(map[string]map[string][]byte), touched: make(map[string]time.Time)},
		maxSize: maxSize,
		logger:  logger,
	}
}

func (m *memoryStore) Create(runID, name string) (pendingArtifact, error) {
	m.touch(runID)
	return &memoryPending{store: m, runID: runID, name: name}, nil
}

func (m *memoryStore) touch(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched[runID] = time.Now()
}

func (m *memoryStore) LastWrite(runID string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.touched[runID], nil
}

func (m *memoryStore) Open(runID, name string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.runs[runID][name]
	if !ok {
		return nil, fmt.Errorf("artifact not found: %s/%s", runID, name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) List(runID string) ([]*box.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	arts := make([]*box.Artifact, 0, len(m.runs[runID]))
	for name, data := range m.runs[runID] {
		arts = append(arts, &box.Artifact{Name: name, Size: int64(len(data))})
	}
	return arts, nil
}

func (m *memoryStore) Remove(runID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs[runID], name)
	return nil
}

func (m *memoryStore) RemoveRun(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, runID)
	delete(m.touched, runID)
	return nil
}

func (m *memoryStore) Runs() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.runs))
	for id := range m.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memoryStore) ContentSize() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, arts := range m.runs {
		for _, data := range arts {
			total += int64(len(data))
		}
	}
	return total, nil
}

// memoryPending buffers content until Commit.
type memoryPending struct {
	store *memoryStore
	runID string
	name  string
	buf   bytes.Buffer
}

func (p *memoryPending) Write(b []byte) (int, error) { return p.buf.Write(b) }

func (p *memoryPending) Commit() error {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()

	arts, ok := p.store.runs[p.runID]
	if !ok {
		arts = make(map[string][]byte)
		p.store.runs[p.runID] = arts
	}
	arts[p.name] = bytes.Clone(p.buf.Bytes())
	p.store.touched[p.runID] = time.Now()
	return nil
}

func (p *memoryPending) Discard() error {
	p.buf.Reset()
	return nil
}
