package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryReader is an in-memory Reader for tests and local runs without a
// providers service.
type MemoryReader struct {
	mu         sync.RWMutex
	orders     map[uuid.UUID]*ServiceOrder
	providers  map[uuid.UUID]*Provider
	configs    map[string]*ServicePriorityConfig
	certs      map[string]*Certification
	teamCounts map[uuid.UUID]TeamJobCounts
	zoneCounts map[uuid.UUID]int
	monthly    map[string]int
}

func NewMemoryReader() *MemoryReader {
	return &MemoryReader{
		orders:     make(map[uuid.UUID]*ServiceOrder),
		providers:  make(map[uuid.UUID]*Provider),
		configs:    make(map[string]*ServicePriorityConfig),
		certs:      make(map[string]*Certification),
		teamCounts: make(map[uuid.UUID]TeamJobCounts),
		zoneCounts: make(map[uuid.UUID]int),
		monthly:    make(map[string]int),
	}
}

func (m *MemoryReader) PutServiceOrder(o *ServiceOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

func (m *MemoryReader) PutProvider(p *Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.ID] = p
}

func (m *MemoryReader) PutPriorityConfig(cfg *ServicePriorityConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.ProviderID.String()+"/"+cfg.Specialty] = cfg
}

func (m *MemoryReader) PutCertification(cert *Certification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.certs[cert.ProviderID.String()+"/"+cert.Specialty] = cert
}

func (m *MemoryReader) SetTeamJobCounts(teamID uuid.UUID, counts TeamJobCounts) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teamCounts[teamID] = counts
}

func (m *MemoryReader) SetZoneJobCount(zoneID uuid.UUID, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zoneCounts[zoneID] = count
}

func (m *MemoryReader) GetServiceOrder(_ context.Context, id uuid.UUID) (*ServiceOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.orders[id], nil
}

func (m *MemoryReader) GetProvider(_ context.Context, id uuid.UUID) (*Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.providers[id], nil
}

func (m *MemoryReader) ListActiveProviders(_ context.Context) ([]*Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Provider
	for _, p := range m.providers {
		if p.Status == ProviderActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryReader) GetPriorityConfig(_ context.Context, providerID uuid.UUID, specialty string) (*ServicePriorityConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.configs[providerID.String()+"/"+specialty], nil
}

func (m *MemoryReader) GetCertification(_ context.Context, providerID uuid.UUID, specialty string) (*Certification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.certs[providerID.String()+"/"+specialty], nil
}

func (m *MemoryReader) GetTeamJobCounts(_ context.Context, teamID uuid.UUID, _ time.Time) (*TeamJobCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := m.teamCounts[teamID]
	return &counts, nil
}

func (m *MemoryReader) GetZoneJobCount(_ context.Context, _, zoneID uuid.UUID, _ time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.zoneCounts[zoneID], nil
}

func (m *MemoryReader) SetMonthlyJobCount(providerID uuid.UUID, specialty string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.monthly[providerID.String()+"/"+specialty] = count
}

func (m *MemoryReader) GetMonthlyJobCount(_ context.Context, providerID uuid.UUID, specialty string, _ time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.monthly[providerID.String()+"/"+specialty], nil
}
