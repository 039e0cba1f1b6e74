package memorystore

import (
	"context"
	"sync"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/domain"
)

// memoryRelationalStore is an in-process RelationalStore for tests and
// single-process deployments with no Postgres configured. Grounded on the
// same RWMutex-guarded-map idiom as memory_vector.go.
type memoryRelationalStore struct {
	mu            sync.RWMutex
	callers       map[string]domain.Caller
	conversations map[string]domain.Conversation
	organizations map[string]domain.Organization
	agents        map[string]domain.Agent
}

// NewMemoryRelationalStore builds an in-memory RelationalStore. Seed data
// (organizations, agents) can be added via SeedOrganization/SeedAgent
// before serving traffic.
func NewMemoryRelationalStore() *memoryRelationalStore {
	return &memoryRelationalStore{
		callers:       make(map[string]domain.Caller),
		conversations: make(map[string]domain.Conversation),
		organizations: make(map[string]domain.Organization),
		agents:        make(map[string]domain.Agent),
	}
}

func (s *memoryRelationalStore) GetCaller(_ context.Context, callerID string) (domain.Caller, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.callers[callerID]
	return c, ok, nil
}

func (s *memoryRelationalStore) UpsertCaller(_ context.Context, c domain.Caller) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callers[c.CallerID] = c
	return nil
}

func (s *memoryRelationalStore) DeleteCaller(_ context.Context, callerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.callers, callerID)
	return nil
}

func (s *memoryRelationalStore) GetConversation(_ context.Context, conversationID string) (domain.Conversation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[conversationID]
	return c, ok, nil
}

func (s *memoryRelationalStore) UpsertConversation(_ context.Context, conv domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ConversationID] = conv
	return nil
}

func (s *memoryRelationalStore) GetOrganization(_ context.Context, organizationID string) (domain.Organization, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.organizations[organizationID]
	return o, ok, nil
}

func (s *memoryRelationalStore) GetAgent(_ context.Context, agentID string) (domain.Agent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[agentID]
	return a, ok, nil
}

// SeedOrganization registers an Organization row, for tests and bootstrap.
func (s *memoryRelationalStore) SeedOrganization(o domain.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.organizations[o.OrganizationID] = o
}

// SeedAgent registers an Agent row, for tests and bootstrap.
func (s *memoryRelationalStore) SeedAgent(a domain.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.AgentID] = a
}

func (s *memoryRelationalStore) Close() error { return nil }
