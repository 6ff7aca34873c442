package provider

import (
	"context"
	"sync"
	"time"

	"github.com/poppopjmp/spiderfoot-sub001/internal/model"
)

// MemoryProvider is an in-process resource store. It backs the engine's
// package tests and local development without a database.
type MemoryProvider struct {
	mu        sync.RWMutex
	resources map[model.ResourceType]map[string]model.ResourceDescriptor
	content   map[string][]byte
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		resources: make(map[model.ResourceType]map[string]model.ResourceDescriptor),
		content:   make(map[string][]byte),
	}
}

// Put inserts or replaces a resource together with its payload.
func (p *MemoryProvider) Put(desc model.ResourceDescriptor, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	byID, ok := p.resources[desc.ResourceType]
	if !ok {
		byID = make(map[string]model.ResourceDescriptor)
		p.resources[desc.ResourceType] = byID
	}
	byID[desc.ResourceID] = desc
	p.content[desc.ResourceID] = append([]byte(nil), payload...)
}

func (p *MemoryProvider) Snapshot(_ context.Context, resourceType model.ResourceType, asOf time.Time) ([]model.ResourceDescriptor, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]model.ResourceDescriptor, 0)
	for _, desc := range p.resources[resourceType] {
		if desc.CreatedAt.After(asOf) {
			continue
		}
		out = append(out, desc)
	}
	return out, nil
}

func (p *MemoryProvider) Content(_ context.Context, resourceType model.ResourceType, resourceID string) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, ok := p.resources[resourceType][resourceID]; !ok {
		return nil, model.ErrResourceNotFound
	}
	return append([]byte(nil), p.content[resourceID]...), nil
}

func (p *MemoryProvider) Delete(_ context.Context, resourceType model.ResourceType, resourceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	byID := p.resources[resourceType]
	if _, ok := byID[resourceID]; !ok {
		return model.ErrResourceNotFound
	}
	delete(byID, resourceID)
	delete(p.content, resourceID)
	return nil
}

func (p *MemoryProvider) SetStatus(_ context.Context, resourceType model.ResourceType, resourceID string, status string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	byID := p.resources[resourceType]
	desc, ok := byID[resourceID]
	if !ok {
		return model.ErrResourceNotFound
	}
	desc.Status = status
	byID[resourceID] = desc
	return nil
}

// Exists reports whether a resource is still present. Test helper.
func (p *MemoryProvider) Exists(resourceType model.ResourceType, resourceID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.resources[resourceType][resourceID]
	return ok
}
