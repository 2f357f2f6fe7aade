package services

import (
	"sync"
	"sync/atomic"

	"rtsview/internal/core/domain"
	"rtsview/internal/core/ports"
)

type rendererBinding struct {
	trackKey string
	quality  domain.VideoQuality
}

// RendererRegistry tracks which renderers display which video track and at
// what quality they asked for.
type RendererRegistry struct {
	mu        sync.RWMutex
	nextID    atomic.Uint64
	renderers map[domain.RendererID]rendererBinding
}

var _ ports.RendererRegistry = (*RendererRegistry)(nil)

func NewRendererRegistry() *RendererRegistry {
	return &RendererRegistry{
		renderers: make(map[domain.RendererID]rendererBinding),
	}
}

func (r *RendererRegistry) NewRendererID() domain.RendererID {
	return domain.RendererID(r.nextID.Add(1))
}

// Register binds a renderer to a track, replacing any previous binding.
func (r *RendererRegistry) Register(renderer domain.RendererID, trackKey string, quality domain.VideoQuality) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers[renderer] = rendererBinding{trackKey: trackKey, quality: quality}
}

func (r *RendererRegistry) Deregister(renderer domain.RendererID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.renderers, renderer)
}

func (r *RendererRegistry) HasActiveRenderer(trackKey string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.renderers {
		if b.trackKey == trackKey {
			return true
		}
	}
	return false
}

// RequestedQuality returns the highest priority quality any renderer of the
// track asked for, or auto when none is registered.
func (r *RendererRegistry) RequestedQuality(trackKey string) domain.VideoQuality {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best  domain.VideoQuality
		found bool
	)
	for _, b := range r.renderers {
		if b.trackKey != trackKey {
			continue
		}
		if !found || b.quality.Outranks(best) {
			best = b.quality
			found = true
		}
	}
	if !found {
		return domain.AutoQuality
	}
	return best
}

// Count returns the number of renderers bound to the track.
func (r *RendererRegistry) Count(trackKey string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, b := range r.renderers {
		if b.trackKey == trackKey {
			n++
		}
	}
	return n
}

func (r *RendererRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers = make(map[domain.RendererID]rendererBinding)
}
