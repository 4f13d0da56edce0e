package netservice

import (
	cmap "github.com/orcaman/concurrent-map/v2"
)

// ServiceRegistry tracks the services that are actively listening.
// A service appears only after a successful bind and leaves on Stop.
type ServiceRegistry struct {
	services cmap.ConcurrentMap[string, *Service]
}

func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{services: cmap.New[*Service]()}
}

func (r *ServiceRegistry) add(s *Service) {
	r.services.Set(s.ID, s)
}

func (r *ServiceRegistry) remove(id string) {
	r.services.Remove(id)
}

// Get returns the live service with the given id.
func (r *ServiceRegistry) Get(id string) (*Service, bool) {
	return r.services.Get(id)
}

// Len is the number of actively listening services.
func (r *ServiceRegistry) Len() int {
	return r.services.Count()
}

// StopAll stops every registered service. Used on daemon shutdown.
func (r *ServiceRegistry) StopAll() {
	for kv := range r.services.IterBuffered() {
		kv.Val.Stop()
	}
}
