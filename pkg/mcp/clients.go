package mcp

import "sync"

// ClientRegistry maps technician IDs to MCP session IDs. Populated
// automatically when a technician passes technician_id to any tool.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]string // technicianID → sessionID
}

// NewClientRegistry creates an empty ClientRegistry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]string)}
}

// Register associates a technician with an MCP session. A technician who
// reconnects simply overwrites the old mapping.
func (r *ClientRegistry) Register(technicianID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[technicianID] = sessionID
}

// SessionFor returns the MCP session for the given technician, if connected.
func (r *ClientRegistry) SessionFor(technicianID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.clients[technicianID]
	return sid, ok
}

// SessionIDs returns every connected MCP session, deduplicated.
func (r *ClientRegistry) SessionIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool, len(r.clients))
	var out []string
	for _, sid := range r.clients {
		if !seen[sid] {
			seen[sid] = true
			out = append(out, sid)
		}
	}
	return out
}

// Remove deletes all technician mappings for the given session ID. Called
// when a session disconnects.
func (r *ClientRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for tid, sid := range r.clients {
		if sid == sessionID {
			delete(r.clients, tid)
		}
	}
}
