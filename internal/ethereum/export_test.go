package ethereum

// Endpoints exposes the pool's candidate list to external tests.
func (p *Pool) Endpoints() []string { return p.endpoints }
