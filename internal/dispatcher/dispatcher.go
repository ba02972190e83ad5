package dispatcher

import (
	"context"
	"errors"
	"sync/atomic"
)

var (
	ErrNoHealthy = errors.New("no healthy providers")
	ErrNoAcquire = errors.New("provider not acquired")
	ErrNoRoute   = errors.New("no provider serves route")
)

// Request is one outbound delivery. Route selects the provider path
// (usually the action type).
type Request struct {
	Route          string
	IdempotencyKey string
	Body           any
}

type Response struct {
	Provider  string
	ReceiptID string
}

// Dispatcher round-robins requests across healthy providers that serve the
// route. It makes exactly one attempt; retries belong to the worker.
type Dispatcher struct {
	providers         []Provider
	roundRobinCounter atomic.Uint64
}

func NewDispatcher(provs []Provider) *Dispatcher {
	return &Dispatcher{providers: provs}
}

// Routes lists every route served by at least one provider.
func (d *Dispatcher) Routes() []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range d.providers {
		for _, r := range p.Routes() {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	return out
}

func (d *Dispatcher) selectProvider(route string) (Provider, error) {
	served := false
	healthy := make([]Provider, 0, len(d.providers))
	for _, p := range d.providers {
		if !p.Serves(route) {
			continue
		}
		served = true
		if p.Ready() {
			healthy = append(healthy, p)
		}
	}

	if !served {
		return nil, ErrNoRoute
	}
	if len(healthy) == 0 {
		return nil, ErrNoHealthy
	}

	x := d.roundRobinCounter.Add(1)
	idx := int((x - 1) % uint64(len(healthy)))

	return healthy[idx], nil
}

func (d *Dispatcher) Deliver(ctx context.Context, req Request) (Response, error) {
	p, err := d.selectProvider(req.Route)
	if err != nil {
		return Response{}, err
	}

	if !p.Acquire() {
		return Response{Provider: p.Name()}, ErrNoAcquire
	}

	return p.Deliver(ctx, req)
}
