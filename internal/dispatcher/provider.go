package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

type Provider interface {
	Name() string
	Ready() bool
	Acquire() bool
	Serves(route string) bool
	Routes() []string
	Deliver(ctx context.Context, req Request) (Response, error)
}

type HTTPProvider struct {
	name    string
	baseURL string
	routes  map[string]string // route -> path
	client  *http.Client
	br      *MicroBreaker
}

func NewHTTPProvider(
	name, baseURL string,
	routes map[string]string,
	timeoutMs, failThreshold, openForMs int,
) *HTTPProvider {
	if timeoutMs <= 0 {
		timeoutMs = 3000
	}

	if failThreshold <= 0 {
		failThreshold = 3
	}

	if openForMs <= 0 {
		openForMs = 15000
	}

	return &HTTPProvider{
		name:    name,
		baseURL: baseURL,
		routes:  routes,
		client:  &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		br:      NewMicroBreaker(failThreshold, time.Duration(openForMs)*time.Millisecond),
	}
}

func (p *HTTPProvider) Name() string  { return p.name }
func (p *HTTPProvider) Ready() bool   { return p.br.Ready() }
func (p *HTTPProvider) Acquire() bool { return p.br.TryAcquire() }

func (p *HTTPProvider) Serves(route string) bool {
	_, ok := p.routes[route]
	return ok
}

func (p *HTTPProvider) Routes() []string {
	out := make([]string, 0, len(p.routes))
	for r := range p.routes {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func (p *HTTPProvider) Deliver(ctx context.Context, req Request) (Response, error) {
	id, err := p.post(ctx, p.routes[req.Route], req)
	if err != nil {
		p.br.OnFailure()
		return Response{Provider: p.name}, err
	}

	p.br.OnSuccess()

	return Response{Provider: p.name, ReceiptID: id}, nil
}

// providerReply is the optional body a provider returns on success.
type providerReply struct {
	ID string `json:"id"`
}

func (p *HTTPProvider) post(ctx context.Context, path string, req Request) (string, error) {
	b, err := json.Marshal(req.Body)
	if err != nil {
		return "", err
	}
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return "", err
	}

	hr.Header.Set("Content-Type", "application/json")
	if req.IdempotencyKey != "" {
		hr.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	res, err := p.client.Do(hr)
	if err != nil {
		return "", err
	}

	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return "", fmt.Errorf("provider=%s path=%s status=%d", p.name, path, res.StatusCode)
	}

	var reply providerReply
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &reply)
	}

	return reply.ID, nil
}
