// Package fake is an in-memory CloudProvider used by tests. It hands out
// deterministic identifiers, records the order of calls, and lets tests inject
// failures, missing resources and readiness timeouts per kind.
package fake

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/stackctl-io/stackctl/internal/provider"
	"github.com/stackctl-io/stackctl/internal/resource"
)

// Call records one invocation against the fake.
type Call struct {
	Op   string // "create", "describe", "delete", "wait"
	Kind resource.Kind
	ID   string
}

type entry struct {
	kind  resource.Kind
	attrs map[string]string
}

// Provider implements provider.CloudProvider in memory.
type Provider struct {
	mu        sync.Mutex
	seq       int
	resources map[string]entry
	calls     []Call

	// FailCreate, FailDelete and FailDescribe make the corresponding call
	// fail once per lookup for the given kind.
	FailCreate   map[resource.Kind]error
	FailDelete   map[resource.Kind]error
	FailDescribe map[resource.Kind]error

	// NeverReady makes WaitReady return ErrTimedOut for the given kinds.
	NeverReady map[resource.Kind]bool

	// Gone marks ids that answer ErrNotFound to describe and delete even
	// though a record may still reference them.
	Gone map[string]bool
}

var _ provider.CloudProvider = (*Provider)(nil)

// New returns an empty fake provider.
func New() *Provider {
	return &Provider{
		resources:    make(map[string]entry),
		FailCreate:   make(map[resource.Kind]error),
		FailDelete:   make(map[resource.Kind]error),
		FailDescribe: make(map[resource.Kind]error),
		NeverReady:   make(map[resource.Kind]bool),
		Gone:         make(map[string]bool),
	}
}

func (p *Provider) Create(ctx context.Context, kind resource.Kind, name string, inputs map[string]string) (*provider.Created, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.FailCreate[kind]; err != nil {
		p.calls = append(p.calls, Call{Op: "create", Kind: kind})
		return nil, err
	}

	p.seq++
	id := fmt.Sprintf("%s-%04d", kind, p.seq)

	attrs := map[string]string{"name": name}
	for k, v := range inputs {
		attrs[k] = v
	}
	switch kind {
	case resource.KindNetwork:
		attrs[resource.AttrVpcID] = id
		attrs[resource.AttrIgwID] = "igw-" + strconv.Itoa(p.seq)
		attrs[resource.AttrRouteTableID] = "rtb-" + strconv.Itoa(p.seq)
	case resource.KindSecurityGroupALB, resource.KindSecurityGroupCompute:
		attrs[resource.AttrSecurityGroupID] = id
	case resource.KindInstanceRole:
		attrs[resource.AttrInstanceProfile] = name + "-profile"
		attrs[resource.AttrRoleArn] = "arn:aws:iam::000000000000:role/" + name
	case resource.KindLoadBalancer:
		attrs[resource.AttrDNSName] = name + ".elb.example.com"
	case resource.KindTargetGroup:
		attrs[resource.AttrTargetGroupArn] = id
	case resource.KindLaunchTemplate:
		attrs[resource.AttrTemplateID] = id
	}

	p.resources[id] = entry{kind: kind, attrs: attrs}
	p.calls = append(p.calls, Call{Op: "create", Kind: kind, ID: id})
	return &provider.Created{ID: id, Attributes: attrs}, nil
}

func (p *Provider) Describe(ctx context.Context, kind resource.Kind, id string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, Call{Op: "describe", Kind: kind, ID: id})
	if err := p.FailDescribe[kind]; err != nil {
		return nil, err
	}
	if p.Gone[id] {
		return nil, provider.ErrNotFound
	}
	e, ok := p.resources[id]
	if !ok {
		return nil, provider.ErrNotFound
	}

	attrs := make(map[string]string, len(e.attrs))
	for k, v := range e.attrs {
		attrs[k] = v
	}
	if kind == resource.KindScalingGroup {
		// A healthy fake group always runs at desired capacity.
		attrs["in_service"] = attrs[provider.InputDesiredCapacity]
	}
	return attrs, nil
}

func (p *Provider) Delete(ctx context.Context, kind resource.Kind, id string, attrs map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, Call{Op: "delete", Kind: kind, ID: id})
	if err := p.FailDelete[kind]; err != nil {
		return err
	}
	if p.Gone[id] {
		delete(p.resources, id)
		return provider.ErrNotFound
	}
	if _, ok := p.resources[id]; !ok {
		return provider.ErrNotFound
	}
	delete(p.resources, id)
	return nil
}

func (p *Provider) WaitReady(ctx context.Context, kind resource.Kind, id string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, Call{Op: "wait", Kind: kind, ID: id})
	if p.NeverReady[kind] {
		return provider.ErrTimedOut
	}
	return nil
}

// Calls returns a copy of every call made so far, in order.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	calls := make([]Call, len(p.calls))
	copy(calls, p.calls)
	return calls
}

// CallsOf filters Calls by operation.
func (p *Provider) CallsOf(op string) []Call {
	var out []Call
	for _, c := range p.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Live reports how many resources currently exist in the fake.
func (p *Provider) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.resources)
}
