package tree

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ossia-go/ossia/pkg/value"
)

// AccessMode is a Parameter's access mode.
type AccessMode int

const (
	Get AccessMode = iota
	Set
	Bi
)

// BoundingMode is the numeric constraint behavior applied when a write
// falls outside the parameter's domain.
type BoundingMode int

const (
	Free BoundingMode = iota
	Clip
	Wrap
	Fold
	Low
	High
)

// Domain restricts a Parameter's value: either a numeric [Min,Max] range
// or an enumerated set of allowed Values. Zero Domain (Min==Max==nil,
// no Values) means unrestricted.
type Domain struct {
	Min, Max *float64
	Values   []value.Value // enumerated domain, alternative to Min/Max
}

func (d Domain) isRange() bool { return d.Min != nil || d.Max != nil }

// ValueCallback is notified whenever a parameter's value changes
// (repetition-filtered writes never notify).
type ValueCallback func(v value.Value)

// Parameter is carried by a Node.
type Parameter struct {
	mu sync.Mutex

	node *Node

	current  value.Value
	unit     value.Unit
	domain   Domain
	access   AccessMode
	bounding BoundingMode
	repFilt  bool
	step     float64

	callbacks map[uuid.UUID]ValueCallback

	// refreshLimiter, configured by SetRefreshRate, drops network pushes
	// that exceed the configured rate while still updating the in-memory
	// value. It is not derived from the node's Attributes.RefreshRate.
	refreshLimiter *rate.Limiter

	// notify is set by the owning protocol binding (internal/oscproto,
	// internal/oscquery) to schedule an outbound push whenever the value
	// changes through PushValue. nil means no transport is bound yet.
	notify func(p *Parameter)

	// pending holds resolvers waiting on PullValueAsync, completed when a
	// protocol-originated refresh arrives via ResolvePull.
	pending []chan value.Value
}

func newParameter(n *Node) *Parameter {
	return &Parameter{
		node:      n,
		access:    Bi,
		bounding:  Free,
		callbacks: make(map[uuid.UUID]ValueCallback),
	}
}

func (p *Parameter) Node() *Node { return p.node }

func (p *Parameter) SetUnit(u value.Unit)         { p.mu.Lock(); p.unit = u; p.mu.Unlock() }
func (p *Parameter) Unit() value.Unit             { p.mu.Lock(); defer p.mu.Unlock(); return p.unit }
func (p *Parameter) SetDomain(d Domain)           { p.mu.Lock(); p.domain = d; p.mu.Unlock() }
func (p *Parameter) Domain() Domain               { p.mu.Lock(); defer p.mu.Unlock(); return p.domain }
func (p *Parameter) SetAccessMode(a AccessMode)    { p.mu.Lock(); p.access = a; p.mu.Unlock() }
func (p *Parameter) AccessMode() AccessMode        { p.mu.Lock(); defer p.mu.Unlock(); return p.access }
func (p *Parameter) SetBoundingMode(b BoundingMode) { p.mu.Lock(); p.bounding = b; p.mu.Unlock() }
func (p *Parameter) BoundingMode() BoundingMode     { p.mu.Lock(); defer p.mu.Unlock(); return p.bounding }
func (p *Parameter) SetRepetitionFilter(on bool)    { p.mu.Lock(); p.repFilt = on; p.mu.Unlock() }
func (p *Parameter) RepetitionFilter() bool         { p.mu.Lock(); defer p.mu.Unlock(); return p.repFilt }
func (p *Parameter) SetStep(s float64)              { p.mu.Lock(); p.step = s; p.mu.Unlock() }

// SetRefreshRate configures the push throttle; rate<=0 disables throttling.
func (p *Parameter) SetRefreshRate(hz float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if hz <= 0 {
		p.refreshLimiter = nil
		return
	}
	p.refreshLimiter = rate.NewLimiter(rate.Limit(hz), 1)
}

// BindNotify wires this parameter to a protocol's push scheduler.
func (p *Parameter) BindNotify(f func(*Parameter)) {
	p.mu.Lock()
	p.notify = f
	p.mu.Unlock()
}

func (p *Parameter) Value() value.Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// PushValue applies bounding/domain, the repetition filter, then updates
// the stored value, notifies value callbacks, and schedules a protocol
// push. If the repetition filter suppresses
// the write, no callback and no network push occur.
func (p *Parameter) PushValue(v value.Value) {
	p.mu.Lock()
	bounded := applyBounding(v, p.domain, p.bounding)

	if p.repFilt && p.current.Equal(bounded) {
		p.mu.Unlock()
		return
	}
	p.current = bounded

	cbs := make([]ValueCallback, 0, len(p.callbacks))
	for _, cb := range p.callbacks {
		cbs = append(cbs, cb)
	}
	notify := p.notify
	limiter := p.refreshLimiter
	p.mu.Unlock()

	for _, cb := range cbs {
		cb(bounded)
	}

	if notify != nil && (limiter == nil || limiter.Allow()) {
		notify(p)
	}
}

// AddCallback registers a value callback, returning an identity usable
// with RemoveCallback.
func (p *Parameter) AddCallback(cb ValueCallback) uuid.UUID {
	id := uuid.New()
	p.mu.Lock()
	p.callbacks[id] = cb
	p.mu.Unlock()
	return id
}

func (p *Parameter) RemoveCallback(id uuid.UUID) {
	p.mu.Lock()
	delete(p.callbacks, id)
	p.mu.Unlock()
}

// PullValueAsync returns a channel resolved when a protocol-originated
// refresh arrives via ResolvePull.
func (p *Parameter) PullValueAsync() <-chan value.Value {
	ch := make(chan value.Value, 1)
	p.mu.Lock()
	p.pending = append(p.pending, ch)
	p.mu.Unlock()
	return ch
}

// ResolvePull completes every outstanding PullValueAsync channel with v.
// Called by the owning protocol when a remote refresh response arrives.
func (p *Parameter) ResolvePull(v value.Value) {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, ch := range pending {
		ch <- v
		close(ch)
	}
}

// applyBounding implements the Clip/Wrap/Fold/Low/High bounding modes
// against a numeric domain. Non-numeric values and Free bounding
// pass through unchanged.
func applyBounding(v value.Value, d Domain, mode BoundingMode) value.Value {
	if mode == Free || !d.isRange() {
		return v
	}
	f, ok := v.AsFloat()
	if !ok {
		return v
	}

	min, max := d.Min, d.Max
	if min == nil || max == nil {
		return v
	}
	lo, hi := *min, *max
	if lo > hi {
		lo, hi = hi, lo
	}
	span := hi - lo
	if span <= 0 {
		return value.NewFloat(lo)
	}

	switch mode {
	case Clip:
		if f < lo {
			f = lo
		} else if f > hi {
			f = hi
		}
	case Low:
		if f < lo {
			f = lo
		}
	case High:
		if f > hi {
			f = hi
		}
	case Wrap:
		f = lo + wrapMod(f-lo, span)
	case Fold:
		f = lo + foldMod(f-lo, span)
	}
	return value.NewFloat(f)
}

func wrapMod(x, span float64) float64 {
	m := mod(x, span)
	if m < 0 {
		m += span
	}
	return m
}

func foldMod(x, span float64) float64 {
	period := 2 * span
	m := mod(x, period)
	if m < 0 {
		m += period
	}
	if m > span {
		m = period - m
	}
	return m
}

func mod(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	m := a - b*float64(int64(a/b))
	return m
}
