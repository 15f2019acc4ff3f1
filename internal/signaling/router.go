package signaling

import (
	"sync"

	"github.com/1ureka/flux/internal/protocol"
	"github.com/1ureka/flux/internal/util"
)

// Sender is the outbound half of the signaling channel.
type Sender interface {
	Send(event string, payload any) error
}

// HandlerFunc handles one inbound envelope.
type HandlerFunc func(env *protocol.Envelope)

// Router maintains the event name → handler route table. The channel's read
// loop uses it to hand each inbound envelope to the component that owns it.
type Router struct {
	mu     sync.RWMutex
	routes map[string]HandlerFunc
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		routes: make(map[string]HandlerFunc),
	}
}

// Handle registers fn for event, replacing any previous handler.
func (r *Router) Handle(event string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[event] = fn
}

// Dispatch routes env to its handler. Returns false if no handler is
// registered for the event.
func (r *Router) Dispatch(env *protocol.Envelope) bool {
	r.mu.RLock()
	fn, ok := r.routes[env.Event]
	r.mu.RUnlock()

	if !ok {
		util.LogDebug("no handler for event %q, ignoring", env.Event)
		return false
	}
	fn(env)
	return true
}

// On registers a typed handler: the payload is decoded into T before fn runs.
// Payloads that fail to decode are logged and dropped.
func On[T any](r *Router, event string, fn func(T)) {
	r.Handle(event, func(env *protocol.Envelope) {
		var v T
		if err := env.Unmarshal(&v); err != nil {
			util.LogWarning("dropping malformed %s: %v", env.Event, err)
			util.Stats.AddDropped()
			return
		}
		fn(v)
	})
}
