package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/payment"
	"github.com/xraph/splitledger/session"
)

// DefaultHookTimeout bounds a single hook call.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and dispatches events to the
// ones implementing each hook.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onSessionCreated      []OnSessionCreated
	onSessionEnded        []OnSessionEnded
	onParticipantJoined   []OnParticipantJoined
	onParticipantLeft     []OnParticipantLeft
	onItemClaimed         []OnItemClaimed
	onItemUnclaimed       []OnItemUnclaimed
	onItemPaymentRecorded []OnItemPaymentRecorded
	onParticipantPaid     []OnParticipantPaid
	onSettlementFailed    []OnSettlementFailed
	onIntegrityFault      []OnIntegrityFault
	onMutationRetried     []OnMutationRetried
	processors            []PaymentProcessorPlugin
	extractors            []ReceiptExtractorPlugin
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	cache(p, &r.onInit)
	cache(p, &r.onShutdown)
	cache(p, &r.onSessionCreated)
	cache(p, &r.onSessionEnded)
	cache(p, &r.onParticipantJoined)
	cache(p, &r.onParticipantLeft)
	cache(p, &r.onItemClaimed)
	cache(p, &r.onItemUnclaimed)
	cache(p, &r.onItemPaymentRecorded)
	cache(p, &r.onParticipantPaid)
	cache(p, &r.onSettlementFailed)
	cache(p, &r.onIntegrityFault)
	cache(p, &r.onMutationRetried)
	cache(p, &r.processors)
	cache(p, &r.extractors)

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implemented(p),
	)

	return nil
}

func cache[T Plugin](p Plugin, list *[]T) {
	if v, ok := p.(T); ok {
		*list = append(*list, v)
	}
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnSessionCreated", reflect.TypeFor[OnSessionCreated]()},
	{"OnSessionEnded", reflect.TypeFor[OnSessionEnded]()},
	{"OnParticipantJoined", reflect.TypeFor[OnParticipantJoined]()},
	{"OnParticipantLeft", reflect.TypeFor[OnParticipantLeft]()},
	{"OnItemClaimed", reflect.TypeFor[OnItemClaimed]()},
	{"OnItemUnclaimed", reflect.TypeFor[OnItemUnclaimed]()},
	{"OnItemPaymentRecorded", reflect.TypeFor[OnItemPaymentRecorded]()},
	{"OnParticipantPaid", reflect.TypeFor[OnParticipantPaid]()},
	{"OnSettlementFailed", reflect.TypeFor[OnSettlementFailed]()},
	{"OnIntegrityFault", reflect.TypeFor[OnIntegrityFault]()},
	{"OnMutationRetried", reflect.TypeFor[OnMutationRetried]()},
	{"PaymentProcessor", reflect.TypeFor[PaymentProcessorPlugin]()},
	{"ReceiptExtractor", reflect.TypeFor[ReceiptExtractorPlugin]()},
}

// implemented returns the names of the hooks p implements.
func implemented(p Plugin) []string {
	var names []string
	t := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if t.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Processor returns the processor of the first registered
// PaymentProcessorPlugin, or nil.
func (r *Registry) Processor() payment.Processor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.processors) == 0 {
		return nil
	}
	return r.processors[0].Processor()
}

// Extractors returns all registered receipt extractor plugins.
func (r *Registry) Extractors() []ReceiptExtractorPlugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]ReceiptExtractorPlugin, len(r.extractors))
	copy(result, r.extractors)
	return result
}

// Event emission methods

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, l any) {
	emit(ctx, r, "OnInit", snapshotOf(r, &r.onInit), func(p OnInit) error {
		return p.OnInit(ctx, l)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", snapshotOf(r, &r.onShutdown), func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitSessionCreated emits a session created event.
func (r *Registry) EmitSessionCreated(ctx context.Context, s *session.Session) {
	emit(ctx, r, "OnSessionCreated", snapshotOf(r, &r.onSessionCreated), func(p OnSessionCreated) error {
		return p.OnSessionCreated(ctx, s)
	})
}

// EmitSessionEnded emits a session ended event.
func (r *Registry) EmitSessionEnded(ctx context.Context, s *session.Session) {
	emit(ctx, r, "OnSessionEnded", snapshotOf(r, &r.onSessionEnded), func(p OnSessionEnded) error {
		return p.OnSessionEnded(ctx, s)
	})
}

// EmitParticipantJoined emits a participant joined event.
func (r *Registry) EmitParticipantJoined(ctx context.Context, s *session.Session, part *session.Participant) {
	emit(ctx, r, "OnParticipantJoined", snapshotOf(r, &r.onParticipantJoined), func(p OnParticipantJoined) error {
		return p.OnParticipantJoined(ctx, s, part)
	})
}

// EmitParticipantLeft emits a participant left event.
func (r *Registry) EmitParticipantLeft(ctx context.Context, s *session.Session, pid session.ParticipantID) {
	emit(ctx, r, "OnParticipantLeft", snapshotOf(r, &r.onParticipantLeft), func(p OnParticipantLeft) error {
		return p.OnParticipantLeft(ctx, s, pid)
	})
}

// EmitItemClaimed emits an item claimed event.
func (r *Registry) EmitItemClaimed(ctx context.Context, s *session.Session, itemID id.ItemID, pid session.ParticipantID) {
	emit(ctx, r, "OnItemClaimed", snapshotOf(r, &r.onItemClaimed), func(p OnItemClaimed) error {
		return p.OnItemClaimed(ctx, s, itemID, pid)
	})
}

// EmitItemUnclaimed emits an item unclaimed event.
func (r *Registry) EmitItemUnclaimed(ctx context.Context, s *session.Session, itemID id.ItemID, pid session.ParticipantID) {
	emit(ctx, r, "OnItemUnclaimed", snapshotOf(r, &r.onItemUnclaimed), func(p OnItemUnclaimed) error {
		return p.OnItemUnclaimed(ctx, s, itemID, pid)
	})
}

// EmitItemPaymentRecorded emits an item payment event.
func (r *Registry) EmitItemPaymentRecorded(ctx context.Context, s *session.Session, rec *session.PaymentReceipt) {
	emit(ctx, r, "OnItemPaymentRecorded", snapshotOf(r, &r.onItemPaymentRecorded), func(p OnItemPaymentRecorded) error {
		return p.OnItemPaymentRecorded(ctx, s, rec)
	})
}

// EmitParticipantPaid emits a participant paid event.
func (r *Registry) EmitParticipantPaid(ctx context.Context, s *session.Session, pid session.ParticipantID) {
	emit(ctx, r, "OnParticipantPaid", snapshotOf(r, &r.onParticipantPaid), func(p OnParticipantPaid) error {
		return p.OnParticipantPaid(ctx, s, pid)
	})
}

// EmitSettlementFailed emits a settlement failure event.
func (r *Registry) EmitSettlementFailed(ctx context.Context, c payment.Charge, cause error) {
	emit(ctx, r, "OnSettlementFailed", snapshotOf(r, &r.onSettlementFailed), func(p OnSettlementFailed) error {
		return p.OnSettlementFailed(ctx, c, cause)
	})
}

// EmitIntegrityFault emits an integrity fault event.
func (r *Registry) EmitIntegrityFault(ctx context.Context, sessionID id.SessionID, cause error) {
	emit(ctx, r, "OnIntegrityFault", snapshotOf(r, &r.onIntegrityFault), func(p OnIntegrityFault) error {
		return p.OnIntegrityFault(ctx, sessionID, cause)
	})
}

// EmitMutationRetried emits a mutation retry event.
func (r *Registry) EmitMutationRetried(ctx context.Context, sessionID id.SessionID, op string, attempt int) {
	emit(ctx, r, "OnMutationRetried", snapshotOf(r, &r.onMutationRetried), func(p OnMutationRetried) error {
		return p.OnMutationRetried(ctx, sessionID, op, attempt)
	})
}

// snapshotOf reads a cached hook list under the read lock. Register only
// appends, so the returned slice header is stable.
func snapshotOf[T any](r *Registry, list *[]T) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *list
}

// emit calls fn for every plugin in list. A failing or slow plugin is
// logged and never blocks the caller for longer than the hook timeout.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, list []T, fn func(T) error) {
	for _, p := range list {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("plugin panic: %s: %v", pluginName, rec)
			}
		}()
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
