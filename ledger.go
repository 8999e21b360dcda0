package splitledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/payment"
	"github.com/xraph/splitledger/plugin"
	"github.com/xraph/splitledger/receipt"
	"github.com/xraph/splitledger/session"
	"github.com/xraph/splitledger/store"
	"github.com/xraph/splitledger/types"
)

// DefaultMaxAttempts bounds how often a mutation is recomputed after losing
// a version race.
const DefaultMaxAttempts = 3

// Ledger is the split-bill engine. It owns the read-compute-write cycle for
// every session mutation and is safe for concurrent use.
type Ledger struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	locks    *keyedLock
	watchers *broker

	// Configuration
	maxAttempts     int
	opTimeout       time.Duration
	defaultCurrency string
	verify          bool
	watchPoll       time.Duration
	processor       payment.Processor
	clock           func() time.Time
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:           s,
		plugins:         plugin.NewRegistry(),
		logger:          slog.Default(),
		locks:           newKeyedLock(),
		watchers:        newBroker(),
		maxAttempts:     DefaultMaxAttempts,
		defaultCurrency: "usd",
		clock:           func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		if err := l.plugins.Register(p); err != nil {
			l.logger.Warn("plugin registration failed", "plugin", p.Name(), "error", err)
		}
	}
}

// WithMaxAttempts sets how many times a mutation is attempted before
// ErrConflict is returned.
func WithMaxAttempts(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// WithOperationTimeout bounds every engine operation. Zero leaves the
// caller's context as the only deadline.
func WithOperationTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		l.opTimeout = d
	}
}

// WithDefaultCurrency sets the currency used when CreateInput has none.
func WithDefaultCurrency(currency string) Option {
	return func(l *Ledger) {
		if c := strings.ToLower(strings.TrimSpace(currency)); c != "" {
			l.defaultCurrency = c
		}
	}
}

// WithInvariantChecks makes every mutation verify the whole session before
// committing.
func WithInvariantChecks(enabled bool) Option {
	return func(l *Ledger) {
		l.verify = enabled
	}
}

// WithWatchPoll makes Watch also re-read the store at the given interval,
// so writes committed by other processes are observed.
func WithWatchPoll(d time.Duration) Option {
	return func(l *Ledger) {
		l.watchPoll = d
	}
}

// WithPaymentProcessor sets the processor Settle uses when the caller
// passes none.
func WithPaymentProcessor(p payment.Processor) Option {
	return func(l *Ledger) {
		l.processor = p
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.clock = now
		}
	}
}

// Store returns the underlying store.
func (l *Ledger) Store() store.Store { return l.store }

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// Start migrates the store and initializes plugins.
func (l *Ledger) Start(ctx context.Context) error {
	if err := l.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	l.plugins.EmitInit(ctx, l)

	l.logger.Info("splitledger started",
		"max_attempts", l.maxAttempts,
		"operation_timeout", l.opTimeout,
		"default_currency", l.defaultCurrency,
		"verify_invariants", l.verify,
		"plugins", l.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins, ends every open Watch and closes the store.
func (l *Ledger) Stop() error {
	l.plugins.EmitShutdown(context.Background())
	l.watchers.close()
	return l.store.Close()
}

// Sessions

// CreateInput describes a new session.
type CreateInput struct {
	Title        string
	Currency     string
	CreatorID    session.ParticipantID
	CreatorName  string
	CreatorEmail string
	Items        []session.ItemInput
}

// CreateSession stores a new active session with the creator registered as
// its only participant.
func (l *Ledger) CreateSession(ctx context.Context, in CreateInput) (*session.Session, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	currency := in.Currency
	if strings.TrimSpace(currency) == "" {
		currency = l.defaultCurrency
	}

	s, err := session.New(session.Params{
		Title:        in.Title,
		Currency:     currency,
		CreatorID:    in.CreatorID,
		CreatorName:  in.CreatorName,
		CreatorEmail: in.CreatorEmail,
		Items:        in.Items,
		CreatedAt:    l.clock(),
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if err := l.store.CreateSession(ctx, s); err != nil {
		return nil, l.storeError("create session", s.ID, err)
	}

	l.logger.Info("session created",
		"session_id", s.ID,
		"created_by", s.CreatedBy,
		"items", len(s.Items),
		"total", s.Totals().Total,
	)

	l.watchers.publish(s)
	l.plugins.EmitSessionCreated(ctx, s.Clone())
	return s, nil
}

// CreateSessionFromReceipt extracts items from a receipt image and creates
// a session with them. When ex is nil the first registered receipt
// extractor plugin is used.
func (l *Ledger) CreateSessionFromReceipt(ctx context.Context, in CreateInput, image []byte, ex receipt.Extractor) (*session.Session, error) {
	if exs := l.plugins.Extractors(); ex == nil && len(exs) > 0 {
		ex = exs[0].Extractor()
	}
	if ex == nil {
		return nil, fmt.Errorf("create session from receipt: no extractor: %w", ErrInvalidInput)
	}

	currency := in.Currency
	if strings.TrimSpace(currency) == "" {
		currency = l.defaultCurrency
	}
	items, err := receipt.Extract(ctx, ex, image, strings.ToLower(currency))
	if err != nil {
		return nil, fmt.Errorf("create session from receipt: %w", err)
	}

	in.Currency = currency
	in.Items = append(in.Items, items...)
	return l.CreateSession(ctx, in)
}

// GetSession returns a snapshot of the session.
func (l *Ledger) GetSession(ctx context.Context, sessionID id.SessionID) (*session.Session, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()
	return l.load(ctx, "get session", sessionID)
}

// ListSessions returns the sessions pid created or joined, newest first.
func (l *Ledger) ListSessions(ctx context.Context, pid session.ParticipantID) ([]*session.Session, error) {
	return l.FindSessions(ctx, session.ListOpts{CreatedBy: pid, ParticipantID: pid})
}

// FindSessions lists sessions matching opts.
func (l *Ledger) FindSessions(ctx context.Context, opts session.ListOpts) ([]*session.Session, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	out, err := l.store.ListSessions(ctx, opts)
	if err != nil {
		return nil, l.storeError("list sessions", id.Nil, err)
	}
	return out, nil
}

// Totals returns the derived aggregates of the session.
func (l *Ledger) Totals(ctx context.Context, sessionID id.SessionID) (session.Totals, error) {
	s, err := l.GetSession(ctx, sessionID)
	if err != nil {
		return session.Totals{}, err
	}
	return s.Totals(), nil
}

// Participants

// JoinInput identifies the user joining a session.
type JoinInput struct {
	ParticipantID session.ParticipantID
	Name          string
	Email         string
}

// Join registers a participant. Joining twice is a no-op and reports
// joined=false.
func (l *Ledger) Join(ctx context.Context, sessionID id.SessionID, in JoinInput) (*session.Session, bool, error) {
	if in.ParticipantID == "" {
		return nil, false, ValidationError{Field: "participant_id", Message: "must not be empty"}
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = "Anonymous User"
	}

	var joined bool
	s, err := l.mutate(ctx, "join", sessionID, func(s *session.Session, now time.Time) (*session.Patch, error) {
		p, ok, err := session.Join(s, in.ParticipantID, name, in.Email, now)
		joined = ok
		return p, err
	})
	if err != nil {
		return nil, false, err
	}

	if !joined {
		l.logger.Info("participant already joined", "session_id", sessionID, "participant_id", in.ParticipantID)
		return s, false, nil
	}

	l.logger.Info("participant joined", "session_id", sessionID, "participant_id", in.ParticipantID)
	snap := s.Clone()
	l.plugins.EmitParticipantJoined(ctx, snap, snap.Participants[in.ParticipantID])
	return s, true, nil
}

// Leave removes a participant and releases every item they claimed.
func (l *Ledger) Leave(ctx context.Context, sessionID id.SessionID, pid session.ParticipantID) (*session.Session, error) {
	s, err := l.mutate(ctx, "leave", sessionID, func(s *session.Session, _ time.Time) (*session.Patch, error) {
		return session.Leave(s, pid)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("participant left", "session_id", sessionID, "participant_id", pid)
	l.plugins.EmitParticipantLeft(ctx, s.Clone(), pid)
	return s, nil
}

// End completes an active session. Ending a terminal session is a no-op.
func (l *Ledger) End(ctx context.Context, sessionID id.SessionID) (*session.Session, error) {
	return l.end(ctx, sessionID, session.StatusCompleted)
}

// Cancel cancels an active session. Cancelling a terminal session is a
// no-op.
func (l *Ledger) Cancel(ctx context.Context, sessionID id.SessionID) (*session.Session, error) {
	return l.end(ctx, sessionID, session.StatusCancelled)
}

func (l *Ledger) end(ctx context.Context, sessionID id.SessionID, status session.Status) (*session.Session, error) {
	var changed bool
	s, err := l.mutate(ctx, "end", sessionID, func(s *session.Session, now time.Time) (*session.Patch, error) {
		p, ok, err := session.End(s, status, now)
		changed = ok
		return p, err
	})
	if err != nil {
		return nil, err
	}

	if !changed {
		l.logger.Info("session already ended", "session_id", sessionID, "status", s.Status)
		return s, nil
	}

	l.logger.Info("session ended", "session_id", sessionID, "status", s.Status)
	l.plugins.EmitSessionEnded(ctx, s.Clone())
	return s, nil
}

// Claims

// ClaimItem adds pid to the item's claimants and re-splits its price.
func (l *Ledger) ClaimItem(ctx context.Context, sessionID id.SessionID, itemID id.ItemID, pid session.ParticipantID) (*session.Session, error) {
	s, err := l.mutate(ctx, "claim item", sessionID, func(s *session.Session, _ time.Time) (*session.Patch, error) {
		return session.ClaimItem(s, itemID, pid)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug("item claimed", "session_id", sessionID, "item_id", itemID, "participant_id", pid)
	l.plugins.EmitItemClaimed(ctx, s.Clone(), itemID, pid)
	return s, nil
}

// UnclaimItem removes pid from the item's claimants and re-splits its price
// among the rest.
func (l *Ledger) UnclaimItem(ctx context.Context, sessionID id.SessionID, itemID id.ItemID, pid session.ParticipantID) (*session.Session, error) {
	s, err := l.mutate(ctx, "unclaim item", sessionID, func(s *session.Session, _ time.Time) (*session.Patch, error) {
		return session.UnclaimItem(s, itemID, pid)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug("item unclaimed", "session_id", sessionID, "item_id", itemID, "participant_id", pid)
	l.plugins.EmitItemUnclaimed(ctx, s.Clone(), itemID, pid)
	return s, nil
}

// Payments

// RecordItemPayment applies a payment toward an item, clamped to the
// amount still outstanding.
func (l *Ledger) RecordItemPayment(ctx context.Context, sessionID id.SessionID, itemID id.ItemID, amount types.Money, reference string) (*session.PaymentReceipt, error) {
	var rec *session.PaymentReceipt
	s, err := l.mutate(ctx, "record item payment", sessionID, func(s *session.Session, now time.Time) (*session.Patch, error) {
		p, r, err := session.RecordItemPayment(s, itemID, amount, reference, now)
		rec = r
		return p, err
	})
	if err != nil {
		return nil, err
	}

	attrs := []any{
		"session_id", sessionID,
		"item_id", itemID,
		"requested", rec.Requested,
		"applied", rec.Applied,
		"remaining", rec.Remaining,
	}
	if rec.Clamped() {
		l.logger.Warn("item payment clamped", attrs...)
	} else {
		l.logger.Info("item payment recorded", attrs...)
	}

	l.plugins.EmitItemPaymentRecorded(ctx, s.Clone(), rec)
	return rec, nil
}

// MarkParticipantPaid marks pid as having paid their owed amount.
func (l *Ledger) MarkParticipantPaid(ctx context.Context, sessionID id.SessionID, pid session.ParticipantID) (*session.Session, error) {
	s, err := l.mutate(ctx, "mark participant paid", sessionID, func(s *session.Session, now time.Time) (*session.Patch, error) {
		return session.MarkParticipantPaid(s, pid, now)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("participant paid",
		"session_id", sessionID,
		"participant_id", pid,
		"amount", s.Participants[pid].OwedAmount,
	)
	l.plugins.EmitParticipantPaid(ctx, s.Clone(), pid)
	return s, nil
}

// Settle charges pid's owed amount through proc and marks them paid once
// the charge succeeds. A nil proc falls back to the configured processor,
// then to the first payment processor plugin.
func (l *Ledger) Settle(ctx context.Context, sessionID id.SessionID, pid session.ParticipantID, proc payment.Processor) (*session.Session, error) {
	if proc == nil {
		proc = l.processor
	}
	if proc == nil {
		proc = l.plugins.Processor()
	}
	if proc == nil {
		return nil, fmt.Errorf("settle: no payment processor: %w", ErrInvalidInput)
	}

	s, err := l.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	p, ok := s.Participant(pid)
	switch {
	case !ok:
		return nil, fmt.Errorf("settle %s: %s: %w", sessionID, pid, ErrNotParticipant)
	case s.Status == session.StatusCancelled:
		return nil, fmt.Errorf("settle %s: %w", sessionID, ErrSessionNotActive)
	case p.HasPaid:
		return nil, fmt.Errorf("settle %s: %s: %w", sessionID, pid, ErrAlreadyPaid)
	case !p.OwedAmount.IsPositive():
		return nil, fmt.Errorf("settle %s: %s: %w", sessionID, pid, ErrNothingToPay)
	}

	charge := payment.Charge{
		SessionID:     sessionID,
		ParticipantID: pid,
		Amount:        p.OwedAmount,
		Reference:     payment.Reference(sessionID, pid),
	}
	res, err := proc.Charge(ctx, charge)
	if err == nil && !res.Succeeded {
		err = fmt.Errorf("%w: %s", ErrPaymentDeclined, res.Message)
	}
	if err != nil {
		l.logger.Warn("settlement failed",
			"session_id", sessionID,
			"participant_id", pid,
			"amount", charge.Amount,
			"error", err,
		)
		l.plugins.EmitSettlementFailed(ctx, charge, err)
		return nil, fmt.Errorf("settle %s: %s: %w", sessionID, pid, err)
	}

	l.logger.Info("settlement charged",
		"session_id", sessionID,
		"participant_id", pid,
		"amount", charge.Amount,
		"transaction_id", res.TransactionID,
	)

	s, err = l.MarkParticipantPaid(ctx, sessionID, pid)
	if errors.Is(err, ErrAlreadyPaid) {
		// A concurrent settle won; the charge carried the same reference.
		return l.GetSession(ctx, sessionID)
	}
	return s, err
}

// Consistency

// Verify checks every stored-field invariant of the session.
func (l *Ledger) Verify(ctx context.Context, sessionID id.SessionID) error {
	s, err := l.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := session.Verify(s); err != nil {
		l.integrityFault(ctx, sessionID, "verify", err)
		return err
	}
	return nil
}

// Resync rebuilds every participant's claims and owed amount from the
// items' claim lists and commits whatever changed.
func (l *Ledger) Resync(ctx context.Context, sessionID id.SessionID) (*session.Session, error) {
	var repaired int
	s, err := l.mutate(ctx, "resync", sessionID, func(s *session.Session, _ time.Time) (*session.Patch, error) {
		p := session.Recompute(s)
		repaired = len(p.Items) + len(p.Participants)
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	if repaired > 0 {
		l.logger.Warn("session resynced", "session_id", sessionID, "repaired_fields", repaired)
	}
	return s, nil
}

func (l *Ledger) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.opTimeout > 0 {
		return context.WithTimeout(ctx, l.opTimeout)
	}
	return ctx, func() {}
}
