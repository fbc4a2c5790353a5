// ABOUTME: Intent router: turns one user message into exactly one reply
// ABOUTME: Retrieves context, classifies under a timeout, and dispatches to the ledger

package router

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/2389/teller/internal/classifier"
	"github.com/2389/teller/internal/ledger"
	"github.com/2389/teller/internal/session"
)

// DefaultClassifyTimeout bounds a classifier call when no timeout is configured.
const DefaultClassifyTimeout = 30 * time.Second

// Ledger is the subset of the ledger the router drives.
type Ledger interface {
	Register(ctx context.Context, name string, initialBalance int64) (ledger.Account, error)
	Get(ctx context.Context, name string) (ledger.Account, error)
	Deposit(ctx context.Context, name string, amount int64) (ledger.Account, error)
	Withdraw(ctx context.Context, name string, amount int64) (ledger.Account, error)
	Transfer(ctx context.Context, fromName string, amount int64, toIBAN string) (ledger.TransferResult, error)
}

// ContextSource supplies grounding text for a message. It never fails;
// an empty string means no context.
type ContextSource interface {
	Context(ctx context.Context, query string) string
}

// Router handles messages for any number of sessions. It holds no
// per-session state, so one Router serves every connection.
type Router struct {
	ledger     Ledger
	classifier classifier.Classifier
	source     ContextSource
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithClassifyTimeout bounds each classifier call.
func WithClassifyTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// New creates a Router. src may be nil, in which case the classifier gets no context.
func New(l Ledger, c classifier.Classifier, src ContextSource, opts ...Option) *Router {
	r := &Router{
		ledger:     l,
		classifier: c,
		source:     src,
		timeout:    DefaultClassifyTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "router")
	return r
}

// HandleMessage records text in the session, produces a reply, records the
// reply, and returns it. It always returns a non-empty reply.
func (r *Router) HandleMessage(ctx context.Context, sess *session.Session, text string) string {
	sess.Append(session.RoleUser, text)

	var grounding string
	if r.source != nil {
		grounding = r.source.Context(ctx, text)
	}

	reply := r.classifyAndDispatch(ctx, sess, grounding)
	sess.Append(session.RoleAssistant, reply)
	return reply
}

func (r *Router) classifyAndDispatch(ctx context.Context, sess *session.Session, grounding string) string {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	intent, err := r.classifier.Classify(cctx, sess.History(), grounding)
	if err != nil {
		r.logger.Warn("classification failed, sending fallback",
			"session", sess.ID,
			"error", err,
		)
		return FallbackReply
	}
	return r.Dispatch(ctx, sess, intent)
}

// Dispatch executes intent against the ledger for sess and renders the outcome.
// It may bind or demote the session identity.
func (r *Router) Dispatch(ctx context.Context, sess *session.Session, intent *classifier.Intent) string {
	if intent == nil {
		return FallbackReply
	}
	if intent.Kind == classifier.KindInquiry {
		if intent.Response == "" {
			return FallbackReply
		}
		return intent.Response
	}
	if intent.Kind != classifier.KindOperation {
		return FallbackReply
	}

	op := intent.Operation
	logger := r.logger.With("session", sess.ID, "action", op.Action)
	identity, identified := sess.Identity()

	switch op.Action {
	case classifier.ActionRegister:
		return r.register(ctx, sess, op, logger)

	case classifier.ActionBalance, classifier.ActionIBAN:
		if !identified {
			return ReplyRegisterFirst
		}
		acct, err := r.ledger.Get(ctx, identity)
		if err != nil {
			return r.failure(sess, err, logger)
		}
		if op.Action == classifier.ActionIBAN {
			return replyIBAN(acct)
		}
		return replyBalance(acct)

	case classifier.ActionDeposit, classifier.ActionWithdraw:
		if !identified || (op.Amount == nil && op.RawAmount == "") {
			return ReplyNeedAmount
		}
		if op.Amount == nil {
			return ledgerErrorText(ledger.ErrInvalidAmount)
		}
		var (
			acct ledger.Account
			err  error
		)
		if op.Action == classifier.ActionDeposit {
			acct, err = r.ledger.Deposit(ctx, identity, *op.Amount)
		} else {
			acct, err = r.ledger.Withdraw(ctx, identity, *op.Amount)
		}
		if err != nil {
			return r.failure(sess, err, logger)
		}
		if op.Action == classifier.ActionDeposit {
			return replyDeposited(*op.Amount, acct)
		}
		return replyWithdrew(*op.Amount, acct)

	case classifier.ActionTransfer:
		if !identified || (op.Amount == nil && op.RawAmount == "") || op.IBAN == nil {
			return ReplyNeedAmountAndIBAN
		}
		if op.Amount == nil {
			return ledgerErrorText(ledger.ErrInvalidAmount)
		}
		res, err := r.ledger.Transfer(ctx, identity, *op.Amount, *op.IBAN)
		if err != nil {
			return r.failure(sess, err, logger)
		}
		return replyTransferred(res)

	default:
		logger.Info("unrecognized action")
		return FallbackReply
	}
}

// register creates an account and binds it to the session. Registering
// again in the same session rebinds to the new account.
func (r *Router) register(ctx context.Context, sess *session.Session, op classifier.Operation, logger *slog.Logger) string {
	if op.UserName == nil {
		return ReplyNeedName
	}
	if op.Amount == nil && op.RawAmount != "" {
		return "Failed to register user: " + ledgerErrorText(ledger.ErrInvalidAmount)
	}

	var initial int64
	if op.Amount != nil {
		initial = *op.Amount
	}

	acct, err := r.ledger.Register(ctx, *op.UserName, initial)
	if err != nil {
		if text := ledgerErrorText(err); text != "" {
			return "Failed to register user: " + text
		}
		logger.Error("registration failed", "error", err)
		return RetryReply
	}

	sess.Bind(acct.Name)
	logger.Info("session identified", "name", acct.Name)
	return replyRegistered(acct)
}

// failure renders a ledger error. A bound identity that no longer resolves
// demotes the session so the user is asked to register again.
func (r *Router) failure(sess *session.Session, err error, logger *slog.Logger) string {
	if errors.Is(err, ledger.ErrNotFound) {
		sess.Demote()
		logger.Warn("bound account missing, session demoted")
	}
	if text := ledgerErrorText(err); text != "" {
		return text
	}
	logger.Error("ledger operation failed", "error", err)
	return RetryReply
}
