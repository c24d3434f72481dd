// Package engine drives the per-user registration dialog. Each inbound
// message advances a finite-state conversation, issues at most one reply, and
// runs its side effects exactly once; turns from the same sender are fully
// serialized.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/learnsl/enrollbot/internal/directory"
	"github.com/learnsl/enrollbot/internal/lms"
	"github.com/learnsl/enrollbot/internal/logger"
	"github.com/learnsl/enrollbot/internal/messenger"
	"github.com/learnsl/enrollbot/internal/observability"
	"github.com/learnsl/enrollbot/internal/session"
	"github.com/learnsl/enrollbot/internal/store"
	"log/slog"
)

// CourseCatalog resolves enrollment codes to course rows.
type CourseCatalog interface {
	CourseByCode(ctx context.Context, code string) (*store.EnrollmentRecord, error)
}

// GroupDirectory resolves enrollment codes to group invites.
type GroupDirectory interface {
	GroupByCode(ctx context.Context, code string) (*directory.GroupRecord, error)
}

// LMS is the enrollment service collaborator.
type LMS interface {
	UserByUsername(ctx context.Context, username string) (*lms.User, error)
	CreateUser(ctx context.Context, nu lms.NewUser) (int, error)
	Enrol(ctx context.Context, userID, courseID int) error
}

// ConversationLog persists finished transcripts.
type ConversationLog interface {
	SaveConversation(ctx context.Context, waID string, entries []store.ConversationEntry) error
}

// Outbound accepts messages for asynchronous delivery.
type Outbound interface {
	Enqueue(ctx context.Context, msg messenger.Message) error
}

// FollowUp schedules a message for delayed delivery.
type FollowUp interface {
	After(ctx context.Context, delay time.Duration, msg messenger.Message)
}

// Options configures the conversation engine.
type Options struct {
	// SupportContact is interpolated into help and failure messages.
	SupportContact string
	// FollowUpDelay, FollowUpBody and FollowUpMediaURL describe the
	// promotional reminder sent after a successful registration. A zero
	// delay or empty body disables it.
	FollowUpDelay    time.Duration
	FollowUpBody     string
	FollowUpMediaURL string
}

// Engine owns the session store and coordinates a turn end to end.
type Engine struct {
	sessions session.Store
	locks    *session.KeyedMutex

	catalog  CourseCatalog
	groups   GroupDirectory
	lms      LMS
	log      ConversationLog
	outbound Outbound
	followUp FollowUp
	metrics  *observability.Metrics

	opts Options
}

// New wires an Engine from its collaborators.
func New(catalog CourseCatalog, groups GroupDirectory, lmsClient LMS, log ConversationLog,
	outbound Outbound, followUp FollowUp, metrics *observability.Metrics, opts Options) *Engine {
	return &Engine{
		sessions: session.NewMemoryStore(),
		locks:    session.NewKeyedMutex(),
		catalog:  catalog,
		groups:   groups,
		lms:      lmsClient,
		log:      log,
		outbound: outbound,
		followUp: followUp,
		metrics:  metrics,
		opts:     opts,
	}
}

// HasSession reports whether an unfinished dialog exists for the sender.
func (e *Engine) HasSession(waID string) bool {
	return e.sessions.Has(waID)
}

// Handle processes one inbound message. The per-user lock covers the whole
// read-decide-act-persist sequence; a second message from the same sender
// blocks until this one completes.
func (e *Engine) Handle(ctx context.Context, from, body string) error {
	unlock := e.locks.Lock(from)
	defer unlock()

	sess := e.sessions.Get(from)
	ctx = logger.WithWAID(ctx, from)
	ctx = logger.WithStep(ctx, string(sess.Step))

	if e.metrics != nil {
		e.metrics.Turns.WithLabelValues(string(sess.Step)).Inc()
	}

	input := strings.TrimSpace(body)
	sess.Append(session.DirectionIn, input)

	facts, err := e.gatherFacts(ctx, sess, input, from)
	if err != nil {
		// Without a derivable username the turn cannot proceed at all.
		e.sessions.Delete(from)
		e.updateSessionGauge()
		return err
	}

	out := transition(sess, input, facts, e.opts.SupportContact)
	reply := e.runEffects(ctx, from, sess, out)

	if reply != "" {
		sess.Append(session.DirectionOut, reply)
		if err := e.outbound.Enqueue(ctx, messenger.Message{To: from, Body: reply, MediaURLs: out.media}); err != nil {
			logger.ENG.LogAttrs(ctx, slog.LevelError, "reply enqueue failed",
				slog.String("event", "turn.reply"),
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}

	logger.ENG.LogAttrs(ctx, slog.LevelDebug, "turn complete",
		slog.String("event", "turn.done"),
		slog.String("status", "ok"),
		slog.String("next_step", string(out.next)),
	)

	e.finishTurn(ctx, from, sess, out)
	return nil
}

// gatherFacts performs the collaborator lookups the current step depends on.
func (e *Engine) gatherFacts(ctx context.Context, sess *session.Session, input, from string) (Facts, error) {
	switch sess.Step {
	case session.StepGreeting:
		code := normalizeCode(input)
		if !codePattern.MatchString(code) {
			return Facts{}, nil
		}
		username, err := DeriveUsername(from)
		if err != nil {
			return Facts{}, err
		}
		return e.greetingFacts(ctx, code, username)

	case session.StepGetLastName:
		username, err := DeriveUsername(from)
		if err != nil {
			return Facts{}, err
		}
		return Facts{Username: username}, nil

	case session.StepConfirmDetails:
		if strings.TrimSpace(input) != "1" {
			return Facts{}, nil
		}
		user, err := e.lms.UserByUsername(ctx, sess.Username)
		if err != nil {
			// Absent or degraded; either way registration proceeds and
			// the LMS rejects a true duplicate.
			return Facts{}, nil
		}
		return Facts{UserExists: true, UserID: user.ID}, nil

	default:
		return Facts{}, nil
	}
}

// greetingFacts runs the three greeting lookups concurrently: course catalog,
// group directory and LMS existence. Both catalogs are always consulted.
func (e *Engine) greetingFacts(ctx context.Context, code, username string) (Facts, error) {
	facts := Facts{Username: username}

	g, gctx := errgroup.WithContext(ctx)

	var catalogErr error
	g.Go(func() error {
		rec, err := e.catalog.CourseByCode(gctx, code)
		switch {
		case err == nil:
			facts.Course = rec
		case errors.Is(err, store.ErrNotFound):
		default:
			catalogErr = err
		}
		return nil
	})
	g.Go(func() error {
		rec, err := e.groups.GroupByCode(gctx, code)
		if err == nil {
			facts.Group = rec
		}
		return nil
	})
	g.Go(func() error {
		user, err := e.lms.UserByUsername(gctx, username)
		if err == nil {
			facts.UserExists = true
			facts.UserID = user.ID
		}
		return nil
	})
	_ = g.Wait()

	if catalogErr != nil {
		logger.ENG.LogAttrs(ctx, slog.LevelError, "course catalog unavailable",
			slog.String("event", "turn.lookup"),
			slog.String("status", "fail"),
			slog.String("code", code),
			slog.String("err", catalogErr.Error()),
		)
		facts.LookupFailed = true
	}
	return facts, nil
}

// runEffects executes the outcome's remote actions and returns the reply to
// send, degrading to the outcome's failure reply when a collaborator fails.
func (e *Engine) runEffects(ctx context.Context, from string, sess *session.Session, out outcome) string {
	switch out.action {
	case actionEnrolExisting:
		if err := e.enrol(ctx, out.userID, out.courseIDs); err != nil {
			return out.failReply
		}
		return out.reply

	case actionRegister:
		userID, err := e.lms.CreateUser(ctx, lms.NewUser{
			Username:  sess.Username,
			Password:  sess.Password,
			FirstName: sess.FirstName,
			LastName:  sess.LastName,
			Mobile:    sess.Username,
			Class:     sess.CourseName,
			Grade:     sess.Grade,
		})
		if err != nil {
			logger.ENG.LogAttrs(ctx, slog.LevelError, "registration failed",
				slog.String("event", "turn.register"),
				slog.String("status", "fail"),
				slog.String("username", sess.Username),
				slog.String("err", err.Error()),
			)
			return withContact(msgRegisterFailed, e.opts.SupportContact)
		}
		if e.metrics != nil {
			e.metrics.Registrations.Inc()
		}
		if err := e.enrol(ctx, userID, out.courseIDs); err != nil {
			return out.failReply
		}
		if out.followUp {
			e.scheduleFollowUp(ctx, from)
		}
		return out.reply

	default:
		return out.reply
	}
}

// enrol issues one enrol call per course id; a composite id has already been
// split by the transition.
func (e *Engine) enrol(ctx context.Context, userID int, courseIDs []int) error {
	var firstErr error
	for _, courseID := range courseIDs {
		err := e.lms.Enrol(ctx, userID, courseID)
		if e.metrics != nil {
			result := "ok"
			if err != nil {
				result = "fail"
			}
			e.metrics.Enrolments.WithLabelValues(result).Inc()
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Engine) scheduleFollowUp(ctx context.Context, to string) {
	if e.followUp == nil || e.opts.FollowUpDelay <= 0 || e.opts.FollowUpBody == "" {
		return
	}
	msg := messenger.Message{To: to, Body: e.opts.FollowUpBody}
	if e.opts.FollowUpMediaURL != "" {
		msg.MediaURLs = []string{e.opts.FollowUpMediaURL}
	}
	e.followUp.After(ctx, e.opts.FollowUpDelay, msg)
}

// finishTurn persists and discards the session on terminal turns, or stores
// the advanced session otherwise.
func (e *Engine) finishTurn(ctx context.Context, from string, sess *session.Session, out outcome) {
	if !out.terminal() {
		sess.Step = out.next
		e.sessions.Put(from, sess)
		e.updateSessionGauge()
		return
	}

	entries := make([]store.ConversationEntry, 0, len(sess.Transcript))
	for _, line := range sess.Transcript {
		entries = append(entries, store.ConversationEntry{
			WAID:      from,
			Direction: string(line.Direction),
			Body:      line.Body,
		})
	}
	if err := e.log.SaveConversation(ctx, from, entries); err != nil {
		// The reply is already on its way; losing the transcript must not
		// fail the turn.
		logger.ENG.LogAttrs(ctx, slog.LevelWarn, "transcript not persisted",
			slog.String("event", "turn.flush"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
	e.sessions.Delete(from)
	e.updateSessionGauge()
}

func (e *Engine) updateSessionGauge() {
	if e.metrics != nil {
		e.metrics.ActiveSessions.Set(float64(e.sessions.Len()))
	}
}
