// Package carousing owns every state transition of the shared carousing session: table and
// tier selection, drops, confirmations, GM modifiers, roll resolution and result bookkeeping.
//
// Each mutator re-checks the caller's identity and then patches only its own sub-key of the
// session document inside one store transaction, so concurrent edits by different players
// never overwrite each other.
package carousing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bloops-games/carousing/internal/carousing/model"
	"github.com/bloops-games/carousing/internal/carousing/tables"
	actorDb "github.com/bloops-games/carousing/internal/database/actor/database"
	actorModel "github.com/bloops-games/carousing/internal/database/actor/model"
	docDb "github.com/bloops-games/carousing/internal/database/document/database"
	docModel "github.com/bloops-games/carousing/internal/database/document/model"
	userModel "github.com/bloops-games/carousing/internal/database/user/model"
	"github.com/bloops-games/carousing/internal/dice"
	"github.com/bloops-games/carousing/internal/i18n"
	"github.com/bloops-games/carousing/internal/identity"
	"github.com/bloops-games/carousing/internal/logging"
	"github.com/bloops-games/carousing/internal/metrics"
	"github.com/bloops-games/carousing/internal/notify"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	SessionKey  = "carousing.session"
	SettingsKey = "carousing.settings"

	swapRetries = 8
)

var (
	ErrForbidden       = fmt.Errorf("operation not allowed for this user")
	ErrUnknownTable    = fmt.Errorf("unknown table")
	ErrNoTable         = fmt.Errorf("no table selected")
	ErrTierOutOfRange  = fmt.Errorf("tier out of range")
	ErrUnknownActor    = fmt.Errorf("unknown actor")
	ErrNoDrop          = fmt.Errorf("player has no drop")
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrNotReady        = fmt.Errorf("session is not ready to roll")
	ErrAlreadyResolved = fmt.Errorf("session has already been rolled")
	ErrStale           = fmt.Errorf("session changed during the operation")
	ErrMissingRow      = fmt.Errorf("no table row matches the roll")
)

// validation errors are reported back to the caller as an advisory toast
var validationReasons = map[error]string{
	ErrUnknownTable:              "unknown_table",
	ErrNoTable:                   "no_table",
	ErrTierOutOfRange:            "tier_out_of_range",
	ErrUnknownActor:              "unknown_actor",
	ErrNoDrop:                    "no_drop",
	ErrInvalidInput:              "invalid_input",
	ErrNotReady:                  "not_ready",
	ErrAlreadyResolved:           "already_resolved",
	ErrStale:                     "stale",
	ErrMissingRow:                "missing_row",
	actorDb.ErrInsufficientFunds: "insufficient_funds",
	actorDb.ErrOutOfRange:        "out_of_range",
}

// IsValidation reports whether err is a rejected but well-formed request.
func IsValidation(err error) bool {
	return reason(err) != ""
}

func reason(err error) string {
	for target, r := range validationReasons {
		if errors.Is(err, target) {
			return r
		}
	}
	return ""
}

type Config struct {
	DefaultMode string `envconfig:"CAROUSING_MODE" default:"custom"`
}

type Store interface {
	Get(ctx context.Context, key string) (docModel.Document, error)
	Update(ctx context.Context, key string, fn docDb.UpdateFn) (docModel.Document, error)
	CompareAndSwap(ctx context.Context, key string, version uint64, data []byte) (docModel.Document, error)
}

type Tables interface {
	Custom(ctx context.Context, id string) (model.Table, error)
	Expanded(ctx context.Context, id string) (model.ExpandedTable, error)
}

type Identity interface {
	User(ctx context.Context, id string) (userModel.User, error)
	Online(ctx context.Context) ([]userModel.User, error)
}

type Actors interface {
	Actor(ctx context.Context, id string) (actorModel.Actor, error)
	AdjustGold(ctx context.Context, id string, delta int) (actorModel.Actor, error)
	EmptyPurse(ctx context.Context, id string) (actorModel.Actor, error)
	AddXP(ctx context.Context, id string, xp int) (actorModel.Actor, error)
}

type Localizer interface {
	Localize(messageID string, data map[string]interface{}) string
}

// Deps are the collaborators of an engine. Notifier, Dice, Metrics and Localizer default to a
// no-op notifier, the fastrand source, a private registry and the English catalog.
type Deps struct {
	Store     Store
	Tables    Tables
	Identity  Identity
	Actors    Actors
	Notifier  notify.Notifier
	Dice      dice.Source
	Metrics   *metrics.Metrics
	Localizer Localizer
}

func New(config *Config, deps Deps) *Engine {
	mode, err := model.ParseMode(config.DefaultMode)
	if err != nil {
		mode = model.ModeCustom
	}

	e := &Engine{
		defaultMode: mode,
		store:       deps.Store,
		tables:      deps.Tables,
		identity:    deps.Identity,
		actors:      deps.Actors,
		notifier:    deps.Notifier,
		dice:        deps.Dice,
		metrics:     deps.Metrics,
		localizer:   deps.Localizer,
		now:         time.Now,
		newID:       uuid.NewString,
	}

	if e.notifier == nil {
		e.notifier = notify.Nop{}
	}
	if e.dice == nil {
		e.dice = dice.FastSource
	}
	if e.metrics == nil {
		e.metrics = metrics.New(prometheus.NewRegistry())
	}
	if e.localizer == nil {
		e.localizer = i18n.MustNew("en")
	}

	return e
}

type Engine struct {
	defaultMode model.Mode

	store     Store
	tables    Tables
	identity  Identity
	actors    Actors
	notifier  notify.Notifier
	dice      dice.Source
	metrics   *metrics.Metrics
	localizer Localizer

	now   func() time.Time
	newID func() string
}

// errUnchanged aborts a mutation without writing and without reporting an error.
var errUnchanged = errors.New("unchanged")

func (e *Engine) mutate(ctx context.Context, op string, fn func(s *model.Session) error) (model.Session, error) {
	var (
		out     model.Session
		changed bool
	)

	if _, err := e.store.Update(ctx, SessionKey, func(current []byte) ([]byte, error) {
		s := decodeSession(ctx, current)
		changed = false

		if err := fn(&s); err != nil {
			if errors.Is(err, errUnchanged) {
				out = s
				return nil, nil
			}
			return nil, err
		}

		out, changed = s, true
		return json.Marshal(s)
	}); err != nil {
		return out, err
	}

	if changed {
		e.metrics.Mutations.WithLabelValues(op).Inc()
	}

	return out, nil
}

// Session returns the persisted session, an empty collecting session when none exists.
func (e *Engine) Session(ctx context.Context) (model.Session, error) {
	doc, err := e.store.Get(ctx, SessionKey)
	if err != nil {
		return model.Session{}, fmt.Errorf("get session: %w", err)
	}

	return decodeSession(ctx, doc.Data), nil
}

func decodeSession(ctx context.Context, data []byte) model.Session {
	s := model.NewSession()
	if len(data) == 0 {
		return s
	}

	if err := json.Unmarshal(data, &s); err != nil {
		logging.FromContext(ctx).Named("carousing.decodeSession").Warnf("discarding malformed session: %v", err)
		s = model.NewSession()
	}
	s.Normalize()

	return s
}

// requireUser resolves the caller; unknown callers get identity.ErrUnknownUser.
func (e *Engine) requireUser(ctx context.Context, callerID string) (userModel.User, error) {
	u, err := e.identity.User(ctx, callerID)
	if err != nil {
		return u, fmt.Errorf("resolve caller: %w", err)
	}
	return u, nil
}

func (e *Engine) requireGM(ctx context.Context, callerID string) (userModel.User, error) {
	u, err := e.requireUser(ctx, callerID)
	if err != nil {
		return u, err
	}
	if !u.GM {
		return u, ErrForbidden
	}
	return u, nil
}

// RequireGM is the gate used by table editing, which lives outside the session document.
func (e *Engine) RequireGM(ctx context.Context, callerID string) error {
	_, err := e.requireGM(ctx, callerID)
	return e.reject(ctx, "requireGM", callerID, err)
}

// reject classifies err: authorization failures are logged quietly, validation failures are
// also told to the caller as a toast. It returns err unchanged.
func (e *Engine) reject(ctx context.Context, op, callerID string, err error) error {
	if err == nil {
		return nil
	}

	logger := logging.FromContext(ctx).Named("carousing." + op)

	switch {
	case errors.Is(err, ErrForbidden):
		logger.Debugf("rejected %s for %s", op, callerID)
		e.metrics.Rejections.WithLabelValues(op, "forbidden").Inc()
	case errors.Is(err, identity.ErrUnknownUser):
		logger.Debugf("unknown caller %s", callerID)
		e.metrics.Rejections.WithLabelValues(op, "unknown_caller").Inc()
	case IsValidation(err):
		logger.Infof("rejected %s for %s: %v", op, callerID, err)
		e.metrics.Rejections.WithLabelValues(op, reason(err)).Inc()
		e.toast(ctx, callerID, notify.LevelWarning, "carousing.rejected", map[string]interface{}{
			"Reason": err.Error(),
		})
	default:
		logger.Errorf("%s failed: %v", op, err)
	}

	return err
}

func (e *Engine) toast(ctx context.Context, recipient string, level notify.Level, messageID string, data map[string]interface{}) {
	t := notify.Toast{
		ID:        e.newID(),
		Recipient: recipient,
		Level:     level,
		Text:      e.localizer.Localize(messageID, data),
		Timestamp: e.now(),
	}

	if err := e.notifier.Notify(ctx, t); err != nil {
		logging.FromContext(ctx).Named("carousing.toast").Warnf("toast not delivered: %v", err)
	}
}

type settings struct {
	Mode model.Mode `json:"mode"`
}

// Mode is the table system in play, the configured default until the GM picks one.
func (e *Engine) Mode(ctx context.Context) (model.Mode, error) {
	doc, err := e.store.Get(ctx, SettingsKey)
	if err != nil {
		return "", fmt.Errorf("get settings: %w", err)
	}

	return e.decodeMode(ctx, doc.Data), nil
}

func (e *Engine) decodeMode(ctx context.Context, data []byte) model.Mode {
	var s settings
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s); err != nil {
			logging.FromContext(ctx).Named("carousing.Mode").Warnf("malformed settings: %v", err)
		}
	}

	if _, err := model.ParseMode(string(s.Mode)); err != nil {
		return e.defaultMode
	}

	return s.Mode
}

// swapMode writes mode with a compare-and-swap on the settings version and retries when
// another client wrote the settings in between. It reports whether the stored mode changed.
func (e *Engine) swapMode(ctx context.Context, mode model.Mode) (bool, error) {
	data, err := json.Marshal(settings{Mode: mode})
	if err != nil {
		return false, fmt.Errorf("marshal settings: %w", err)
	}

	for attempt := 0; attempt < swapRetries; attempt++ {
		doc, err := e.store.Get(ctx, SettingsKey)
		if err != nil {
			return false, fmt.Errorf("get settings: %w", err)
		}
		if e.decodeMode(ctx, doc.Data) == mode {
			return false, nil
		}

		if _, err := e.store.CompareAndSwap(ctx, SettingsKey, doc.Version, data); err != nil {
			if errors.Is(err, docDb.ErrVersionMismatch) {
				continue
			}
			return false, fmt.Errorf("swap settings: %w", err)
		}

		return true, nil
	}

	return false, fmt.Errorf("swap settings: %w", ErrStale)
}

// SetMode switches the table system. The table and tier selection belong to the old system and
// are cleared.
func (e *Engine) SetMode(ctx context.Context, callerID string, mode model.Mode) error {
	const op = "setMode"

	if _, err := e.requireGM(ctx, callerID); err != nil {
		return e.reject(ctx, op, callerID, err)
	}
	if _, err := model.ParseMode(string(mode)); err != nil {
		return e.reject(ctx, op, callerID, fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}

	changed, err := e.swapMode(ctx, mode)
	if err != nil {
		return e.reject(ctx, op, callerID, err)
	}
	if !changed {
		return nil
	}

	_, err = e.mutate(ctx, op, func(s *model.Session) error {
		if s.SelectedTableID == "" && s.SelectedTier == nil {
			return errUnchanged
		}
		s.SelectedTableID = ""
		s.SelectedTier = nil
		return nil
	})

	return e.reject(ctx, op, callerID, err)
}

// activeTable is the selected table of either system.
type activeTable struct {
	mode     model.Mode
	id       string
	name     string
	die      string
	tiers    []model.Tier
	custom   model.Table
	expanded model.ExpandedTable
}

func (e *Engine) table(ctx context.Context, mode model.Mode, id string) (activeTable, error) {
	t := activeTable{mode: mode, id: id}
	if id == "" {
		return t, ErrNoTable
	}

	switch mode {
	case model.ModeExpanded:
		x, err := e.tables.Expanded(ctx, id)
		if err != nil {
			return t, tableErr(err)
		}
		t.name, t.die, t.tiers, t.expanded = x.Name, x.Die, x.Tiers, x
	default:
		c, err := e.tables.Custom(ctx, id)
		if err != nil {
			return t, tableErr(err)
		}
		t.name, t.die, t.tiers, t.custom = c.Name, c.Die, c.Tiers, c
	}

	if t.die == "" {
		t.die = model.DefaultDie
	}

	return t, nil
}

func tableErr(err error) error {
	if errors.Is(err, tables.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrUnknownTable, err)
	}
	return fmt.Errorf("load table: %w", err)
}
