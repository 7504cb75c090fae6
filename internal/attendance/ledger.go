package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// Options configures a Ledger.
type Options struct {
	Location *time.Location // school time zone that defines the calendar day
	Timeout  time.Duration  // bound on each storage call
	Now      func() time.Time
	Logger   *slog.Logger
}

// Ledger decides whether an attendance record is written for a key.
type Ledger struct {
	store   Store
	loc     *time.Location
	timeout time.Duration
	now     func() time.Time
	log     *slog.Logger
}

// NewLedger creates a Ledger on top of store.
func NewLedger(store Store, opts Options) *Ledger {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Timeout <= 0 {
		opts.Timeout = constants.DefaultStorageTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Ledger{
		store:   store,
		loc:     opts.Location,
		timeout: opts.Timeout,
		now:     opts.Now,
		log:     opts.Logger.With("component", "attendance"),
	}
}

// Key builds a normalised key for today in the ledger's time zone.
func (l *Ledger) Key(identity, classCode, subject string) (Key, error) {
	k := Key{
		Identity:  NormalizeIdentity(identity),
		ClassCode: NormalizeLabel(classCode),
		Subject:   NormalizeLabel(subject),
		Day:       l.now().In(l.loc).Format(DayLayout),
	}
	if err := k.Validate(); err != nil {
		return Key{}, err
	}
	return k, nil
}

// RecordIfAbsent writes a record for key unless one already exists.
// A duplicate is a normal outcome, not an error.
func (l *Ledger) RecordIfAbsent(ctx context.Context, key Key, confidence int) (Outcome, error) {
	if err := key.Validate(); err != nil {
		return Outcome{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	rec, inserted, err := l.store.InsertIfAbsent(ctx, Record{
		Key:        key,
		Time:       l.now(),
		Confidence: confidence,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("record attendance for %s: %w", key.Identity, err)
	}
	if !inserted {
		l.log.Debug("attendance already recorded", "identity", key.Identity,
			"class_code", key.ClassCode, "subject", key.Subject, "day", key.Day)
		return Outcome{Status: Duplicate, Record: Record{Key: key}}, nil
	}

	l.log.Info("attendance recorded", "identity", key.Identity, "class_code", key.ClassCode,
		"subject", key.Subject, "day", key.Day, "confidence", confidence, "id", rec.ID)
	return Outcome{Status: Written, Record: rec}, nil
}

// History returns the records of one identity, newest first.
func (l *Ledger) History(ctx context.Context, identity string) ([]Record, error) {
	identity = NormalizeIdentity(identity)
	if identity == "" {
		return nil, ErrInvalidKey
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	records, err := l.store.ListByIdentity(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("list attendance for %s: %w", identity, err)
	}
	return records, nil
}
