// Package attendance records at most one attendance entry per student, class,
// subject and calendar day.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DayLayout is the calendar-day format used in keys and storage.
const DayLayout = "2006-01-02"

// ErrInvalidKey is returned for keys with an empty component or a malformed day.
var ErrInvalidKey = errors.New("invalid attendance key")

// Key identifies one attendance slot. ClassCode and Subject are stored normalised.
type Key struct {
	Identity  string `json:"identity"`
	ClassCode string `json:"class_code"`
	Subject   string `json:"subject"`
	Day       string `json:"day"`
}

// Validate checks that every component is present and Day parses.
func (k Key) Validate() error {
	if k.Identity == "" || k.ClassCode == "" || k.Subject == "" {
		return ErrInvalidKey
	}
	if _, err := time.Parse(DayLayout, k.Day); err != nil {
		return fmt.Errorf("%w: day %q: %w", ErrInvalidKey, k.Day, err)
	}
	return nil
}

// Record is a written attendance entry. Records are never updated or deleted.
type Record struct {
	ID         int64     `json:"id"`
	Key        Key       `json:"key"`
	Time       time.Time `json:"time"`
	Confidence int       `json:"confidence"`
}

// Status is the outcome of a record attempt.
type Status int

const (
	// Written means a new record was stored.
	Written Status = iota + 1
	// Duplicate means a record for the key already existed; nothing was stored.
	Duplicate
)

func (s Status) String() string {
	switch s {
	case Written:
		return "written"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Outcome is returned by Ledger.RecordIfAbsent. Record is complete only when
// Status is Written; for Duplicate only Record.Key is set.
type Outcome struct {
	Status Status
	Record Record
}

// Store persists records with an atomic per-key check-then-write.
type Store interface {
	// InsertIfAbsent stores rec unless a record with the same key exists.
	// It returns the stored record and true, or a zero record and false.
	InsertIfAbsent(ctx context.Context, rec Record) (Record, bool, error)
	// ListByIdentity returns all records of an identity, newest first.
	ListByIdentity(ctx context.Context, identity string) ([]Record, error)
}
