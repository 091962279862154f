package numbering

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"fakturin/backend/internal/store"
)

const (
	Prefix        = "INV-"
	DateKeyLayout = "20060102"
)

type Allocation struct {
	Number   string
	Sequence int64
	DateKey  string
	// IssueDate is the business-local calendar date of the allocation,
	// expressed as midnight UTC.
	IssueDate time.Time
	At        time.Time
}

type Allocator struct {
	counters store.CounterStore
	series   string
	zone     *time.Location
	now      func() time.Time
}

func New(counters store.CounterStore, series string, utcOffset time.Duration) *Allocator {
	if series == "" {
		series = "invoice"
	}
	return &Allocator{
		counters: counters,
		series:   series,
		zone:     Zone(utcOffset),
		now:      time.Now,
	}
}

// WithClock replaces the time source. Used by tests that cross midnight.
func (a *Allocator) WithClock(now func() time.Time) *Allocator {
	a.now = now
	return a
}

func (a *Allocator) Series() string {
	return a.series
}

func (a *Allocator) Zone() *time.Location {
	return a.zone
}

// Preview shows the number the next allocation would receive. The number is
// not reserved: a concurrent submission may claim it first.
func (a *Allocator) Preview(ctx context.Context) (string, error) {
	key := DateKey(a.now(), a.zone)
	next, err := a.counters.PeekNextSequence(ctx, a.series, key)
	if err != nil {
		return "", err
	}
	return FormatNumber(next), nil
}

// Allocate reserves the authoritative number. The date key and the issue
// date come from a single clock reading taken here, never from a preview.
func (a *Allocator) Allocate(ctx context.Context) (Allocation, error) {
	at := a.now()
	key := DateKey(at, a.zone)
	seq, err := a.counters.AllocateSequence(ctx, a.series, key)
	if err != nil {
		return Allocation{}, err
	}
	if seq < 1 {
		return Allocation{}, fmt.Errorf("counter %s/%s returned sequence %d", a.series, key, seq)
	}
	return Allocation{
		Number:    FormatNumber(seq),
		Sequence:  seq,
		DateKey:   key,
		IssueDate: LocalDate(at, a.zone),
		At:        at.UTC(),
	}, nil
}

func FormatNumber(seq int64) string {
	return Prefix + strconv.FormatInt(seq, 10)
}

func DateKey(t time.Time, zone *time.Location) string {
	return t.In(zone).Format(DateKeyLayout)
}

// LocalDate returns the calendar date of t in zone as midnight UTC.
func LocalDate(t time.Time, zone *time.Location) time.Time {
	local := t.In(zone)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func Zone(utcOffset time.Duration) *time.Location {
	seconds := int(utcOffset / time.Second)
	if seconds == 0 {
		return time.UTC
	}
	sign := "+"
	abs := seconds
	if seconds < 0 {
		sign = "-"
		abs = -seconds
	}
	return time.FixedZone(fmt.Sprintf("UTC%s%02d:%02d", sign, abs/3600, (abs%3600)/60), seconds)
}
