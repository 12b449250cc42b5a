// Package interval answers availability questions over a set of
// reservations. It holds no state; callers decide which snapshot of the
// ledger to evaluate it against.
package interval

import (
	reservationserrors "slotkeeper/internal/reservations/errors"
	"slotkeeper/internal/reservations/pool"
	"slotkeeper/pkg/model"
	"time"
)

type Index struct {
	Pool       pool.Pool
	PendingTTL time.Duration
}

func New(p pool.Pool, pendingTTL time.Duration) Index {
	return Index{Pool: p, PendingTTL: pendingTTL}
}

// Stale reports a PENDING reservation whose hold has lapsed.
func (ix Index) Stale(r *model.Reservation, now time.Time) bool {
	return r.State == model.ReservationPending && !now.Before(r.CreatedAt.Add(ix.PendingTTL))
}

// StaleBefore is the creation cutoff: PENDING rows created at or before it are stale.
func (ix Index) StaleBefore(now time.Time) time.Time {
	return now.Add(-ix.PendingTTL)
}

func (ix Index) Blocks(r *model.Reservation, now time.Time) bool {
	switch r.State {
	case model.ReservationConfirmed:
		return true
	case model.ReservationPending:
		return !ix.Stale(r, now)
	default:
		return false
	}
}

// Conflicts returns the reservations on unit that block window.
func (ix Index) Conflicts(unit int, window model.TimeWindow, reservations []*model.Reservation, now time.Time) []*model.Reservation {
	var out []*model.Reservation
	for _, r := range reservations {
		if r.Unit == unit && ix.Blocks(r, now) && r.TimeWindow.Overlaps(window) {
			out = append(out, r)
		}
	}
	return out
}

// Lapsed returns the stale PENDING reservations on unit that overlap window.
// Ledgers expire them when the slot is taken over.
func (ix Index) Lapsed(unit int, window model.TimeWindow, reservations []*model.Reservation, now time.Time) []*model.Reservation {
	var out []*model.Reservation
	for _, r := range reservations {
		if r.Unit == unit && ix.Stale(r, now) && r.TimeWindow.Overlaps(window) {
			out = append(out, r)
		}
	}
	return out
}

func (ix Index) IsUnitAvailable(unit int, window model.TimeWindow, reservations []*model.Reservation, now time.Time) (bool, error) {
	if !window.Valid() {
		return false, reservationserrors.ErrInvalidWindow
	}
	if !ix.Pool.IsValid(unit) {
		return false, reservationserrors.ErrInvalidUnit
	}
	return len(ix.Conflicts(unit, window, reservations, now)) == 0, nil
}

// AvailableUnits lists free units in ascending order.
func (ix Index) AvailableUnits(window model.TimeWindow, reservations []*model.Reservation, now time.Time) ([]int, error) {
	if !window.Valid() {
		return nil, reservationserrors.ErrInvalidWindow
	}

	taken := make(map[int]bool)
	for _, r := range reservations {
		if ix.Blocks(r, now) && r.TimeWindow.Overlaps(window) {
			taken[r.Unit] = true
		}
	}

	free := make([]int, 0, ix.Pool.Size())
	for _, unit := range ix.Pool.AllUnits() {
		if !taken[unit] {
			free = append(free, unit)
		}
	}
	return free, nil
}
