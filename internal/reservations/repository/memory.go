package repository

import (
	"context"
	"fmt"
	reservationserrors "slotkeeper/internal/reservations/errors"
	"slotkeeper/pkg/auth"
	"slotkeeper/pkg/model"
	"sort"
	"sync"
	"time"
)

// MemoryLedger keeps everything in process. Lock order is unit lock, then mu.
type MemoryLedger struct {
	opts Options

	unitLocks []sync.Mutex

	mu              sync.RWMutex
	reservations    map[string]*model.Reservation
	transactions    map[string]*model.Transaction
	txByReservation map[string]string
}

func NewMemoryLedger(opts Options) *MemoryLedger {
	opts = opts.withDefaults()
	return &MemoryLedger{
		opts:            opts,
		unitLocks:       make([]sync.Mutex, opts.Index.Pool.Size()+1),
		reservations:    make(map[string]*model.Reservation),
		transactions:    make(map[string]*model.Transaction),
		txByReservation: make(map[string]string),
	}
}

func (l *MemoryLedger) CreatePendingReservation(ctx context.Context, unit int, window model.TimeWindow, ownerID string) (*model.Reservation, error) {
	// unitLocks is sized by the pool.
	if !l.opts.Index.Pool.IsValid(unit) {
		return nil, reservationserrors.ErrInvalidUnit
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.unitLocks[unit].Lock()
	defer l.unitLocks[unit].Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.opts.now()
	var onUnit []*model.Reservation
	for _, r := range l.reservations {
		if r.Unit == unit && r.State.Active() {
			onUnit = append(onUnit, r)
		}
	}
	available, err := l.opts.Index.IsUnitAvailable(unit, window, onUnit, now)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, reservationserrors.ErrSlotConflict
	}
	for _, r := range l.opts.Index.Lapsed(unit, window, onUnit, now) {
		l.expireLocked(r, now)
	}

	r := newReservation(unit, window, ownerID, now)
	l.reservations[r.ID] = r
	return cloneReservation(r), nil
}

func (l *MemoryLedger) CreateTransaction(ctx context.Context, reservationID, ownerID string, amountCents int64, currency string) (*model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.reservations[reservationID]
	if !ok || r.OwnerID != ownerID {
		return nil, reservationserrors.ErrNotFound
	}
	if _, exists := l.txByReservation[reservationID]; exists {
		return nil, reservationserrors.ErrTransactionExists
	}
	if r.State != model.ReservationPending {
		return nil, reservationserrors.ErrAlreadySettled
	}

	tx := newTransaction(reservationID, ownerID, amountCents, currency, l.opts.now())
	l.transactions[tx.ID] = tx
	l.txByReservation[reservationID] = tx.ID
	return cloneTransaction(tx), nil
}

func (l *MemoryLedger) SettleTransaction(ctx context.Context, transactionID string, outcome model.TransactionState) (*model.Transaction, *model.Reservation, error) {
	if !outcome.Settled() {
		return nil, nil, reservationserrors.ErrInvalidOutcome
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, ok := l.transactions[transactionID]
	if !ok {
		return nil, nil, reservationserrors.ErrNotFound
	}
	if tx.State != model.TransactionPending {
		return nil, nil, reservationserrors.ErrAlreadySettled
	}
	r, ok := l.reservations[tx.ReservationID]
	if !ok {
		return nil, nil, fmt.Errorf("transaction %s references missing reservation %s", tx.ID, tx.ReservationID)
	}
	if r.State != model.ReservationPending {
		return nil, nil, reservationserrors.ErrAlreadySettled
	}

	now := l.opts.now()
	outcome = settledOutcome(l.opts.Index, r, outcome, now, l.opts.Log, tx.ID)

	tx.State = outcome
	tx.SettledAt = &now
	r.State = outcome.ReservationState()
	r.UpdatedAt = now
	return cloneTransaction(tx), cloneReservation(r), nil
}

func (l *MemoryLedger) ClaimTransaction(ctx context.Context, transactionID string) (*model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, ok := l.transactions[transactionID]
	if !ok {
		return nil, reservationserrors.ErrNotFound
	}
	if tx.State != model.TransactionPending {
		return nil, reservationserrors.ErrAlreadySettled
	}
	if r, ok := l.reservations[tx.ReservationID]; !ok || r.State != model.ReservationPending {
		return nil, reservationserrors.ErrAlreadySettled
	}
	if tx.ClaimedAt != nil {
		return nil, reservationserrors.ErrCaptureInFlight
	}

	now := l.opts.now()
	tx.ClaimedAt = &now
	return cloneTransaction(tx), nil
}

func (l *MemoryLedger) ReleaseTransactionClaim(ctx context.Context, transactionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, ok := l.transactions[transactionID]
	if !ok {
		return reservationserrors.ErrNotFound
	}
	if tx.State == model.TransactionPending {
		tx.ClaimedAt = nil
	}
	return nil
}

func (l *MemoryLedger) CancelReservation(ctx context.Context, reservationID string, requester auth.Subject) (*model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.reservations[reservationID]
	if !ok {
		return nil, reservationserrors.ErrNotFound
	}
	if !requester.CanAct(r.OwnerID) {
		return nil, reservationserrors.ErrUnauthorized
	}
	if r.State != model.ReservationPending {
		return nil, reservationserrors.ErrNotCancellable
	}
	var tx *model.Transaction
	if txID, ok := l.txByReservation[r.ID]; ok {
		tx = l.transactions[txID]
	}
	if tx != nil && tx.State == model.TransactionSucceeded {
		return nil, reservationserrors.ErrNotCancellable
	}

	now := l.opts.now()
	r.State = model.ReservationCancelled
	r.UpdatedAt = now
	if tx != nil && tx.State == model.TransactionPending {
		tx.State = model.TransactionFailed
		tx.SettledAt = &now
	}
	return cloneReservation(r), nil
}

func (l *MemoryLedger) ExpireReservation(ctx context.Context, reservationID string) (*model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.reservations[reservationID]
	if !ok {
		return nil, reservationserrors.ErrNotFound
	}
	if r.State == model.ReservationPending {
		l.expireLocked(r, l.opts.now())
	}
	return cloneReservation(r), nil
}

func (l *MemoryLedger) ExpireStalePending(ctx context.Context, limit int) ([]*model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.opts.now()
	var stale []*model.Reservation
	for _, r := range l.reservations {
		if l.opts.Index.Stale(r, now) {
			stale = append(stale, r)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}

	out := make([]*model.Reservation, 0, len(stale))
	for _, r := range stale {
		l.expireLocked(r, now)
		out = append(out, cloneReservation(r))
	}
	return out, nil
}

// expireLocked marks r EXPIRED and fails its pending transaction. Caller holds mu.
func (l *MemoryLedger) expireLocked(r *model.Reservation, now time.Time) {
	r.State = model.ReservationExpired
	r.UpdatedAt = now
	if txID, ok := l.txByReservation[r.ID]; ok {
		if tx := l.transactions[txID]; tx.State == model.TransactionPending {
			tx.State = model.TransactionFailed
			tx.SettledAt = &now
		}
	}
}

func (l *MemoryLedger) ActiveInWindow(ctx context.Context, window model.TimeWindow) ([]*model.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*model.Reservation
	for _, r := range l.reservations {
		if r.State.Active() && r.TimeWindow.Overlaps(window) {
			out = append(out, cloneReservation(r))
		}
	}
	sortByUnit(out)
	return out, nil
}

func (l *MemoryLedger) FindReservation(ctx context.Context, id string) (*model.Reservation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	r, ok := l.reservations[id]
	if !ok {
		return nil, reservationserrors.ErrNotFound
	}
	return cloneReservation(r), nil
}

func (l *MemoryLedger) FindTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tx, ok := l.transactions[id]
	if !ok {
		return nil, reservationserrors.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (l *MemoryLedger) FindTransactionByReservation(ctx context.Context, reservationID string) (*model.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	txID, ok := l.txByReservation[reservationID]
	if !ok {
		return nil, reservationserrors.ErrNotFound
	}
	return cloneTransaction(l.transactions[txID]), nil
}

func (l *MemoryLedger) ListByOwner(ctx context.Context, ownerID string) ([]*model.Reservation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*model.Reservation, 0)
	for _, r := range l.reservations {
		if r.OwnerID == ownerID {
			out = append(out, cloneReservation(r))
		}
	}
	sortByStartDesc(out)
	return out, nil
}

func (l *MemoryLedger) ListAll(ctx context.Context) ([]*model.Reservation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*model.Reservation, 0, len(l.reservations))
	for _, r := range l.reservations {
		out = append(out, cloneReservation(r))
	}
	sortByStartDesc(out)
	return out, nil
}

func (l *MemoryLedger) ListTransactionsByOwner(ctx context.Context, ownerID string) ([]*model.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*model.Transaction, 0)
	for _, tx := range l.transactions {
		if tx.OwnerID == ownerID {
			out = append(out, cloneTransaction(tx))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (l *MemoryLedger) Ping(ctx context.Context) error {
	return ctx.Err()
}

func sortByStartDesc(rs []*model.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Start.Equal(rs[j].Start) {
			if rs[i].Unit == rs[j].Unit {
				return rs[i].ID < rs[j].ID
			}
			return rs[i].Unit < rs[j].Unit
		}
		return rs[i].Start.After(rs[j].Start)
	})
}

func sortByUnit(rs []*model.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Unit == rs[j].Unit {
			return rs[i].Start.Before(rs[j].Start)
		}
		return rs[i].Unit < rs[j].Unit
	})
}

func cloneReservation(r *model.Reservation) *model.Reservation {
	c := *r
	return &c
}

func cloneTransaction(tx *model.Transaction) *model.Transaction {
	c := *tx
	if tx.SettledAt != nil {
		at := *tx.SettledAt
		c.SettledAt = &at
	}
	if tx.ClaimedAt != nil {
		at := *tx.ClaimedAt
		c.ClaimedAt = &at
	}
	return &c
}
