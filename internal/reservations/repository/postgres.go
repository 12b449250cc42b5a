package repository

import (
	"context"
	"errors"
	reservationserrors "slotkeeper/internal/reservations/errors"
	"slotkeeper/pkg/auth"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/model"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
)

const (
	reservationColumns = `id, unit, start_time, end_time, owner_id, state, created_at, updated_at`
	transactionColumns = `id, reservation_id, owner_id, amount_cents, currency, state, created_at, settled_at, claimed_at`
)

// Lock order on every path is reservation row, then transaction row.
type postgresLedger struct {
	opts Options
	pool *pgxpool.Pool
}

// NewPostgresLedger expects the schema from internal/migrations/postgres.
// Timestamps come from the ledger clock, never from the database.
func NewPostgresLedger(pool *pgxpool.Pool, opts Options) Ledger {
	return &postgresLedger{opts: opts.withDefaults(), pool: pool}
}

func (l *postgresLedger) CreatePendingReservation(ctx context.Context, unit int, window model.TimeWindow, ownerID string) (*model.Reservation, error) {
	if !window.Valid() {
		return nil, reservationserrors.ErrInvalidWindow
	}
	if !l.opts.Index.Pool.IsValid(unit) {
		return nil, reservationserrors.ErrInvalidUnit
	}

	ctx, cancel := withTimeout(ctx, l.opts.WriteTimeout)
	defer cancel()

	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, pgError("failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	now := l.opts.now()
	rows, err := tx.Query(ctx, `
		UPDATE reservations SET state = 'EXPIRED', updated_at = $1
		WHERE unit = $2 AND state = 'PENDING' AND created_at <= $3
		  AND start_time < $4 AND end_time > $5
		RETURNING id`,
		now, unit, l.opts.Index.StaleBefore(now), window.End, window.Start)
	if err != nil {
		return nil, pgError("failed to expire stale holds", err)
	}
	staleIDs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, pgError("failed to expire stale holds", err)
	}
	if err := failPendingTransactions(ctx, tx, staleIDs, now); err != nil {
		return nil, err
	}

	r := newReservation(unit, window, ownerID, now)
	_, err = tx.Exec(ctx, `INSERT INTO reservations (`+reservationColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, r.Unit, r.Start, r.End, r.OwnerID, r.State, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if pgCode(err) == pgExclusionViolation {
			return nil, reservationserrors.ErrSlotConflict
		}
		return nil, pgError("failed to insert reservation", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, commitError(err)
	}
	return r, nil
}

func (l *postgresLedger) CreateTransaction(ctx context.Context, reservationID, ownerID string, amountCents int64, currency string) (*model.Transaction, error) {
	ctx, cancel := withTimeout(ctx, l.opts.WriteTimeout)
	defer cancel()

	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, pgError("failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	r, err := lockReservation(ctx, tx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.OwnerID != ownerID {
		return nil, reservationserrors.ErrNotFound
	}
	if r.State != model.ReservationPending {
		return nil, reservationserrors.ErrAlreadySettled
	}

	t := newTransaction(reservationID, ownerID, amountCents, currency, l.opts.now())
	_, err = tx.Exec(ctx, `INSERT INTO transactions (`+transactionColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		t.ID, t.ReservationID, t.OwnerID, t.AmountCents, t.Currency, t.State, t.CreatedAt, t.SettledAt, t.ClaimedAt)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return nil, reservationserrors.ErrTransactionExists
		}
		return nil, pgError("failed to insert transaction", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, commitError(err)
	}
	return t, nil
}

func (l *postgresLedger) SettleTransaction(ctx context.Context, transactionID string, outcome model.TransactionState) (*model.Transaction, *model.Reservation, error) {
	if !outcome.Settled() {
		return nil, nil, reservationserrors.ErrInvalidOutcome
	}

	ctx, cancel := withTimeout(ctx, l.opts.WriteTimeout)
	defer cancel()

	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, pgError("failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	t, r, err := lockTransactionPair(ctx, tx, transactionID)
	if err != nil {
		return nil, nil, err
	}
	if t.State != model.TransactionPending || r.State != model.ReservationPending {
		return nil, nil, reservationserrors.ErrAlreadySettled
	}

	now := l.opts.now()
	final := settledOutcome(l.opts.Index, r, outcome, now, l.opts.Log, t.ID)

	if _, err := tx.Exec(ctx, `UPDATE transactions SET state = $1, settled_at = $2 WHERE id = $3`, final, now, t.ID); err != nil {
		return nil, nil, pgError("failed to settle transaction", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE reservations SET state = $1, updated_at = $2 WHERE id = $3`, final.ReservationState(), now, r.ID); err != nil {
		return nil, nil, pgError("failed to settle reservation", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, commitError(err)
	}

	t.State = final
	t.SettledAt = &now
	r.State = final.ReservationState()
	r.UpdatedAt = now
	return t, r, nil
}

func (l *postgresLedger) ClaimTransaction(ctx context.Context, transactionID string) (*model.Transaction, error) {
	ctx, cancel := withTimeout(ctx, l.opts.WriteTimeout)
	defer cancel()

	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, pgError("failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	t, r, err := lockTransactionPair(ctx, tx, transactionID)
	if err != nil {
		return nil, err
	}
	if t.State != model.TransactionPending || r.State != model.ReservationPending {
		return nil, reservationserrors.ErrAlreadySettled
	}
	if t.ClaimedAt != nil {
		return nil, reservationserrors.ErrCaptureInFlight
	}

	now := l.opts.now()
	if _, err := tx.Exec(ctx, `UPDATE transactions SET claimed_at = $1 WHERE id = $2`, now, t.ID); err != nil {
		return nil, pgError("failed to claim transaction", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, commitError(err)
	}

	t.ClaimedAt = &now
	return t, nil
}

func (l *postgresLedger) ReleaseTransactionClaim(ctx context.Context, transactionID string) error {
	ctx, cancel := withTimeout(ctx, l.opts.WriteTimeout)
	defer cancel()

	tag, err := l.pool.Exec(ctx, `UPDATE transactions SET claimed_at = NULL WHERE id = $1 AND state = 'PENDING'`, transactionID)
	if err != nil {
		return pgError("failed to release transaction claim", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := l.FindTransaction(ctx, transactionID); err != nil {
			return err
		}
	}
	return nil
}

func (l *postgresLedger) CancelReservation(ctx context.Context, reservationID string, requester auth.Subject) (*model.Reservation, error) {
	ctx, cancel := withTimeout(ctx, l.opts.WriteTimeout)
	defer cancel()

	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, pgError("failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	r, err := lockReservation(ctx, tx, reservationID)
	if err != nil {
		return nil, err
	}
	if !requester.CanAct(r.OwnerID) {
		return nil, reservationserrors.ErrUnauthorized
	}
	if r.State != model.ReservationPending {
		return nil, reservationserrors.ErrNotCancellable
	}

	var txState model.TransactionState
	err = tx.QueryRow(ctx, `SELECT state FROM transactions WHERE reservation_id = $1`, r.ID).Scan(&txState)
	switch {
	case err == nil && txState == model.TransactionSucceeded:
		return nil, reservationserrors.ErrNotCancellable
	case err != nil && !errors.Is(err, pgx.ErrNoRows):
		return nil, pgError("failed to find transaction", err)
	}

	now := l.opts.now()
	if _, err := tx.Exec(ctx, `UPDATE reservations SET state = 'CANCELLED', updated_at = $1 WHERE id = $2`, now, r.ID); err != nil {
		return nil, pgError("failed to cancel reservation", err)
	}
	if err := failPendingTransactions(ctx, tx, []string{r.ID}, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, commitError(err)
	}

	r.State = model.ReservationCancelled
	r.UpdatedAt = now
	return r, nil
}

func (l *postgresLedger) ExpireReservation(ctx context.Context, reservationID string) (*model.Reservation, error) {
	ctx, cancel := withTimeout(ctx, l.opts.WriteTimeout)
	defer cancel()

	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, pgError("failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	r, err := lockReservation(ctx, tx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.State != model.ReservationPending {
		return r, nil
	}

	now := l.opts.now()
	if _, err := tx.Exec(ctx, `UPDATE reservations SET state = 'EXPIRED', updated_at = $1 WHERE id = $2`, now, r.ID); err != nil {
		return nil, pgError("failed to expire reservation", err)
	}
	if err := failPendingTransactions(ctx, tx, []string{r.ID}, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, commitError(err)
	}

	r.State = model.ReservationExpired
	r.UpdatedAt = now
	return r, nil
}

// ExpireStalePending is one statement; SKIP LOCKED leaves rows that a
// booking or settlement is touching for the next sweep.
func (l *postgresLedger) ExpireStalePending(ctx context.Context, limit int) ([]*model.Reservation, error) {
	ctx, cancel := withTimeout(ctx, l.opts.WriteTimeout)
	defer cancel()

	var batch *int
	if limit > 0 {
		batch = &limit
	}

	now := l.opts.now()
	rows, err := l.pool.Query(ctx, `
		WITH stale AS (
			SELECT id FROM reservations
			WHERE state = 'PENDING' AND created_at <= $1
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		), expired AS (
			UPDATE reservations r SET state = 'EXPIRED', updated_at = $3
			FROM stale WHERE r.id = stale.id
			RETURNING r.id, r.unit, r.start_time, r.end_time, r.owner_id, r.state, r.created_at, r.updated_at
		), failed AS (
			UPDATE transactions t SET state = 'FAILED', settled_at = $3
			FROM expired WHERE t.reservation_id = expired.id AND t.state = 'PENDING'
		)
		SELECT `+reservationColumns+` FROM expired ORDER BY created_at, id`,
		l.opts.Index.StaleBefore(now), batch, now)
	if err != nil {
		return nil, pgError("failed to expire stale reservations", err)
	}
	return collectReservations(rows)
}

func (l *postgresLedger) ActiveInWindow(ctx context.Context, window model.TimeWindow) ([]*model.Reservation, error) {
	ctx, cancel := withTimeout(ctx, l.opts.ReadTimeout)
	defer cancel()

	rows, err := l.pool.Query(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE state IN ('PENDING','CONFIRMED') AND start_time < $1 AND end_time > $2
		ORDER BY unit, start_time`, window.End, window.Start)
	if err != nil {
		return nil, pgError("failed to find active reservations", err)
	}
	return collectReservations(rows)
}

func (l *postgresLedger) FindReservation(ctx context.Context, id string) (*model.Reservation, error) {
	ctx, cancel := withTimeout(ctx, l.opts.ReadTimeout)
	defer cancel()

	r, err := scanReservation(l.pool.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id))
	if err != nil {
		return nil, lookupError("failed to find reservation", err)
	}
	return r, nil
}

func (l *postgresLedger) FindTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	ctx, cancel := withTimeout(ctx, l.opts.ReadTimeout)
	defer cancel()

	t, err := scanTransaction(l.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		return nil, lookupError("failed to find transaction", err)
	}
	return t, nil
}

func (l *postgresLedger) FindTransactionByReservation(ctx context.Context, reservationID string) (*model.Transaction, error) {
	ctx, cancel := withTimeout(ctx, l.opts.ReadTimeout)
	defer cancel()

	t, err := scanTransaction(l.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reservation_id = $1`, reservationID))
	if err != nil {
		return nil, lookupError("failed to find transaction", err)
	}
	return t, nil
}

func (l *postgresLedger) ListByOwner(ctx context.Context, ownerID string) ([]*model.Reservation, error) {
	ctx, cancel := withTimeout(ctx, l.opts.ReadTimeout)
	defer cancel()

	rows, err := l.pool.Query(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE owner_id = $1 ORDER BY start_time DESC, unit, id`, ownerID)
	if err != nil {
		return nil, pgError("failed to list reservations", err)
	}
	return collectReservations(rows)
}

func (l *postgresLedger) ListAll(ctx context.Context) ([]*model.Reservation, error) {
	ctx, cancel := withTimeout(ctx, l.opts.ReadTimeout)
	defer cancel()

	rows, err := l.pool.Query(ctx, `SELECT `+reservationColumns+` FROM reservations ORDER BY start_time DESC, unit, id`)
	if err != nil {
		return nil, pgError("failed to list reservations", err)
	}
	return collectReservations(rows)
}

func (l *postgresLedger) ListTransactionsByOwner(ctx context.Context, ownerID string) ([]*model.Transaction, error) {
	ctx, cancel := withTimeout(ctx, l.opts.ReadTimeout)
	defer cancel()

	rows, err := l.pool.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE owner_id = $1 ORDER BY created_at DESC, id`, ownerID)
	if err != nil {
		return nil, pgError("failed to list transactions", err)
	}
	defer rows.Close()

	out := make([]*model.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, pgError("failed to scan transaction", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError("failed to list transactions", err)
	}
	return out, nil
}

func (l *postgresLedger) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, l.opts.ReadTimeout)
	defer cancel()

	if err := l.pool.Ping(ctx); err != nil {
		return apperrors.StorageUnavailable("postgres ping failed", err)
	}
	return nil
}

func lockReservation(ctx context.Context, tx pgx.Tx, id string) (*model.Reservation, error) {
	r, err := scanReservation(tx.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, lookupError("failed to lock reservation", err)
	}
	return r, nil
}

// lockTransactionPair locks the reservation, then the transaction.
func lockTransactionPair(ctx context.Context, tx pgx.Tx, transactionID string) (*model.Transaction, *model.Reservation, error) {
	var reservationID string
	err := tx.QueryRow(ctx, `SELECT reservation_id FROM transactions WHERE id = $1`, transactionID).Scan(&reservationID)
	if err != nil {
		return nil, nil, lookupError("failed to find transaction", err)
	}

	r, err := lockReservation(ctx, tx, reservationID)
	if err != nil {
		return nil, nil, err
	}
	t, err := scanTransaction(tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, transactionID))
	if err != nil {
		return nil, nil, lookupError("failed to lock transaction", err)
	}
	return t, r, nil
}

func failPendingTransactions(ctx context.Context, tx pgx.Tx, reservationIDs []string, now time.Time) error {
	if len(reservationIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `UPDATE transactions SET state = 'FAILED', settled_at = $1
		WHERE reservation_id = ANY($2) AND state = 'PENDING'`, now, reservationIDs)
	if err != nil {
		return pgError("failed to fail pending transactions", err)
	}
	return nil
}

func scanReservation(row pgx.Row) (*model.Reservation, error) {
	var (
		r          model.Reservation
		start, end time.Time
	)
	if err := row.Scan(&r.ID, &r.Unit, &start, &end, &r.OwnerID, &r.State, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.TimeWindow = model.NewTimeWindow(start, end)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var t model.Transaction
	if err := row.Scan(&t.ID, &t.ReservationID, &t.OwnerID, &t.AmountCents, &t.Currency, &t.State, &t.CreatedAt, &t.SettledAt, &t.ClaimedAt); err != nil {
		return nil, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	if t.SettledAt != nil {
		at := t.SettledAt.UTC()
		t.SettledAt = &at
	}
	if t.ClaimedAt != nil {
		at := t.ClaimedAt.UTC()
		t.ClaimedAt = &at
	}
	return &t, nil
}

func collectReservations(rows pgx.Rows) ([]*model.Reservation, error) {
	defer rows.Close()

	out := make([]*model.Reservation, 0)
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, pgError("failed to scan reservation", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError("failed to read reservations", err)
	}
	return out, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func lookupError(msg string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return reservationserrors.ErrNotFound
	}
	return pgError(msg, err)
}

func pgError(msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Timeout(msg)
	}
	return apperrors.StorageUnavailable(msg, err)
}

// A serialization or exclusion failure can also surface at commit.
func commitError(err error) error {
	if pgCode(err) == pgExclusionViolation {
		return reservationserrors.ErrSlotConflict
	}
	return pgError("failed to commit transaction", err)
}
