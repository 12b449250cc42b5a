package repository

import (
	"context"
	"errors"
	"fmt"
	reservationserrors "slotkeeper/internal/reservations/errors"
	"slotkeeper/pkg/auth"
	mongotx "slotkeeper/pkg/db/mongo"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	ReservationsCollection = "Reservations"
	TransactionsCollection = "Transactions"
	UnitGuardsCollection   = "Unit_guards"
)

var activeStates = bson.A{model.ReservationPending, model.ReservationConfirmed}

type mongoLedger struct {
	opts         Options
	client       *mongo.Client
	reservations *mongo.Collection
	transactions *mongo.Collection
	guards       *mongo.Collection
	txManager    mongotx.TransactionManager
}

// NewMongoLedger needs a replica set; every mutation runs in a
// multi-document transaction.
func NewMongoLedger(client *mongo.Client, databaseName string, opts Options) Ledger {
	db := client.Database(databaseName)
	return &mongoLedger{
		opts:         opts.withDefaults(),
		client:       client,
		reservations: db.Collection(ReservationsCollection),
		transactions: db.Collection(TransactionsCollection),
		guards:       db.Collection(UnitGuardsCollection),
		txManager:    mongotx.NewTransactionManager(client),
	}
}

func (l *mongoLedger) CreatePendingReservation(ctx context.Context, unit int, window model.TimeWindow, ownerID string) (*model.Reservation, error) {
	if !window.Valid() {
		return nil, reservationserrors.ErrInvalidWindow
	}
	if !l.opts.Index.Pool.IsValid(unit) {
		return nil, reservationserrors.ErrInvalidUnit
	}

	ctx, cancel := withTimeout(ctx, l.opts.WriteTimeout)
	defer cancel()

	var created *model.Reservation
	err := l.txManager.ExecuteTransaction(ctx, func(sc mongo.SessionContext) error {
		now := l.opts.now()

		// Every writer on this unit touches the guard first, so two bookings
		// on the same unit write-conflict and the driver retries the loser.
		res, err := l.guards.UpdateOne(sc,
			bson.M{"_id": unit},
			bson.M{"$inc": bson.M{"version": 1}, "$set": bson.M{"updated_at": now}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return apperrors.StorageUnavailable(fmt.Sprintf("unit guard %d missing, run migrate", unit), nil)
		}

		overlapping, err := l.findReservations(sc, bson.M{
			"unit":       unit,
			"state":      bson.M{"$in": activeStates},
			"start_time": bson.M{"$lt": window.End},
			"end_time":   bson.M{"$gt": window.Start},
		}, nil)
		if err != nil {
			return err
		}

		available, err := l.opts.Index.IsUnitAvailable(unit, window, overlapping, now)
		if err != nil {
			return err
		}
		if !available {
			return reservationserrors.ErrSlotConflict
		}
		var lapsedIDs bson.A
		for _, r := range l.opts.Index.Lapsed(unit, window, overlapping, now) {
			lapsedIDs = append(lapsedIDs, r.ID)
		}
		if len(lapsedIDs) > 0 {
			if err := l.expireMany(sc, lapsedIDs, now); err != nil {
				return err
			}
		}

		r := newReservation(unit, window, ownerID, now)
		if _, err := l.reservations.InsertOne(sc, r); err != nil {
			return err
		}
		created = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (l *mongoLedger) CreateTransaction(ctx context.Context, reservationID, ownerID string, amountCents int64, currency string) (*model.Transaction, error) {
	ctx, cancel := withTimeout(ctx, l.opts.WriteTimeout)
	defer cancel()

	var created *model.Transaction
	err := l.txManager.ExecuteTransaction(ctx, func(sc mongo.SessionContext) error {
		r, err := l.findReservation(sc, reservationID)
		if err != nil {
			return err
		}
		if r.OwnerID != ownerID {
			return reservationserrors.ErrNotFound
		}
		if r.State != model.ReservationPending {
			return reservationserrors.ErrAlreadySettled
		}

		tx := newTransaction(reservationID, ownerID, amountCents, currency, l.opts.now())
		if _, err := l.transactions.InsertOne(sc, tx); err != nil {
			if mongotx.IsDuplicateKey(err) {
				return reservationserrors.ErrTransactionExists
			}
			return err
		}
		created = tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (l *mongoLedger) SettleTransaction(ctx context.Context, transactionID string, outcome model.TransactionState) (*model.Transaction, *model.Reservation, error) {
	if !outcome.Settled() {
		return nil, nil, reservationserrors.ErrInvalidOutcome
	}

	ctx, cancel := withTimeout(ctx, l.opts.WriteTimeout)
	defer cancel()

	var (
		settledTx  *model.Transaction
		settledRes *model.Reservation
	)
	err := l.txManager.ExecuteTransaction(ctx, func(sc mongo.SessionContext) error {
		tx, err := l.findTransaction(sc, bson.M{"_id": transactionID})
		if err != nil {
			return err
		}
		if tx.State != model.TransactionPending {
			return reservationserrors.ErrAlreadySettled
		}
		r, err := l.findReservation(sc, tx.ReservationID)
		if err != nil {
			return err
		}
		if r.State != model.ReservationPending {
			return reservationserrors.ErrAlreadySettled
		}

		now := l.opts.now()
		final := settledOutcome(l.opts.Index, r, outcome, now, l.opts.Log, tx.ID)

		txRes, err := l.transactions.UpdateOne(sc,
			bson.M{"_id": tx.ID, "state": model.TransactionPending},
			bson.M{"$set": bson.M{"state": final, "settled_at": now}},
		)
		if err != nil {
			return err
		}
		if txRes.MatchedCount == 0 {
			return reservationserrors.ErrAlreadySettled
		}

		resRes, err := l.reservations.UpdateOne(sc,
			bson.M{"_id": r.ID, "state": model.ReservationPending},
			bson.M{"$set": bson.M{"state": final.ReservationState(), "updated_at": now}},
		)
		if err != nil {
			return err
		}
		if resRes.MatchedCount == 0 {
			return reservationserrors.ErrAlreadySettled
		}

		tx.State = final
		tx.SettledAt = &now
		r.State = final.ReservationState()
		r.UpdatedAt = now
		settledTx, settledRes = tx, r
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return settledTx, settledRes, nil
}

func (l *mongoLedger) ClaimTransaction(ctx context.Context, transactionID string) (*model.Transaction, error) {
	ctx, cancel := withTimeout(ctx, l.opts.WriteTimeout)
	defer cancel()

	var claimed *model.Transaction
	err := l.txManager.ExecuteTransaction(ctx, func(sc mongo.SessionContext) error {
		tx, err := l.findTransaction(sc, bson.M{"_id": transactionID})
		if err != nil {
			return err
		}
		if tx.State != model.TransactionPending {
			return reservationserrors.ErrAlreadySettled
		}
		r, err := l.findReservation(sc, tx.ReservationID)
		if err != nil {
			return err
		}
		if r.State != model.ReservationPending {
			return reservationserrors.ErrAlreadySettled
		}
		if tx.ClaimedAt != nil {
			return reservationserrors.ErrCaptureInFlight
		}

		now := l.opts.now()
		res, err := l.transactions.UpdateOne(sc,
			bson.M{"_id": tx.ID, "state": model.TransactionPending, "claimed_at": nil},
			bson.M{"$set": bson.M{"claimed_at": now}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return reservationserrors.ErrCaptureInFlight
		}

		tx.ClaimedAt = &now
		claimed = tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (l *mongoLedger) ReleaseTransactionClaim(ctx context.Context, transactionID string) error {
	ctx, cancel := withTimeout(ctx, l.opts.WriteTimeout)
	defer cancel()

	res, err := l.transactions.UpdateOne(ctx,
		bson.M{"_id": transactionID, "state": model.TransactionPending},
		bson.M{"$unset": bson.M{"claimed_at": ""}},
	)
	if err != nil {
		return mongotx.ClassifyError("failed to release transaction claim", err)
	}
	if res.MatchedCount == 0 {
		if _, err := l.FindTransaction(ctx, transactionID); err != nil {
			return err
		}
	}
	return nil
}

func (l *mongoLedger) CancelReservation(ctx context.Context, reservationID string, requester auth.Subject) (*model.Reservation, error) {
	ctx, cancel := withTimeout(ctx, l.opts.WriteTimeout)
	defer cancel()

	var cancelled *model.Reservation
	err := l.txManager.ExecuteTransaction(ctx, func(sc mongo.SessionContext) error {
		r, err := l.findReservation(sc, reservationID)
		if err != nil {
			return err
		}
		if !requester.CanAct(r.OwnerID) {
			return reservationserrors.ErrUnauthorized
		}
		if r.State != model.ReservationPending {
			return reservationserrors.ErrNotCancellable
		}

		tx, err := l.findTransaction(sc, bson.M{"reservation_id": r.ID})
		switch {
		case err == nil && tx.State == model.TransactionSucceeded:
			return reservationserrors.ErrNotCancellable
		case err != nil && !errors.Is(err, reservationserrors.ErrNotFound):
			return err
		}

		now := l.opts.now()
		res, err := l.reservations.UpdateOne(sc,
			bson.M{"_id": r.ID, "state": model.ReservationPending},
			bson.M{"$set": bson.M{"state": model.ReservationCancelled, "updated_at": now}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return reservationserrors.ErrNotCancellable
		}
		if _, err := l.transactions.UpdateMany(sc,
			bson.M{"reservation_id": r.ID, "state": model.TransactionPending},
			bson.M{"$set": bson.M{"state": model.TransactionFailed, "settled_at": now}},
		); err != nil {
			return err
		}

		r.State = model.ReservationCancelled
		r.UpdatedAt = now
		cancelled = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (l *mongoLedger) ExpireReservation(ctx context.Context, reservationID string) (*model.Reservation, error) {
	ctx, cancel := withTimeout(ctx, l.opts.WriteTimeout)
	defer cancel()

	var expired *model.Reservation
	err := l.txManager.ExecuteTransaction(ctx, func(sc mongo.SessionContext) error {
		r, err := l.findReservation(sc, reservationID)
		if err != nil {
			return err
		}
		if r.State == model.ReservationPending {
			now := l.opts.now()
			if err := l.expireMany(sc, bson.A{r.ID}, now); err != nil {
				return err
			}
			r.State = model.ReservationExpired
			r.UpdatedAt = now
		}
		expired = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// ExpireStalePending reaps one row per transaction so a large backlog never
// holds a long transaction open against live bookings.
func (l *mongoLedger) ExpireStalePending(ctx context.Context, limit int) ([]*model.Reservation, error) {
	now := l.opts.now()
	cutoff := l.opts.Index.StaleBefore(now)

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}

	readCtx, cancel := withTimeout(ctx, l.opts.ReadTimeout)
	candidates, err := l.findReservations(readCtx, bson.M{
		"state":      model.ReservationPending,
		"created_at": bson.M{"$lte": cutoff},
	}, findOpts)
	cancel()
	if err != nil {
		return nil, mongotx.ClassifyError("failed to find stale reservations", err)
	}

	reaped := make([]*model.Reservation, 0, len(candidates))
	for _, r := range candidates {
		if err := ctx.Err(); err != nil {
			return reaped, err
		}

		writeCtx, cancel := withTimeout(ctx, l.opts.WriteTimeout)
		var expired bool
		err := l.txManager.ExecuteTransaction(writeCtx, func(sc mongo.SessionContext) error {
			expired = false
			res, err := l.reservations.UpdateOne(sc,
				bson.M{"_id": r.ID, "state": model.ReservationPending, "created_at": bson.M{"$lte": cutoff}},
				bson.M{"$set": bson.M{"state": model.ReservationExpired, "updated_at": now}},
			)
			if err != nil {
				return err
			}
			if res.MatchedCount == 0 {
				return nil
			}
			if _, err := l.transactions.UpdateMany(sc,
				bson.M{"reservation_id": r.ID, "state": model.TransactionPending},
				bson.M{"$set": bson.M{"state": model.TransactionFailed, "settled_at": now}},
			); err != nil {
				return err
			}
			expired = true
			return nil
		})
		cancel()
		if err != nil {
			return reaped, err
		}
		if expired {
			r.State = model.ReservationExpired
			r.UpdatedAt = now
			reaped = append(reaped, r)
		}
	}
	return reaped, nil
}

// expireMany marks PENDING reservations EXPIRED and fails their pending
// transactions. Callers run it inside a transaction.
func (l *mongoLedger) expireMany(sc mongo.SessionContext, ids bson.A, now time.Time) error {
	if _, err := l.reservations.UpdateMany(sc,
		bson.M{"_id": bson.M{"$in": ids}, "state": model.ReservationPending},
		bson.M{"$set": bson.M{"state": model.ReservationExpired, "updated_at": now}},
	); err != nil {
		return err
	}
	_, err := l.transactions.UpdateMany(sc,
		bson.M{"reservation_id": bson.M{"$in": ids}, "state": model.TransactionPending},
		bson.M{"$set": bson.M{"state": model.TransactionFailed, "settled_at": now}},
	)
	return err
}

func (l *mongoLedger) ActiveInWindow(ctx context.Context, window model.TimeWindow) ([]*model.Reservation, error) {
	ctx, cancel := withTimeout(ctx, l.opts.ReadTimeout)
	defer cancel()

	out, err := l.findReservations(ctx, bson.M{
		"state":      bson.M{"$in": activeStates},
		"start_time": bson.M{"$lt": window.End},
		"end_time":   bson.M{"$gt": window.Start},
	}, options.Find().SetSort(bson.D{{Key: "unit", Value: 1}, {Key: "start_time", Value: 1}}))
	if err != nil {
		return nil, mongotx.ClassifyError("failed to find active reservations", err)
	}
	return out, nil
}

func (l *mongoLedger) FindReservation(ctx context.Context, id string) (*model.Reservation, error) {
	ctx, cancel := withTimeout(ctx, l.opts.ReadTimeout)
	defer cancel()

	r, err := l.findReservation(ctx, id)
	if err != nil {
		return nil, mongotx.ClassifyError("failed to find reservation", err)
	}
	return r, nil
}

func (l *mongoLedger) FindTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	ctx, cancel := withTimeout(ctx, l.opts.ReadTimeout)
	defer cancel()

	tx, err := l.findTransaction(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, mongotx.ClassifyError("failed to find transaction", err)
	}
	return tx, nil
}

func (l *mongoLedger) FindTransactionByReservation(ctx context.Context, reservationID string) (*model.Transaction, error) {
	ctx, cancel := withTimeout(ctx, l.opts.ReadTimeout)
	defer cancel()

	tx, err := l.findTransaction(ctx, bson.M{"reservation_id": reservationID})
	if err != nil {
		return nil, mongotx.ClassifyError("failed to find transaction", err)
	}
	return tx, nil
}

func (l *mongoLedger) ListByOwner(ctx context.Context, ownerID string) ([]*model.Reservation, error) {
	ctx, cancel := withTimeout(ctx, l.opts.ReadTimeout)
	defer cancel()

	out, err := l.findReservations(ctx, bson.M{"owner_id": ownerID}, newestWindowFirst())
	if err != nil {
		return nil, mongotx.ClassifyError("failed to list reservations", err)
	}
	return out, nil
}

func (l *mongoLedger) ListAll(ctx context.Context) ([]*model.Reservation, error) {
	ctx, cancel := withTimeout(ctx, l.opts.ReadTimeout)
	defer cancel()

	out, err := l.findReservations(ctx, bson.M{}, newestWindowFirst())
	if err != nil {
		return nil, mongotx.ClassifyError("failed to list reservations", err)
	}
	return out, nil
}

func (l *mongoLedger) ListTransactionsByOwner(ctx context.Context, ownerID string) ([]*model.Transaction, error) {
	ctx, cancel := withTimeout(ctx, l.opts.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := l.transactions.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, mongotx.ClassifyError("failed to list transactions", err)
	}
	defer cursor.Close(ctx)

	out := make([]*model.Transaction, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, mongotx.ClassifyError("failed to decode transactions", err)
	}
	return out, nil
}

func (l *mongoLedger) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, l.opts.ReadTimeout)
	defer cancel()

	if err := l.client.Ping(ctx, readpref.Primary()); err != nil {
		return apperrors.StorageUnavailable("mongo ping failed", err)
	}
	return nil
}

func (l *mongoLedger) findReservation(ctx context.Context, id string) (*model.Reservation, error) {
	var r model.Reservation
	if err := l.reservations.FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reservationserrors.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (l *mongoLedger) findTransaction(ctx context.Context, filter bson.M) (*model.Transaction, error) {
	var tx model.Transaction
	if err := l.transactions.FindOne(ctx, filter).Decode(&tx); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reservationserrors.ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (l *mongoLedger) findReservations(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.Reservation, error) {
	if opts == nil {
		opts = options.Find()
	}
	cursor, err := l.reservations.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := make([]*model.Reservation, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func newestWindowFirst() *options.FindOptions {
	return options.Find().SetSort(bson.D{
		{Key: "start_time", Value: -1},
		{Key: "unit", Value: 1},
		{Key: "_id", Value: 1},
	})
}
