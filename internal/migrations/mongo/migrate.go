package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"slotkeeper/internal/migrations/mongo/validators"
)

const (
	ReservationsCollection = "Reservations"
	TransactionsCollection = "Transactions"
	UnitGuardsCollection   = "Unit_guards"
)

var (
	ReservationsIndexes = []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "unit", Value: 1},
			{Key: "start_time", Value: 1},
			{Key: "end_time", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "owner_id", Value: 1},
			{Key: "start_time", Value: -1},
		}},
		{Keys: bson.D{
			{Key: "state", Value: 1},
			{Key: "created_at", Value: 1},
		}},
	}

	TransactionsIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "reservation_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{
			{Key: "owner_id", Value: 1},
			{Key: "created_at", Value: -1},
		}},
	}
)

// RunMigration creates collections, validators and indexes, and seeds one
// guard document per unit. Growing the pool and re-running adds the new guards.
func RunMigration(ctx context.Context, client *mongo.Client, dbName string, poolSize int) error {
	db := client.Database(dbName)
	fmt.Printf("🚀 Running slotkeeper Mongo migrations on database: %s\n", dbName)

	collections := map[string]struct {
		Indexes   []mongo.IndexModel
		Validator bson.M
	}{
		ReservationsCollection: {
			Indexes:   ReservationsIndexes,
			Validator: validators.ReservationValidator,
		},
		TransactionsCollection: {
			Indexes:   TransactionsIndexes,
			Validator: validators.TransactionValidator,
		},
		UnitGuardsCollection: {
			Validator: validators.UnitGuardValidator,
		},
	}

	for name, def := range collections {
		if err := ensureCollection(ctx, db, name, def.Validator); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if len(def.Indexes) == 0 {
			continue
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	if err := SeedUnitGuards(ctx, db, poolSize); err != nil {
		return fmt.Errorf("failed to seed unit guards: %w", err)
	}

	fmt.Println("✅ All migrations applied successfully.")
	return nil
}

// SeedUnitGuards upserts guards 1..poolSize without touching existing versions.
func SeedUnitGuards(ctx context.Context, db *mongo.Database, poolSize int) error {
	if poolSize < 1 {
		return fmt.Errorf("pool size must be at least 1, got %d", poolSize)
	}

	now := time.Now().UTC()
	writes := make([]mongo.WriteModel, 0, poolSize)
	for unit := 1; unit <= poolSize; unit++ {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": unit}).
			SetUpdate(bson.M{"$setOnInsert": bson.M{"version": 0, "updated_at": now}}).
			SetUpsert(true))
	}

	res, err := db.Collection(UnitGuardsCollection).BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return err
	}
	fmt.Printf("🔐 Unit guards ready: %d units, %d new\n", poolSize, res.UpsertedCount)
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		fmt.Printf("🆕 Creating collection: %s\n", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
	} else {
		fmt.Printf("ℹ️ Collection %s already exists, updating validator if needed\n", name)
		command := bson.D{
			{Key: "collMod", Value: name},
			{Key: "validator", Value: validator},
		}
		if err := db.RunCommand(ctx, command).Err(); err != nil {
			fmt.Printf("⚠️ Warning: failed updating validator for %s: %v\n", name, err)
		}
	}

	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel) error {
	coll := db.Collection(name)
	_, err := coll.Indexes().CreateMany(ctx, models)
	if err != nil {
		return err
	}
	fmt.Printf("📚 Ensured indexes for %s\n", name)
	return nil
}
