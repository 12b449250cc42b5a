package main

import (
	"context"
	"fmt"
	"log"
	"time"

	mongoMigration "slotkeeper/internal/migrations/mongo"
	postgresMigration "slotkeeper/internal/migrations/postgres"
	"slotkeeper/pkg/config"
)

const JobName = "migrate"

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()
	cfg := config.Load(JobName)
	cfg.Connect()
	cfg.Log.Info("Starting migration job", "storage_driver", cfg.StorageDriver)
	defer cfg.GracefulShutdown()

	switch cfg.StorageDriver {
	case config.StorageMongo:
		if err := mongoMigration.RunMigration(ctx, cfg.Client.Mongo, cfg.MongoDatabaseName, cfg.PoolSize); err != nil {
			log.Fatalf("❌ Migration failed: %v", err)
		}
	case config.StoragePostgres:
		if err := postgresMigration.Apply(ctx, cfg.Client.Postgres); err != nil {
			log.Fatalf("❌ Migration failed: %v", err)
		}
	default:
		fmt.Printf("Nothing to migrate for storage driver %q\n", cfg.StorageDriver)
		return
	}
	fmt.Println("🎉 Migration completed.")
}
