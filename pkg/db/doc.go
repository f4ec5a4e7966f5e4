// Package db opens and migrates the PostgreSQL pool that backs the job queue.
//
// [Connect] builds a pgx pool from [Config] and retries the first ping with a
// linear backoff so the dispatcher survives a database that starts after it.
// [Migrate] applies goose migrations from any fs.FS, which lets each store
// package embed its own schema. [WithTx] runs a function in a transaction and
// [Healthcheck] plugs the pool into readiness probes.
//
//	pool, err := db.Connect(ctx, cfg.DB)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := db.Migrate(ctx, pool, postgres.Migrations, postgres.MigrationsDir, cfg.DB.MigrationsTable, log); err != nil {
//		return err
//	}
package db
