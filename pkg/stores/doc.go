// Package stores provides persistent storage for workflows, runs, and
// the event log using SQLite.
//
// The SQLite store keeps three tables:
//
//   - workflows: named workflow definitions, stored as JSON, with a
//     version that bumps on every save
//   - runs: one row per workflow execution, holding the final status
//     and the serialized action trace
//   - events: an append-only log of run and action lifecycle events
//
// The database schema is managed through embedded migrations run with
// golang-migrate. The store opens SQLite in WAL mode with foreign keys
// enabled, so deleting a workflow cascades to its runs and events.
//
// Basic usage:
//
//	store, err := stores.NewSQLiteStore(stores.Config{Path: "webpilot.db"})
//	if err != nil {
//		return err
//	}
//	if err := store.Init(ctx); err != nil {
//		return err
//	}
//	defer store.Close()
//	if err := store.Migrate(ctx); err != nil {
//		return err
//	}
//
//	record, err := store.SaveWorkflow(ctx, wf)
//
// The store also resolves template references by workflow name, which
// lets stored workflows call each other as sub-workflows.
package stores
