// Package testdb provides utilities for database integration tests.
//
// Tests run inside a transaction that is rolled back when the test finishes,
// so they can run in parallel against a shared database without cleanup:
//
//	db := testdb.GetTestDBWithT(t)
//	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//		tasks := postgres.NewPostgresTaskStore(tx, nil)
//		// ...
//	})
//
// Tests that need committed data (for example concurrent claims through
// separate connections) must delete what they create in t.Cleanup.
//
// Every helper skips the test when no database URL is configured.
package testdb
