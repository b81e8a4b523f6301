// Package database provides SQLite connectivity for Wormbot Core.
//
// The database holds the periphery apply history (one row per
// configuration apply attempt). It is optional: when disabled the
// controller runs without history.
//
// This package manages:
//   - Connection setup with WAL mode and busy timeout
//   - Versioned schema migrations read from an fs.FS
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
