// Package periphery defines the Periphery capability set and the
// Registry that manages a robot's peripheries as a group.
//
// Peripheries expose numeric parameters that are persisted in config
// files: a JSON array of [periphery, parameter, value] triples, one per
// line. ReadConfig applies such a file transactionally. Before any
// parameter changes, the current values are snapshotted to the backup
// path; if any parameter is rejected, the snapshot is re-applied once.
// If that fails too the registry is flagged inconsistent.
//
// Peripheries whose parameters depend on each other implement
// BatchSetter and receive all of their entries from a file at once.
//
//	reg := periphery.NewRegistry(cfg.Periphery.BackupPath)
//	reg.Register(mount)
//	if err := reg.InitializeAll(ctx); err != nil {
//	    return err
//	}
//	defer reg.ShutdownAll(ctx)
//
//	switch err := reg.ReadConfig(ctx, "default.config"); {
//	case errors.Is(err, periphery.ErrPartialApply):
//	    // previous parameters restored
//	case errors.Is(err, periphery.ErrInconsistentState):
//	    // fatal
//	}
//
// Every ReadConfig outcome can be recorded through a HistoryRecorder;
// SQLiteHistory stores them in the periphery_applies table.
package periphery
