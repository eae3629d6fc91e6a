package store

// Migration run queries
const (
	queryInsertRun = `
		INSERT INTO migration_runs (id, source_platform, destination_platform, total_requested,
			succeeded_count, failed_count, aborted, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryInsertRunVM = `
		INSERT INTO migration_run_vms (run_id, ordinal, vm_name, outcome, reason, target_id,
			attempts, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetRunVMs = `
		SELECT ordinal, vm_name, outcome, reason, target_id, attempts, started_at, finished_at
		FROM migration_run_vms WHERE run_id = ? ORDER BY ordinal`
)
