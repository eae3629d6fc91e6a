// Package store implements the data access layer for the esxi-migration-agent.
//
// Two kinds of state are kept under Agent.DataFolder:
//
//   - the configuration document (config.json), shared with operators and
//     other tools, and therefore plain JSON on disk;
//   - the migration run history, kept in DuckDB.
//
// # Architecture Overview
//
//	┌─────────────────────────────────────────────────────────────────┐
//	│                         Store (facade)                          │
//	├────────────────────────────────┬────────────────────────────────┤
//	│       ConfigurationStore       │           RunStore             │
//	│              ▼                 │              ▼                 │
//	│         config.json            │  migration_runs                │
//	│     (+ config.json.lock)       │  migration_run_vms             │
//	│                                │  (via QueryInterceptor)        │
//	└────────────────────────────────┴────────────────────────────────┘
//
// # Configuration Document
//
//	{
//	  "source":      { "host": "...", "user": "...", "credential": "..." },
//	  "destination": { "platform": "kvm", "kvm": { ..., "storagePool": "/var/lib/libvirt/images" } },
//	  "selectedVms": [1, 3],
//	  "storageTarget": "local-lvm",
//	  "exportRoot": "./exports",
//	  "exportToolPath": "ovftool"
//	}
//
// A missing file reads as the default document. A file that does not parse,
// or whose destination carries a variant other than the one named by
// platform, fails with CorruptDocumentError and is never replaced silently.
//
// Every Update* call is one load-mutate-save cycle on exactly one section:
//
//	┌──────────────┐   ┌───────────────┐   ┌───────────┐   ┌───────────────┐
//	│ mutex + flock│──►│ read document │──►│  mutate   │──►│ write tmp     │
//	└──────────────┘   └───────────────┘   │ 1 section │   │ fsync, rename │
//	                                       └───────────┘   │ fsync dir     │
//	                                                       └───────────────┘
//
// The in-process mutex serializes goroutines; the advisory lock on
// config.json.lock serializes processes sharing the data folder. Readers never
// observe a half-written file. Write failures surface as PersistenceError.
//
// # Run History
//
// Tables are created by embedded migrations (internal/store/migrations/sql/):
//
//	┌────────────────────┬─────────────────────────────────────────────┐
//	│  Table             │  Purpose                                    │
//	├────────────────────┼─────────────────────────────────────────────┤
//	│  migration_runs    │  One row per run: platforms, counts, times  │
//	│  migration_run_vms │  One row per VM of a run, keyed by ordinal  │
//	│  schema_migrations │  Applied migration versions                 │
//	└────────────────────┴─────────────────────────────────────────────┘
//
// List and Count take functional options built on squirrel:
//
//	runs, err := s.Runs().List(ctx,
//	    store.ByDestination(models.PlatformProxmox),
//	    store.WithFailures(),
//	    store.WithDefaultSort(),
//	    store.WithLimit(20),
//	)
//
// List returns summaries; Get returns one run with its per-VM items.
//
// # Query Logging
//
// QueryInterceptor wraps *sql.DB and logs every statement with its duration
// at debug level under the "store" logger.
package store
