// Package handlers implements the HTTP API layer for the esxi-migration-agent.
//
// Handlers delegate to the services layer and focus on request validation,
// response formatting and HTTP semantics. Routes are wired by
// v1.RegisterHandlers(router, handler).
//
// # Architecture Overview
//
//	┌─────────────────────────────────────────────────────────────────┐
//	│                     HTTP Request (Gin)                          │
//	└─────────────────────────────────────────────────────────────────┘
//	                              │
//	                              ▼
//	┌─────────────────────────────────────────────────────────────────┐
//	│                      Handler (this package)                     │
//	│  - Request binding and validation                               │
//	│  - Error mapping to HTTP status codes                           │
//	│  - Model-to-API conversion                                      │
//	└─────────────────────────────────────────────────────────────────┘
//	                              │
//	                              ▼
//	┌─────────────────────────────────────────────────────────────────┐
//	│                      Services Layer                             │
//	│  Sessions (Workflow) │ RunService │ ConfigurationStore          │
//	└─────────────────────────────────────────────────────────────────┘
//
// # API Endpoints
//
// Session Endpoints (sessions.go):
//
//	┌────────┬──────────────────────────────┬───────────────────────────────────────┐
//	│ Method │ Endpoint                     │ Description                           │
//	├────────┼──────────────────────────────┼───────────────────────────────────────┤
//	│ GET    │ /platforms                   │ Supported source/destination tags     │
//	│ GET    │ /sessions                    │ List sessions                         │
//	│ POST   │ /sessions                    │ Create a session (initial)            │
//	│ GET    │ /sessions/{id}               │ Session status, inventory, result     │
//	│ DELETE │ /sessions/{id}               │ Close and forget a session            │
//	│ PUT    │ /sessions/{id}/platforms     │ Select source and destination         │
//	│ PUT    │ /sessions/{id}/source        │ Authenticate source, list VMs         │
//	│ PUT    │ /sessions/{id}/selection     │ Select VMs ("1,3,5-7")                │
//	│ PUT    │ /sessions/{id}/destination   │ Authenticate destination              │
//	│ POST   │ /sessions/{id}/migration     │ Start migration (202)                 │
//	│ DELETE │ /sessions/{id}/migration     │ Abort migration (202)                 │
//	└────────┴──────────────────────────────┴───────────────────────────────────────┘
//
// Run Endpoints (runs.go):
//
//	┌────────┬──────────────────────┬───────────────────────────────────────────┐
//	│ Method │ Endpoint             │ Description                               │
//	├────────┼──────────────────────┼───────────────────────────────────────────┤
//	│ GET    │ /runs                │ History, filter by destination / failed   │
//	│ GET    │ /runs/{id}           │ One run with per-VM outcomes              │
//	│ GET    │ /runs/{id}/report    │ Run as an xlsx workbook                   │
//	└────────┴──────────────────────┴───────────────────────────────────────────┘
//
// Configuration Endpoints (configuration.go):
//
//	┌────────┬──────────────────────────────┬───────────────────────────────────┐
//	│ Method │ Endpoint                     │ Description                       │
//	├────────┼──────────────────────────────┼───────────────────────────────────┤
//	│ GET    │ /configuration               │ Persisted document, no secrets    │
//	│ PUT    │ /configuration/operational   │ Storage target and export tooling │
//	└────────┴──────────────────────────────┴───────────────────────────────────┘
//
// # Migration
//
// POST /sessions/{id}/migration returns as soon as the session is
// migration_running. The run continues under the agent context, not the
// request context; poll GET /sessions/{id} until the phase is
// migration_complete or migration_failed.
//
// # Error Handling
//
// Handlers use a consistent error response format:
//
//	{ "error": "error message" }
//
// HTTP Status Code Mapping:
//
//	┌─────────────────────────────┬────────┬──────────────────────────────────┐
//	│ Error Type                  │ Status │ When                             │
//	├─────────────────────────────┼────────┼──────────────────────────────────┤
//	│ Binding error               │ 400    │ Missing or invalid fields        │
//	│ MalformedSelectionError     │ 400    │ Selection does not parse         │
//	│ OutOfRangeError             │ 400    │ Ordinal outside the inventory    │
//	│ UnsupportedPlatformError    │ 400    │ No connector for the platform    │
//	│ ConnectionError/Unauthorized│ 401    │ Credentials rejected             │
//	│ ResourceNotFoundError       │ 404    │ Unknown session or run           │
//	│ OutOfOrderTransitionError   │ 409    │ Step called in the wrong phase   │
//	│ MigrationInProgressError    │ 409    │ Session busy in a transition     │
//	│ ConnectionError/Unreachable │ 502    │ Host down or refusing            │
//	│ ConnectionError/Protocol    │ 502    │ Unexpected platform response     │
//	│ ConnectionError/Timeout     │ 504    │ No answer in time                │
//	│ Anything else               │ 500    │ Persistence, corrupt document    │
//	└─────────────────────────────┴────────┴──────────────────────────────────┘
package handlers
