package store

import "database/sql"

// Store provides access to all storage repositories.
type Store struct {
	db            *sql.DB
	configuration *ConfigurationStore
	runs          *RunStore
}

// NewStore wires the configuration document at documentPath and the run
// history kept in db.
func NewStore(db *sql.DB, documentPath string) *Store {
	return &Store{
		db:            db,
		configuration: NewConfigurationStore(documentPath),
		runs:          NewRunStore(NewQueryInterceptor(db)),
	}
}

func (s *Store) Configuration() *ConfigurationStore {
	return s.configuration
}

func (s *Store) Runs() *RunStore {
	return s.runs
}

func (s *Store) Close() error {
	return s.db.Close()
}
