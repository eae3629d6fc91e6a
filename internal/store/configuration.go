package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
	srvErrors "github.com/kubev2v/esxi-migration-agent/pkg/errors"
)

const lockRetryDelay = 50 * time.Millisecond

// ConfigurationStore persists the configuration document as a JSON file.
// Every update is a load-mutate-save cycle serialized by an in-process mutex
// and an advisory file lock, and touches exactly one section.
type ConfigurationStore struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
}

// NewConfigurationStore creates a store for the document at path.
func NewConfigurationStore(path string) *ConfigurationStore {
	return &ConfigurationStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

func (s *ConfigurationStore) Path() string {
	return s.path
}

// Load returns the persisted document, or the default document if none was saved yet.
func (s *ConfigurationStore) Load(ctx context.Context) (*models.ConfigDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.read()
}

// Save replaces the whole document.
func (s *ConfigurationStore) Save(ctx context.Context, doc *models.ConfigDocument) error {
	_, err := s.update(ctx, "document", func(d *models.ConfigDocument) {
		*d = *doc.Clone()
	})
	return err
}

// UpdateSource replaces the source section.
func (s *ConfigurationStore) UpdateSource(ctx context.Context, creds models.Credentials) (*models.ConfigDocument, error) {
	return s.update(ctx, "source", func(d *models.ConfigDocument) {
		d.Source = creds
	})
}

// UpdateDestinationProxmox makes Proxmox the active destination variant.
func (s *ConfigurationStore) UpdateDestinationProxmox(ctx context.Context, creds models.Credentials) (*models.ConfigDocument, error) {
	return s.update(ctx, "destination", func(d *models.ConfigDocument) {
		d.Destination = models.Destination{
			Platform: models.PlatformProxmox,
			Proxmox:  &models.ProxmoxDestination{Credentials: creds},
		}
	})
}

// UpdateDestinationKvm makes KVM the active destination variant. An empty
// storagePool keeps the previously stored pool, or the libvirt default.
func (s *ConfigurationStore) UpdateDestinationKvm(ctx context.Context, creds models.Credentials, storagePool string) (*models.ConfigDocument, error) {
	return s.update(ctx, "destination", func(d *models.ConfigDocument) {
		if storagePool == "" {
			storagePool = models.DefaultKvmStoragePool
			if d.Destination.Kvm != nil && d.Destination.Kvm.StoragePool != "" {
				storagePool = d.Destination.Kvm.StoragePool
			}
		}
		d.Destination = models.Destination{
			Platform: models.PlatformKVM,
			Kvm:      &models.KvmDestination{Credentials: creds, StoragePool: storagePool},
		}
	})
}

// UpdateSelectedVms replaces the selected ordinals. They are stored ascending and unique.
func (s *ConfigurationStore) UpdateSelectedVms(ctx context.Context, ordinals []int) (*models.ConfigDocument, error) {
	selected := slices.Clone(ordinals)
	slices.Sort(selected)
	selected = slices.Compact(selected)
	if selected == nil {
		selected = []int{}
	}

	return s.update(ctx, "selectedVms", func(d *models.ConfigDocument) {
		d.SelectedVms = selected
	})
}

// UpdateOperational replaces the export tooling parameters.
func (s *ConfigurationStore) UpdateOperational(ctx context.Context, op models.Operational) (*models.ConfigDocument, error) {
	return s.update(ctx, "operational", func(d *models.ConfigDocument) {
		d.Operational = op
	})
}

func (s *ConfigurationStore) update(ctx context.Context, section string, mutate func(*models.ConfigDocument)) (*models.ConfigDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return nil, srvErrors.NewPersistenceError(s.path, err)
	}

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, srvErrors.NewPersistenceError(s.lock.Path(), err)
	}
	if !locked {
		return nil, srvErrors.NewPersistenceError(s.lock.Path(), errors.New("document lock not acquired"))
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			zap.S().Named("configuration_store").Warnw("failed to release document lock", "path", s.lock.Path(), "error", err)
		}
	}()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}

	mutate(doc)

	if err := s.write(doc); err != nil {
		return nil, err
	}

	zap.S().Named("configuration_store").Debugw("configuration section updated", "section", section, "path", s.path)

	return doc.Clone(), nil
}

func (s *ConfigurationStore) read() (*models.ConfigDocument, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.NewDefaultConfigDocument(), nil
	}
	if err != nil {
		return nil, srvErrors.NewPersistenceError(s.path, err)
	}

	var doc models.ConfigDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, srvErrors.NewCorruptDocumentError(s.path, err)
	}
	if err := validateDestination(doc.Destination); err != nil {
		return nil, srvErrors.NewCorruptDocumentError(s.path, err)
	}
	if doc.SelectedVms == nil {
		doc.SelectedVms = []int{}
	}

	return &doc, nil
}

// write replaces the document atomically: temp file in the same directory,
// fsync, rename, then fsync the directory.
func (s *ConfigurationStore) write(doc *models.ConfigDocument) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return srvErrors.NewPersistenceError(s.path, err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return srvErrors.NewPersistenceError(s.path, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return srvErrors.NewPersistenceError(s.path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return srvErrors.NewPersistenceError(s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return srvErrors.NewPersistenceError(s.path, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return srvErrors.NewPersistenceError(s.path, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return srvErrors.NewPersistenceError(s.path, err)
	}
	committed = true

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	return nil
}

func encodeDocument(doc *models.ConfigDocument) ([]byte, error) {
	if doc.SelectedVms == nil {
		doc.SelectedVms = []int{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func validateDestination(d models.Destination) error {
	switch d.Platform {
	case "":
		if d.Proxmox != nil || d.Kvm != nil {
			return errors.New("destination variant present without a platform")
		}
	case models.PlatformProxmox:
		if d.Proxmox == nil || d.Kvm != nil {
			return errors.New("proxmox destination must carry only the proxmox variant")
		}
	case models.PlatformKVM:
		if d.Kvm == nil || d.Proxmox != nil {
			return errors.New("kvm destination must carry only the kvm variant")
		}
	default:
		return errors.New("unknown destination platform " + string(d.Platform))
	}
	return nil
}
