package v1

import (
	"github.com/kubev2v/esxi-migration-agent/internal/models"
	"github.com/kubev2v/esxi-migration-agent/internal/util"
)

func (s *SessionStatus) FromModel(m models.SessionStatus) {
	s.Id = m.ID.String()
	s.Phase = m.Phase.String()
	s.Source = util.PtrOrNil(string(m.Source))
	s.Destination = util.PtrOrNil(string(m.Destination))
	s.UpdatedAt = m.UpdatedAt

	s.Inventory = make([]VM, 0, len(m.Inventory))
	for _, vm := range m.Inventory {
		s.Inventory = append(s.Inventory, NewVMFromModel(vm))
	}

	s.SelectedVms = m.SelectedVms
	if s.SelectedVms == nil {
		s.SelectedVms = []int{}
	}

	if m.Result != nil {
		r := NewMigrationResultFromModel(*m.Result)
		s.Result = &r
	}
	if m.Error != nil {
		s.Error = util.Ptr(m.Error.Error())
	}
}

func NewSessionStatus(m models.SessionStatus) SessionStatus {
	var s SessionStatus
	s.FromModel(m)
	return s
}

func NewVMFromModel(vm models.VM) VM {
	return VM{
		Ordinal:    vm.Ordinal,
		Id:         vm.ID,
		Name:       vm.Name,
		PowerState: string(vm.PowerState),
	}
}

// NewMigrationResultFromModel converts a run. History summaries carry counts
// but no items, so Succeeded and Failed are empty for them.
func NewMigrationResultFromModel(r models.MigrationResult) MigrationResult {
	apiResult := MigrationResult{
		Id:             r.ID.String(),
		Source:         string(r.Source),
		Destination:    string(r.Destination),
		TotalRequested: r.TotalRequested,
		SucceededCount: r.SucceededCount,
		FailedCount:    r.FailedCount,
		Succeeded:      r.Succeeded(),
		Failed:         r.Failed(),
		Aborted:        r.Aborted,
		Items:          make([]VMResult, 0, len(r.Items)),
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
	}

	for _, item := range r.Items {
		apiItem := VMResult{
			Ordinal:  item.Ordinal,
			Name:     item.VMName,
			Outcome:  string(item.Outcome),
			Attempts: item.Attempts,
		}
		apiItem.Reason = util.PtrOrNil(item.Reason)
		apiItem.TargetId = util.PtrOrNil(item.TargetID)
		if !item.StartedAt.IsZero() {
			apiItem.StartedAt = util.Ptr(item.StartedAt)
		}
		if !item.FinishedAt.IsZero() {
			apiItem.FinishedAt = util.Ptr(item.FinishedAt)
		}
		apiResult.Items = append(apiResult.Items, apiItem)
	}

	return apiResult
}

// NewConfigurationFromModel drops every credential from the document.
func NewConfigurationFromModel(doc models.ConfigDocument) Configuration {
	c := Configuration{
		SelectedVms: doc.SelectedVms,
		Operational: Operational{
			StorageTarget:  doc.StorageTarget,
			ExportRoot:     doc.ExportRoot,
			ExportToolPath: doc.ExportToolPath,
		},
	}
	if c.SelectedVms == nil {
		c.SelectedVms = []int{}
	}

	if doc.Source.Host != "" {
		c.Source = &Account{Host: doc.Source.Host, User: doc.Source.User}
	}

	switch doc.Destination.Platform {
	case models.PlatformProxmox:
		c.Destination = &Destination{
			Platform: string(models.PlatformProxmox),
			Account:  Account{Host: doc.Destination.Proxmox.Host, User: doc.Destination.Proxmox.User},
		}
	case models.PlatformKVM:
		c.Destination = &Destination{
			Platform:    string(models.PlatformKVM),
			Account:     Account{Host: doc.Destination.Kvm.Host, User: doc.Destination.Kvm.User},
			StoragePool: util.Ptr(doc.Destination.Kvm.StoragePool),
		}
	}

	return c
}

func (o Operational) ToModel() models.Operational {
	return models.Operational{
		StorageTarget:  o.StorageTarget,
		ExportRoot:     o.ExportRoot,
		ExportToolPath: o.ExportToolPath,
	}
}

func (c CredentialsRequest) ToModel() models.Credentials {
	return models.Credentials{
		Host:       c.Host,
		User:       c.User,
		Credential: c.Password,
	}
}
