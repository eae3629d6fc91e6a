package vmware

import (
	"context"
	"fmt"

	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/types"
)

// RequiredPrivileges are needed to enumerate VMs and export them with the export tool.
var RequiredPrivileges = []string{
	"System.View",
	"System.Read",
	"VirtualMachine.Provisioning.GetVmFiles",
	"VirtualMachine.Provisioning.ExportOvf",
}

type MissingPrivilegesError struct {
	User    string
	Missing []string
}

func (e *MissingPrivilegesError) Error() string {
	return fmt.Sprintf("user %s is missing required privileges: %v", e.User, e.Missing)
}

// ValidateUserPrivilegesOnEntity checks whether the specified user has all the required privileges
// on a given vSphere entity (e.g., VM, folder, datacenter).
func ValidateUserPrivilegesOnEntity(
	ctx context.Context,
	client *vim25.Client,
	ref types.ManagedObjectReference,
	requiredPrivileges []string,
	username string,
) error {
	authManager := object.NewAuthorizationManager(client)

	results, err := authManager.FetchUserPrivilegeOnEntities(ctx, []types.ManagedObjectReference{ref}, username)
	if err != nil {
		return fmt.Errorf("failed to fetch user privileges: %w", err)
	}

	if len(results) == 0 {
		return fmt.Errorf("no privileges returned for user %s", username)
	}

	granted := make(map[string]bool, len(results[0].Privileges))
	for _, p := range results[0].Privileges {
		granted[p] = true
	}

	var missing []string
	for _, req := range requiredPrivileges {
		if !granted[req] {
			missing = append(missing, req)
		}
	}

	if len(missing) > 0 {
		return &MissingPrivilegesError{User: username, Missing: missing}
	}

	return nil
}

// ValidatePrivileges checks the session user against the inventory root folder.
func (s *Session) ValidatePrivileges(ctx context.Context, requiredPrivileges []string) error {
	return ValidateUserPrivilegesOnEntity(ctx, s.gc.Client, s.gc.ServiceContent.RootFolder, requiredPrivileges, s.username)
}
