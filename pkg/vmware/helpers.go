package vmware

import (
	"cmp"
	"errors"
	"net"
	"net/url"
	"slices"
	"strconv"

	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
	"github.com/kubev2v/esxi-migration-agent/pkg/connector"
	srvErrors "github.com/kubev2v/esxi-migration-agent/pkg/errors"
)

const unknownID = "unknown"

// sdkURL builds the SDK endpoint for host. A host without a port gets the default one.
func sdkURL(host string, port int, creds models.Credentials) *url.URL {
	hostport := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		hostport = net.JoinHostPort(host, strconv.Itoa(port))
	}
	return &url.URL{
		Scheme: "https",
		Host:   hostport,
		Path:   "/sdk",
		User:   url.UserPassword(creds.User, creds.Credential),
	}
}

// classify maps SOAP faults to connection error kinds and defers
// everything else to the transport classification.
func classify(err error, host string) error {
	if err == nil {
		return nil
	}
	var missing *MissingPrivilegesError
	if errors.As(err, &missing) {
		return srvErrors.NewConnectionError(srvErrors.Unauthorized, string(models.PlatformESXi), host, err)
	}
	if soap.IsSoapFault(err) {
		kind := srvErrors.ProtocolError
		switch soap.ToSoapFault(err).VimFault().(type) {
		case types.InvalidLogin, *types.InvalidLogin,
			types.NoPermission, *types.NoPermission,
			types.NotAuthenticated, *types.NotAuthenticated:
			kind = srvErrors.Unauthorized
		}
		return srvErrors.NewConnectionError(kind, string(models.PlatformESXi), host, err)
	}
	return connector.Classify(err, models.PlatformESXi, host)
}

func vmID(vm mo.VirtualMachine) string {
	if vm.Config != nil && vm.Config.InstanceUuid != "" {
		return vm.Config.InstanceUuid
	}
	if vm.Summary.Config.Uuid != "" {
		return vm.Summary.Config.Uuid
	}
	return unknownID
}

// toInventory converts retrieved VMs and assigns ordinals 1..n after sorting by
// name then id, so repeated listings of an unchanged host agree.
func toInventory(vms []mo.VirtualMachine) []models.VM {
	inventory := make([]models.VM, 0, len(vms))
	for _, vm := range vms {
		inventory = append(inventory, models.VM{
			ID:         vmID(vm),
			Name:       vm.Name,
			PowerState: models.PowerState(vm.Runtime.PowerState),
		})
	}

	slices.SortStableFunc(inventory, func(a, b models.VM) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	for i := range inventory {
		inventory[i].Ordinal = i + 1
	}
	return inventory
}
