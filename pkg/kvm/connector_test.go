package kvm_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
	"github.com/kubev2v/esxi-migration-agent/pkg/connector"
	srvErrors "github.com/kubev2v/esxi-migration-agent/pkg/errors"
	"github.com/kubev2v/esxi-migration-agent/pkg/kvm"
	"github.com/kubev2v/esxi-migration-agent/pkg/sshexec"
	"github.com/kubev2v/esxi-migration-agent/test"
)

var _ = Describe("Connector", func() {
	var (
		ctx     context.Context
		remote  *test.MockRemote
		targets []sshexec.Target
		target  connector.DestinationTarget
		vm      models.VM
	)

	BeforeEach(func() {
		ctx = context.Background()
		remote = test.NewMockRemote(test.RemoteRule{
			Match:  "'version'",
			Result: sshexec.Result{Stdout: []string{"Compiled against library: libvirt 9.0.0", "Using library: libvirt 9.0.0"}},
		})
		remote.Dirs["/var/lib/libvirt/images"] = true
		targets = nil
		target = connector.DestinationTarget{
			Credentials: models.Credentials{Host: "kvm-01", User: "kvmuser", Credential: "kvm-secret"},
			ExportRoot:  "/home/kvmuser/exports",
			Source:      models.Credentials{Host: "esxi-01", User: "root", Credential: "esxi-secret"},
		}
		vm = models.VM{Ordinal: 2, ID: "uuid-2", Name: "db 01", PowerState: models.PowerStateOn}
	})

	authenticate := func() connector.DestinationSession {
		session, err := kvm.NewConnector(kvm.WithDialer(remote.Dialer(&targets))).Authenticate(ctx, target)
		Expect(err).NotTo(HaveOccurred())
		return session
	}

	Context("Authenticate", func() {
		It("uses the default storage pool and checks libvirt", func() {
			authenticate()

			Expect(targets).To(HaveLen(1))
			Expect(targets[0].Host).To(Equal("kvm-01"))
			Expect(remote.Sudoed).To(ContainElement("'virsh' '-c' 'qemu:///system' 'version'"))
		})

		It("fails when the storage pool is missing", func() {
			target.StoragePool = "/srv/pool"

			_, err := kvm.NewConnector(kvm.WithDialer(remote.Dialer(&targets))).Authenticate(ctx, target)

			kind, ok := srvErrors.ConnectionErrorKindOf(err)
			Expect(ok).To(BeTrue())
			Expect(kind).To(Equal(srvErrors.ProtocolError))
			Expect(remote.Closed).To(BeTrue())
		})

		It("passes dial errors through", func() {
			dialErr := srvErrors.NewConnectionError(srvErrors.Unauthorized, "kvm", "kvm-01", errors.New("denied"))
			dial := func(context.Context, sshexec.Target) (sshexec.Remote, error) { return nil, dialErr }

			_, err := kvm.NewConnector(kvm.WithDialer(dial)).Authenticate(ctx, target)

			Expect(err).To(BeIdenticalTo(dialErr))
		})
	})

	Context("MigrateOne", func() {
		It("converts, defines and verifies the domain", func() {
			session := authenticate()

			step, err := session.MigrateOne(ctx, vm)

			Expect(err).NotTo(HaveOccurred())
			Expect(step.TargetID).To(Equal("db_01"))
			Expect(remote.Ran("'virt-v2v' '-i' 'ova' '/home/kvmuser/exports/db_01' '-o' 'local' '-os' '/var/lib/libvirt/images' '-of' 'qcow2' '-on' 'db_01'")).To(BeTrue())
			Expect(remote.Ran("'define' '/var/lib/libvirt/images/db_01.xml'")).To(BeTrue())
			Expect(remote.Ran("'dominfo' 'db_01'")).To(BeTrue())
			Expect(remote.Removed).To(ConsistOf("/home/kvmuser/exports/db_01"))
		})

		It("stops at the first failing step", func() {
			remote.Rules = append(remote.Rules, test.RemoteRule{
				Match:  "virt-v2v",
				Result: sshexec.Result{ExitCode: 1, Stderr: []string{"virt-v2v: error: no guest operating system found"}},
			})
			session := authenticate()

			_, err := session.MigrateOne(ctx, vm)

			Expect(srvErrors.IsMigrationStepFailure(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("convert exited with code 1"))
			Expect(remote.Ran("'define'")).To(BeFalse())
			Expect(remote.Removed).To(ConsistOf("/home/kvmuser/exports/db_01"))
		})

		It("removes partial disks when the conversion fails", func() {
			remote.Rules = append(remote.Rules, test.RemoteRule{
				Match:  "virt-v2v",
				Result: sshexec.Result{ExitCode: 1, Stderr: []string{"virt-v2v: error: disk full"}},
			})
			session := authenticate()

			_, err := session.MigrateOne(ctx, vm)

			Expect(srvErrors.IsMigrationStepFailure(err)).To(BeTrue())
			Expect(remote.Ran("rm -f -- ")).To(BeTrue())
			Expect(remote.Ran("/var/lib/libvirt/images/db_01")).To(BeTrue())
			Expect(remote.Ran("-sd*")).To(BeTrue())
			Expect(remote.Ran("'undefine'")).To(BeFalse())
		})

		It("undefines the domain when verification fails", func() {
			// Given a domain that was defined but libvirt cannot describe
			remote.Rules = append(remote.Rules, test.RemoteRule{
				Match:  "'dominfo'",
				Result: sshexec.Result{ExitCode: 1, Stderr: []string{"error: failed to get domain 'db_01'"}},
			})
			session := authenticate()

			// When migrating
			_, err := session.MigrateOne(ctx, vm)

			// Then nothing the attempt created is left behind
			Expect(srvErrors.IsMigrationStepFailure(err)).To(BeTrue())
			Expect(remote.Ran("'virsh' '-c' 'qemu:///system' 'undefine' 'db_01'")).To(BeTrue())
			Expect(remote.Ran("rm -f -- ")).To(BeTrue())
		})

		It("returns transport errors unchanged so they can be retried", func() {
			timeout := srvErrors.NewConnectionError(srvErrors.Timeout, "kvm", "kvm-01", context.DeadlineExceeded)
			remote.Rules = append(remote.Rules, test.RemoteRule{Match: "ovftool", Err: timeout})
			session := authenticate()

			_, err := session.MigrateOne(ctx, vm)

			Expect(err).To(BeIdenticalTo(timeout))
			Expect(remote.Ran("rm -f -- ")).To(BeFalse())
		})
	})
})
