// Package ovftool builds export tool invocations that pull a VM from the
// source host into an OVF directory on the destination host.
package ovftool

import (
	"net/url"
	"path"
	"strings"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
)

// Locator returns the vi:// URL of a VM on the source host.
func Locator(source models.Credentials, vmName string) string {
	u := url.URL{
		Scheme: "vi",
		User:   url.UserPassword(source.User, source.Credential),
		Host:   source.Host,
		Path:   "/" + vmName,
	}
	return u.String()
}

// ExportArgs returns the argv exporting vmName into exportRoot. The tool
// creates exportRoot/<dir>/<dir>.ovf where dir is DirName(vmName).
func ExportArgs(tool string, source models.Credentials, vmName, exportRoot string) []string {
	if tool == "" {
		tool = models.DefaultExportToolPath
	}
	return []string{
		tool,
		"--noSSLVerify",
		"--acceptAllEulas",
		"--overwrite",
		"--name=" + DirName(vmName),
		Locator(source, vmName),
		exportRoot,
	}
}

// DirName is the file system safe name used for the export directory and OVF file.
func DirName(vmName string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", " ", "_", ":", "_")
	name := r.Replace(strings.TrimSpace(vmName))
	if name == "" || name == "." || name == ".." {
		return "vm"
	}
	return name
}

// ExportDir is the directory holding the exported VM.
func ExportDir(exportRoot, vmName string) string {
	return path.Join(exportRoot, DirName(vmName))
}

// OVFPath is the descriptor written by an export.
func OVFPath(exportRoot, vmName string) string {
	name := DirName(vmName)
	return path.Join(exportRoot, name, name+".ovf")
}
