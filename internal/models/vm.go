package models

type PowerState string

const (
	PowerStateOn        PowerState = "poweredOn"
	PowerStateOff       PowerState = "poweredOff"
	PowerStateSuspended PowerState = "suspended"
)

// VM describes a virtual machine discovered on the source platform.
// Ordinal is the 1-based position in the discovery result and is only
// meaningful for the snapshot it came from.
type VM struct {
	Ordinal    int
	ID         string
	Name       string
	PowerState PowerState
}
