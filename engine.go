package blesniffer

import "github.com/hatstand/blesniffer/rfcore"

// Engine is the radio command engine. It executes operations and the chains
// they link to on its own clock once Run returns.
//
// While an operation runs the engine fills entries of op.Params.RxQueue,
// updates op.Output and the status of every operation in the chain, and
// calls onEntryDone once per completed entry. Calls to onEntryDone are never
// concurrent with each other.
type Engine interface {
	Open() error
	Run(op *rfcore.Operation, onEntryDone func()) error
	Direct(cmd rfcore.DirectCommand) error
	Close() error
}

// StatusSyncer is implemented by engines that keep operation statuses in
// their own memory and copy them to the host only on events. SyncStatus
// copies them now.
type StatusSyncer interface {
	SyncStatus() error
}
