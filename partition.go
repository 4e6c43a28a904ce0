package wisc

// PartitionMode is the per-binding policy describing how one logical
// buffer's contents are distributed across the session's devices for a
// dispatch. It is an extension point: only replication exists today, but
// sharding strategies (range, stride, weight-proportional) slot in
// without an interface change.
type PartitionMode interface {
	// Slice returns the byte range of src that device index (of total
	// devices) receives.
	Slice(src []byte, index, total int) []byte

	// String names the policy for logs.
	String() string
}

// PartitionReplicate copies the full, unmodified buffer to every device;
// every device computes over the whole range.
var PartitionReplicate PartitionMode = replicateMode{}

type replicateMode struct{}

func (replicateMode) Slice(src []byte, _, _ int) []byte { return src }

func (replicateMode) String() string { return "replicate" }
