package wisc

// Kernel is an opaque compiled-module descriptor: WGSL source text plus
// the entry point to dispatch. The source is treated as inert data and
// handed untouched to each device's shader compiler.
type Kernel struct {
	// Source is the WGSL module text.
	Source string
	// EntryPoint is the compute entry point name within the module.
	EntryPoint string
	// Label optionally names the module in captures and error messages.
	Label string
}
