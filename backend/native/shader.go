package native

import (
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// compileShaderSource lowers WGSL to SPIR-V via naga. Some hal backends
// accept WGSL directly, so a naga failure falls back to passing the source
// through unchanged and letting the driver compile it.
func compileShaderSource(wgsl string) (hal.ShaderSource, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return hal.ShaderSource{WGSL: wgsl}, nil
	}

	// SPIR-V is little-endian 32-bit words.
	spirv := make([]uint32, len(spirvBytes)/4)
	for i := range spirv {
		spirv[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}

	return hal.ShaderSource{SPIRV: spirv}, nil
}
