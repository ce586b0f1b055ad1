//go:build !windows

package discover

const (
	nvccName  = "nvcc"
	hipccName = "hipcc"
)

var RocmStandardLocations = []string{"/opt/rocm"}
