package discover

const (
	nvccName  = "nvcc.exe"
	hipccName = "hipcc.exe"
)

var RocmStandardLocations = []string{`C:\Program Files\AMD\ROCm`}
