package build

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/latticeml/forge/envconfig"
)

// Supports `9.0`, `9.0+PTX`, `9.0a+PTX` etc.
var archRe = regexp.MustCompile(`^(?P<major>[0-9]+)\.(?P<minor>[0-9])(?P<suffix>[a-zA-Z]?)(?P<ptx>\+PTX)?$`)

// Arch is a single entry of a CUDA architecture list.
type Arch struct {
	Major  int
	Minor  int
	Suffix string // arch-specific feature suffix, e.g. the "a" in 9.0a
	PTX    bool   // also embed PTX for forward compatibility
}

// Num returns the SM number, e.g. 80 for 8.0.
func (a Arch) Num() int {
	return 10*a.Major + a.Minor
}

// ParseArchList parses an architecture list of the form "8.0;8.6+PTX".
// Spaces are accepted as separators. A malformed entry is fatal.
func ParseArchList(list string) ([]Arch, error) {
	var archs []Arch
	for _, entry := range strings.Split(strings.ReplaceAll(list, " ", ";"), ";") {
		if entry == "" {
			continue
		}
		m := archRe.FindStringSubmatch(entry)
		if m == nil {
			return nil, fmt.Errorf("invalid sm version: %s", entry)
		}
		major, _ := strconv.Atoi(m[1])
		minor, _ := strconv.Atoi(m[2])
		archs = append(archs, Arch{
			Major:  major,
			Minor:  minor,
			Suffix: m[3],
			PTX:    m[4] != "",
		})
	}
	return archs, nil
}

// targetArchs resolves the architecture list to build for, from the
// environment or the detected toolkit's default.
func targetArchs(cudaVersion int) ([]Arch, error) {
	list := envconfig.CudaArchList
	if list == "" {
		list = defaultArchList(cudaVersion)
	}
	return ParseArchList(list)
}

// defaultArchList picks targets the detected toolkit can compile for.
func defaultArchList(cudaVersion int) string {
	switch {
	case cudaVersion >= 1108:
		return "8.0;8.6;9.0"
	case cudaVersion > 1100:
		return "8.0;8.6"
	case cudaVersion == 1100:
		return "8.0"
	default:
		return ""
	}
}

// gencodeFlags expands an arch list into nvcc -gencode flags. Entries below
// minNum are dropped, as are SM90+ entries when the toolkit predates 11.8.
func gencodeFlags(archs []Arch, minNum, cudaVersion int) []string {
	var flags []string
	for _, a := range archs {
		num := a.Num()
		if num < minNum {
			continue
		}
		if num >= 90 && cudaVersion < 1108 {
			continue
		}
		flags = append(flags, fmt.Sprintf("-gencode=arch=compute_%d%s,code=sm_%d%s", num, a.Suffix, num, a.Suffix))
		if a.PTX {
			flags = append(flags, fmt.Sprintf("-gencode=arch=compute_%d%s,code=compute_%d%s", num, a.Suffix, num, a.Suffix))
		}
	}
	return flags
}
