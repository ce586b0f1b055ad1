package build

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArchList(t *testing.T) {
	type testCase struct {
		input  string
		expect []Arch
		err    bool
	}

	testCases := map[string]*testCase{
		"single": {
			input:  "8.0",
			expect: []Arch{{Major: 8, Minor: 0}},
		},
		"semicolons": {
			input:  "8.0;8.6",
			expect: []Arch{{Major: 8, Minor: 0}, {Major: 8, Minor: 6}},
		},
		"spaces": {
			input:  "8.0 8.6",
			expect: []Arch{{Major: 8, Minor: 0}, {Major: 8, Minor: 6}},
		},
		"ptx": {
			input:  "9.0+PTX",
			expect: []Arch{{Major: 9, Minor: 0, PTX: true}},
		},
		"suffix and ptx": {
			input:  "9.0a+PTX",
			expect: []Arch{{Major: 9, Minor: 0, Suffix: "a", PTX: true}},
		},
		"empty entries skipped": {
			input:  ";8.0;;",
			expect: []Arch{{Major: 8, Minor: 0}},
		},
		"empty list": {input: "", expect: nil},
		"no minor":   {input: "8", err: true},
		"garbage":    {input: "sm80", err: true},
		"trailing":   {input: "8.0junk", err: true},
	}

	for k, v := range testCases {
		t.Run(k, func(t *testing.T) {
			archs, err := ParseArchList(v.input)
			if v.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(v.expect, archs); diff != "" {
				t.Errorf("unexpected archs (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGencodeFlags(t *testing.T) {
	archs, err := ParseArchList("7.5;8.0;8.6+PTX;9.0a")
	require.NoError(t, err)

	t.Run("no minimum", func(t *testing.T) {
		flags := gencodeFlags(archs, 0, 1201)
		assert.Equal(t, []string{
			"-gencode=arch=compute_75,code=sm_75",
			"-gencode=arch=compute_80,code=sm_80",
			"-gencode=arch=compute_86,code=sm_86",
			"-gencode=arch=compute_86,code=compute_86",
			"-gencode=arch=compute_90a,code=sm_90a",
		}, flags)
	})

	t.Run("flash minimum drops old cards", func(t *testing.T) {
		flags := gencodeFlags(archs, 80, 1201)
		assert.NotContains(t, flags, "-gencode=arch=compute_75,code=sm_75")
		assert.Contains(t, flags, "-gencode=arch=compute_80,code=sm_80")
	})

	t.Run("sm90 needs cuda 11.8", func(t *testing.T) {
		flags := gencodeFlags(archs, 0, 1106)
		assert.NotContains(t, flags, "-gencode=arch=compute_90a,code=sm_90a")
	})
}

func TestDefaultArchList(t *testing.T) {
	type testCase struct {
		version int
		expect  string
	}

	testCases := map[string]*testCase{
		"modern":    {version: 1201, expect: "8.0;8.6;9.0"},
		"cuda 11.8": {version: 1108, expect: "8.0;8.6;9.0"},
		"cuda 11.4": {version: 1104, expect: "8.0;8.6"},
		"cuda 11.0": {version: 1100, expect: "8.0"},
		"too old":   {version: 1002, expect: ""},
	}

	for k, v := range testCases {
		t.Run(k, func(t *testing.T) {
			assert.Equal(t, v.expect, defaultArchList(v.version))
		})
	}
}
