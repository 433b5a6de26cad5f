package uvot

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/uvotredux/internal/photometry/photometrytest"
	"github.com/tphakala/uvotredux/internal/region"
	"github.com/tphakala/uvotredux/internal/toolrunner"
)

// stubRunner imitates uvotimsum and uvotsource by writing their output files
type stubRunner struct {
	mu    sync.Mutex
	calls []toolrunner.Invocation

	// fail returns a non-nil error to make an invocation fail
	fail func(inv toolrunner.Invocation) error
	// noOutput makes an invocation succeed without writing its output
	noOutput func(inv toolrunner.Invocation) bool
	// failAfterOutput writes the output and then returns a non-nil error
	failAfterOutput func(inv toolrunner.Invocation) error
}

func (s *stubRunner) Run(_ context.Context, inv toolrunner.Invocation) (toolrunner.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, inv)
	s.mu.Unlock()

	if s.fail != nil {
		if err := s.fail(inv); err != nil {
			return toolrunner.Result{ExitCode: 1}, err
		}
	}
	if s.noOutput != nil && s.noOutput(inv) {
		return toolrunner.Result{}, nil
	}

	switch inv.Name {
	case DefaultImSumTool:
		if err := os.WriteFile(inv.Args[len(inv.Args)-1], []byte("SIMPLE  =                    T"), 0o644); err != nil {
			return toolrunner.Result{ExitCode: 1}, err
		}
	case DefaultSourceTool:
		out := argValue(inv.Args, "outfile")
		if inv.LogPath != "" {
			if err := os.WriteFile(inv.LogPath, []byte("uvotsource done\n"), 0o644); err != nil {
				return toolrunner.Result{ExitCode: 1}, err
			}
		}
		filter := strings.TrimSuffix(filepath.Base(out), ".out")
		obsID := filepath.Base(filepath.Dir(filepath.Dir(filepath.Dir(out))))
		if err := photometrytest.WriteOutFile(out, photometrytest.Row{
			MET: metFor(obsID, filter), RA: 250.0767, Dec: 26.9259, Filter: filter,
			Exposure: 500, ABMag: 18, ABMagErr: 0.1, ABMagLim: 20.5,
		}); err != nil {
			return toolrunner.Result{ExitCode: 1}, err
		}
	}
	if s.failAfterOutput != nil {
		if err := s.failAfterOutput(inv); err != nil {
			return toolrunner.Result{ExitCode: 1}, err
		}
	}
	return toolrunner.Result{}, nil
}

func (s *stubRunner) invocations(name string) []toolrunner.Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.DeleteFunc(slices.Clone(s.calls), func(inv toolrunner.Invocation) bool {
		return inv.Name != name
	})
}

func argValue(args []string, key string) string {
	for _, a := range args {
		if v, ok := strings.CutPrefix(a, key+"="); ok {
			return v
		}
	}
	return ""
}

// metFor gives every (observation, filter) a distinct time, later
// observations being later in time
func metFor(obsID, filter string) float64 {
	n, _ := strconv.Atoi(obsID[len(obsID)-3:])
	return float64(n)*100000 + float64(slices.Index(Filters(), filter))*1000
}

func imageName(obsID, code string) string {
	return "sw" + obsID + "u" + code + "_sk.img"
}

// makeObservation creates <batch>/<obsID>/uvot/image with one compressed
// raw image per filter code
func makeObservation(t *testing.T, batch, obsID string, codes ...string) string {
	t.Helper()
	dir := filepath.Join(batch, obsID, imageSubdir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, code := range codes {
		writeGzip(t, filepath.Join(dir, imageName(obsID, code)+".gz"), []byte("raw "+code))
	}
	return dir
}

func writeGzip(t *testing.T, path string, content []byte) {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(content)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func makeRegions(t *testing.T, batch string) region.Pair {
	t.Helper()
	pair, err := region.Create(batch, 250.0767333333, 26.9258638889, region.DefaultOptions())
	require.NoError(t, err)
	return pair
}
