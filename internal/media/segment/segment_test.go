package segment

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"recap/internal/media"
	"recap/internal/services"
)

func TestPlanSingleChunkAtOrBelowThreshold(t *testing.T) {
	for _, d := range []float64{0.5, 60, 2399.9, 2400} {
		spans, err := Plan(d, 2400)
		if err != nil {
			t.Fatalf("Plan(%v) returned error: %v", d, err)
		}
		if len(spans) != 1 || spans[0].Start != 0 || spans[0].End != d {
			t.Fatalf("Plan(%v) = %+v, want single [0,%v]", d, spans, d)
		}
	}
}

func TestPlanEqualDivision(t *testing.T) {
	cases := []struct {
		duration float64
		chunk    float64
	}{
		{4500, 2400},
		{2400.1, 2400},
		{7200, 2400},
		{10000, 2400},
		{12345.678, 600},
	}
	for _, tc := range cases {
		spans, err := Plan(tc.duration, tc.chunk)
		if err != nil {
			t.Fatalf("Plan returned error: %v", err)
		}
		wantCount := int(math.Ceil(tc.duration / tc.chunk))
		if len(spans) != wantCount {
			t.Fatalf("Plan(%v,%v): expected %d spans, got %d", tc.duration, tc.chunk, wantCount, len(spans))
		}
		want := tc.duration / float64(wantCount)
		var sum float64
		for i, span := range spans {
			if math.Abs(span.Length()-want) > 1e-6 {
				t.Fatalf("span %d length %v, want %v", i, span.Length(), want)
			}
			if i > 0 && span.Start != spans[i-1].End {
				t.Fatalf("span %d not contiguous: %+v after %+v", i, span, spans[i-1])
			}
			sum += span.Length()
		}
		if spans[0].Start != 0 || spans[len(spans)-1].End != tc.duration {
			t.Fatalf("spans must cover [0,%v]: %+v", tc.duration, spans)
		}
		if math.Abs(sum-tc.duration) > 1e-6 {
			t.Fatalf("spans sum to %v, want %v", sum, tc.duration)
		}
	}
}

func TestPlanScenario4500(t *testing.T) {
	spans, err := Plan(4500, 2400)
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if len(spans) != 2 || spans[0].End != 2250 || spans[1].Length() != 2250 {
		t.Fatalf("expected two 2250s spans, got %+v", spans)
	}
}

func TestPlanRejectsInvalidInput(t *testing.T) {
	if _, err := Plan(0, 2400); !errors.Is(err, services.ErrSegmentation) {
		t.Fatalf("expected segmentation error, got %v", err)
	}
	if _, err := Plan(100, 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

// fakeTool writes chunk files and reports durations slightly off the plan.
type fakeTool struct {
	calls     int
	skip      map[int]bool
	durations map[string]float64
	drift     float64
	fail      error
}

func (f *fakeTool) ExtractRange(_ context.Context, _ string, start, duration float64, dest string) error {
	idx := f.calls
	f.calls++
	if f.fail != nil {
		return f.fail
	}
	if f.skip[idx] {
		return nil
	}
	if f.durations == nil {
		f.durations = map[string]float64{}
	}
	f.durations[dest] = duration + f.drift
	return os.WriteFile(dest, []byte("chunk"), 0o644)
}

func (f *fakeTool) Duration(_ context.Context, path string) (float64, error) {
	d, ok := f.durations[path]
	if !ok {
		return 0, errors.New("no such file")
	}
	return d, nil
}

func sourceFile(t *testing.T, duration float64) media.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lecture.m4a")
	if err := os.WriteFile(path, []byte("src"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return media.File{Path: path, Kind: media.KindAudio, Duration: duration}
}

func TestSegmentSingleUnitSkipsSplit(t *testing.T) {
	tool := &fakeTool{}
	seg := New(tool, tool, t.TempDir(), nil)
	file, err := seg.Segment(context.Background(), sourceFile(t, 1200), 2400)
	if err != nil {
		t.Fatalf("Segment returned error: %v", err)
	}
	if tool.calls != 0 {
		t.Fatalf("expected no split calls, got %d", tool.calls)
	}
	if len(file.Chunks) != 1 || file.Chunks[0].Path != file.Path || file.Chunked() {
		t.Fatalf("expected single implicit chunk, got %+v", file.Chunks)
	}
}

func TestSegmentUsesMeasuredDurations(t *testing.T) {
	tool := &fakeTool{drift: 0.25}
	seg := New(tool, tool, t.TempDir(), nil)
	src := sourceFile(t, 4500)
	file, err := seg.Segment(context.Background(), src, 2400)
	if err != nil {
		t.Fatalf("Segment returned error: %v", err)
	}
	if len(file.Chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(file.Chunks))
	}
	first, second := file.Chunks[0], file.Chunks[1]
	if first.Start != 0 || first.End != 2250 || second.Start != 2250 {
		t.Fatalf("planned boundaries changed: %+v %+v", first, second)
	}
	if first.ActualDuration != 2250.25 || second.ActualStart != 2250.25 {
		t.Fatalf("expected measured offsets, got %+v %+v", first, second)
	}
	if !strings.HasSuffix(second.Path, "lecture_chunk001.m4a") {
		t.Fatalf("unexpected chunk path %q", second.Path)
	}
	if filepath.Dir(second.Path) != seg.ChunkDir(src) {
		t.Fatalf("chunk not under chunk dir: %q", second.Path)
	}

	if err := seg.Cleanup(file); err != nil {
		t.Fatalf("Cleanup returned error: %v", err)
	}
	if _, err := os.Stat(seg.ChunkDir(src)); !os.IsNotExist(err) {
		t.Fatalf("expected chunk dir removed, stat err=%v", err)
	}
	if _, err := os.Stat(src.Path); err != nil {
		t.Fatalf("source must survive cleanup: %v", err)
	}
}

func TestSegmentReusesExistingChunks(t *testing.T) {
	tool := &fakeTool{}
	seg := New(tool, tool, t.TempDir(), nil)
	src := sourceFile(t, 4500)
	if _, err := seg.Segment(context.Background(), src, 2400); err != nil {
		t.Fatalf("first Segment returned error: %v", err)
	}
	if tool.calls != 2 {
		t.Fatalf("expected 2 extractions, got %d", tool.calls)
	}
	again, err := seg.Segment(context.Background(), src, 2400)
	if err != nil {
		t.Fatalf("second Segment returned error: %v", err)
	}
	if tool.calls != 2 {
		t.Fatalf("expected existing chunks reused, extraction calls=%d", tool.calls)
	}
	if again.Chunks[1].Start != 2250 || again.Chunks[1].Index != 1 {
		t.Fatalf("resumed plan must keep boundaries: %+v", again.Chunks[1])
	}
}

func TestSplitMismatch(t *testing.T) {
	tool := &fakeTool{skip: map[int]bool{1: true}}
	seg := New(tool, tool, t.TempDir(), nil)
	_, err := seg.Segment(context.Background(), sourceFile(t, 7200), 2400)
	if !errors.Is(err, services.ErrSegmentation) {
		t.Fatalf("expected segmentation error, got %v", err)
	}
	var mismatch *MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected MismatchError, got %T", err)
	}
	if mismatch.Planned != 3 || mismatch.Produced != 2 || len(mismatch.Missing) != 1 || mismatch.Missing[0] != 1 {
		t.Fatalf("unexpected mismatch %+v", mismatch)
	}
}

func TestSplitToolFailure(t *testing.T) {
	tool := &fakeTool{fail: errors.New("exit status 1")}
	seg := New(tool, tool, t.TempDir(), nil)
	_, err := seg.Segment(context.Background(), sourceFile(t, 4800.5), 2400)
	if !errors.Is(err, services.ErrMediaTool) {
		t.Fatalf("expected media tool error, got %v", err)
	}
}
