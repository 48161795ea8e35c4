package main

import (
	"context"
	"strings"
	"testing"

	"recap/internal/chunkstore"
	"recap/internal/media"
	"recap/internal/testsupport"
	"recap/internal/transcript"
)

func TestChunksListAndClear(t *testing.T) {
	env := setupCLITestEnv(t)
	src := env.mediaFile(t, "lecture.m4a")
	fp, err := media.Fingerprint(src)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}

	store := testsupport.MustOpenStore(t, env.cfg)
	ctx := context.Background()
	if err := store.SaveResult(ctx, chunkstore.Key{Fingerprint: fp, Index: 0, Start: 0, End: 1800, Backend: "server"},
		transcript.Result{Segments: []transcript.Segment{{Start: 0, End: 3, Text: "welcome"}}}, 1); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if err := store.SaveFailure(ctx, chunkstore.Key{Fingerprint: fp, Index: 1, Start: 1800, End: 3600, Backend: "server"},
		context.DeadlineExceeded, 3); err != nil {
		t.Fatalf("SaveFailure: %v", err)
	}

	out, _, err := runCLI(t, []string{"chunks", "list", src}, env.configPath)
	if err != nil {
		t.Fatalf("chunks list: %v", err)
	}
	requireContains(t, out, "1 segment(s)")
	requireContains(t, out, "failed")
	requireContains(t, out, "00:30:00 - 01:00:00")

	if _, _, err := runCLI(t, []string{"chunks", "clear"}, env.configPath); err == nil || !strings.Contains(err.Error(), "--all") {
		t.Fatalf("expected clear without target to fail, got %v", err)
	}

	out, _, err = runCLI(t, []string{"chunks", "clear", src}, env.configPath)
	if err != nil {
		t.Fatalf("chunks clear: %v", err)
	}
	requireContains(t, out, "Removed 2 stored chunk(s)")

	out, _, err = runCLI(t, []string{"chunks", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("chunks list: %v", err)
	}
	requireContains(t, out, "No stored chunks")
}

func TestChunksClearAll(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"chunks", "clear", "--all"}, env.configPath)
	if err != nil {
		t.Fatalf("chunks clear --all: %v", err)
	}
	requireContains(t, out, "Removed 0 stored chunk(s)")

	out, _, err = runCLI(t, []string{"chunks", "runs"}, env.configPath)
	if err != nil {
		t.Fatalf("chunks runs: %v", err)
	}
	requireContains(t, out, "No runs recorded")
}
