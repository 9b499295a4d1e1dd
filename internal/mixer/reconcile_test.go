package mixer

import (
	"sort"
	"testing"

	"github.com/mBelstad/preke-r58-recorder-sub003/internal/config"
)

func sortedStrings(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

func TestReconcileBranches_AddsMissingAndRemovesUnneeded(t *testing.T) {
	scene := config.Scene{SceneID: "two_up", Slots: []config.Slot{
		{Source: "cam0"},
		{Source: "cam1"},
	}}
	active := map[string]bool{"cam1": true, "cam2": true}

	diff := reconcileBranches(active, scene)

	if got := sortedStrings(diff.toAdd); len(got) != 1 || got[0] != "cam0" {
		t.Fatalf("expected toAdd=[cam0], got %v", got)
	}
	if got := sortedStrings(diff.toRemove); len(got) != 1 || got[0] != "cam2" {
		t.Fatalf("expected toRemove=[cam2], got %v", got)
	}
	if got := sortedStrings(diff.keep); len(got) != 1 || got[0] != "cam1" {
		t.Fatalf("expected keep=[cam1], got %v", got)
	}
}

func TestReconcileBranches_SameSceneTwiceIsNoOp(t *testing.T) {
	scene := config.Scene{SceneID: "solo", Slots: []config.Slot{{Source: "cam0"}}}
	active := map[string]bool{"cam0": true}

	diff := reconcileBranches(active, scene)
	if len(diff.toAdd) != 0 || len(diff.toRemove) != 0 {
		t.Fatalf("expected no additions or removals for an unchanged scene, got %+v", diff)
	}
	if len(diff.keep) != 1 || diff.keep[0] != "cam0" {
		t.Fatalf("expected cam0 kept, got %v", diff.keep)
	}
}

func TestBuildSlotSources_MarksNonStreamingAsPlaceholder(t *testing.T) {
	scene := config.Scene{Slots: []config.Slot{
		{Source: "cam0", X: 0, Y: 0, W: 1, H: 1, Z: 0, Opacity: 1},
		{Source: "cam_missing", X: 0.5, Y: 0.5, W: 0.5, H: 0.5, Z: 1, Opacity: 1},
	}}

	sources := buildSlotSources(scene, func(src string) bool { return src == "cam0" })

	if len(sources) != 2 {
		t.Fatalf("expected 2 slot sources, got %d", len(sources))
	}
	if sources[0].Placeholder {
		t.Fatal("expected cam0 slot to not be a placeholder")
	}
	if !sources[1].Placeholder {
		t.Fatal("expected cam_missing slot to be a placeholder")
	}
}
