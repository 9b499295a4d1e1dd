package mixer

import "github.com/mBelstad/preke-r58-recorder-sub003/internal/config"

// branchDiff is the result of comparing the branches a scene requires
// against the branches currently running. It is computed by a pure
// function so the add/remove decision can be tested without a running
// engine (spec §4.6's branch reconciliation).
type branchDiff struct {
	toAdd    []string // source names needing a new branch
	toRemove []string // source names whose branch is no longer needed
	keep     []string // source names already running and still needed
}

// reconcileBranches computes additions and removals for moving from
// the currently running branch set to the set a scene requires. A
// branch never gets removed and re-added for the same scene change;
// it either stays (keep), is new (toAdd), or is dropped (toRemove).
func reconcileBranches(active map[string]bool, scene config.Scene) branchDiff {
	required := make(map[string]bool, len(scene.Slots))
	for _, slot := range scene.Slots {
		if slot.Source == "" {
			continue
		}
		required[slot.Source] = true
	}

	var diff branchDiff
	for src := range required {
		if active[src] {
			diff.keep = append(diff.keep, src)
		} else {
			diff.toAdd = append(diff.toAdd, src)
		}
	}
	for src := range active {
		if !required[src] {
			diff.toRemove = append(diff.toRemove, src)
		}
	}
	return diff
}

// buildSlotSources renders a scene's slots into pipeline mixer slot
// sources, marking any slot whose source isn't currently streaming as
// a placeholder rather than failing the whole composition (spec
// §4.6: "the slot is rendered as a placeholder... the transition
// still proceeds").
func buildSlotSources(scene config.Scene, streaming func(source string) bool) []slotSource {
	out := make([]slotSource, 0, len(scene.Slots))
	for _, slot := range scene.Slots {
		out = append(out, slotSource{
			Source:      slot.Source,
			X:           slot.X,
			Y:           slot.Y,
			W:           slot.W,
			H:           slot.H,
			Z:           slot.Z,
			Opacity:     slot.Opacity,
			Placeholder: !streaming(slot.Source),
		})
	}
	return out
}

// slotSource is the engine's resolved view of one scene slot, before
// it is translated into a pipeline.MixerSlotSource (which needs the
// source's stream path name, not its logical id, and is only built
// once the stream base URL is known).
type slotSource struct {
	Source      string
	X, Y, W, H  float64
	Z           int
	Opacity     float64
	Placeholder bool
}
