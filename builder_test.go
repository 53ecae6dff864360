package topology_test

import (
	"errors"
	"testing"

	topology "github.com/kestrelphysics/topology"
	"github.com/kestrelphysics/topology/testsupport"
)

func TestBuildEmptyTopologyFails(t *testing.T) {
	reg := topology.NewRegistrar(nil)
	tunables := topology.NewTunables(topology.NewMapParams(nil))
	_, err := topology.NewBuilder(reg, tunables).Build()
	if err == nil {
		t.Fatal("expected error building a topology with no sources")
	}
}

func TestBuildMinimalSourceToTap(t *testing.T) {
	reg := topology.NewRegistrar(nil)
	reg.AddSource(topology.LevelPhysicsEvent, func() topology.SourceBehavior {
		return testsupport.NewMockSource(10)
	})
	reg.AddProcessor(topology.LevelPhysicsEvent, true, func() topology.ProcessorBehavior {
		return testsupport.NewMockProcessor()
	})

	tunables := topology.NewTunables(topology.NewMapParams(map[string]string{
		"nthreads":              "2",
		"jana:event_pool_size":  "4",
	}))
	top, err := topology.NewBuilder(reg, tunables).Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(top.Arrows) != 3 { // source, processor, terminal tap
		t.Fatalf("expected 3 arrows, got %d", len(top.Arrows))
	}
	if top.ResidentEvents() != 4 {
		t.Fatalf("expected 4 resident events (pool capacity), got %d", top.ResidentEvents())
	}
}

func TestBuildUnfolderMissingParentFails(t *testing.T) {
	reg := topology.NewRegistrar(nil)
	// The only source is at Timeslice, so an unfolder whose parent level
	// (PhysicsEvent) has no source/processor chain cannot resolve its
	// parent queue.
	reg.AddSource(topology.LevelTimeslice, func() topology.SourceBehavior {
		return testsupport.NewMockSource(1)
	})
	reg.AddUnfolder(topology.LevelPhysicsEvent, topology.LevelSubevent, func() topology.Unfolder {
		return testsupport.NewMockUnfolder(2)
	})
	tunables := topology.NewTunables(topology.NewMapParams(nil))
	_, err := topology.NewBuilder(reg, tunables).Build()
	if !errors.Is(err, topology.ErrUnresolvedPort) {
		t.Fatalf("expected ErrUnresolvedPort for the unfolder's parent queue, got %v", err)
	}
}

func TestBuildUnfoldFoldWiring(t *testing.T) {
	reg := topology.NewRegistrar(nil)
	reg.AddSource(topology.LevelPhysicsEvent, func() topology.SourceBehavior {
		return testsupport.NewMockSource(3)
	})
	reg.AddUnfolder(topology.LevelPhysicsEvent, topology.LevelSubevent, func() topology.Unfolder {
		return testsupport.NewMockUnfolder(2)
	})
	reg.AddFolder(topology.LevelPhysicsEvent, topology.LevelSubevent, func() topology.Folder {
		return testsupport.NewMockFolder()
	})

	tunables := topology.NewTunables(topology.NewMapParams(map[string]string{
		"jana:event_pool_size": "8",
	}))
	top, err := topology.NewBuilder(reg, tunables).Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// source(PhysicsEvent), unfolder, folder: no terminal tap at
	// PhysicsEvent since the folder claims that level's retirement.
	if len(top.Arrows) != 3 {
		t.Fatalf("expected 3 arrows (source, unfolder, folder), got %d", len(top.Arrows))
	}
	if _, ok := top.PoolFor(topology.LevelSubevent); !ok {
		t.Fatal("expected a pool for the subevent level")
	}
}
