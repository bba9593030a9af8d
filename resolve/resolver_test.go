package resolve

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/pithecene-io/strata/registry"
	"github.com/pithecene-io/strata/types"
)

func ref(name, version, checksum string) types.ArtifactRef {
	return types.ArtifactRef{
		Name:      name,
		Version:   version,
		Checksum:  checksum,
		SourceURL: "https://artifacts.example.com/" + name + "-" + version + ".tar.gz",
	}
}

func testRegistry() *registry.Registry {
	return registry.New(
		[]types.ArtifactRef{
			ref("xtensa-gcc", "10.2.0", "aaa1"),
			ref("xtensa-gcc", "12.3.0", "bbb2"),
			ref("xtensa-gcc", "12.4.0-RC1", "ccc3"),
		},
		map[string][]types.ArtifactRef{
			"esp32": {
				ref("esp32-support", "1.0.0", "ddd4"),
				ref("esp32-support", "1.2.0", "eee5"),
			},
		},
		map[string]registry.Overlay{
			"wifi": {
				Artifact: ref("wifi-overlay", "2.0.0", "fff6"),
				Ops: []types.FSOp{
					{Kind: types.FSOpCopy, Path: "configs/wifi.conf", Target: "wifi.conf"},
				},
			},
			"wifi-alt": {
				Artifact: ref("wifi-alt-overlay", "1.0.0", "0007"),
				Ops: []types.FSOp{
					{Kind: types.FSOpCopy, Path: "configs/wifi.conf", Target: "wifi-alt.conf"},
				},
			},
			"wifi-same": {
				Artifact: ref("wifi-same-overlay", "1.0.0", "0008"),
				Ops: []types.FSOp{
					{Kind: types.FSOpCopy, Path: "configs/wifi.conf", Target: "wifi.conf"},
				},
			},
			"bt": {
				Artifact: ref("bt-overlay", "1.1.0", "0009"),
				Ops: []types.FSOp{
					{Kind: types.FSOpCopy, Path: "configs/bt.conf", Target: "bt.conf"},
				},
			},
		},
	)
}

func TestResolve_Basic(t *testing.T) {
	r := New(testRegistry())
	graph, err := r.Resolve(types.ProjectSpec{
		Board:     "esp32",
		Toolchain: "12.3.0",
		Overlays:  []string{"wifi"},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if got := graph.Slots[types.SlotToolchain]; got.Checksum != "bbb2" {
		t.Errorf("toolchain slot = %v, want 12.3.0 (bbb2)", got)
	}
	if got := graph.Slots[types.BoardSupportSlot("esp32")]; got.Version != "1.2.0" {
		t.Errorf("board slot = %v, want highest support version 1.2.0", got)
	}
	ovSlot := types.OverlaySlot("wifi")
	if got := graph.Slots[ovSlot]; got.Checksum != "fff6" {
		t.Errorf("overlay slot = %v, want wifi-overlay", got)
	}
	if len(graph.Ops[ovSlot]) != 1 {
		t.Errorf("overlay ops = %d, want 1", len(graph.Ops[ovSlot]))
	}
	if graph.OverlayHash == "" {
		t.Error("overlay hash should be set")
	}
}

func TestResolve_BoardSlotCarriesRegistration(t *testing.T) {
	r := New(testRegistry())
	graph, err := r.Resolve(types.ProjectSpec{Board: "esp32", Toolchain: "12.3.0"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	ops := graph.Ops[types.BoardSupportSlot("esp32")]
	if len(ops) != 1 {
		t.Fatalf("board ops = %d, want 1 kconfig registration", len(ops))
	}
	want := types.FSOp{Kind: types.FSOpKconfig, Path: "Kconfig", Target: "esp32"}
	if ops[0] != want {
		t.Errorf("board op = %+v, want %+v", ops[0], want)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	spec := types.ProjectSpec{
		Board:     "esp32",
		Toolchain: ">=10.0,<13.0",
		Overlays:  []string{"wifi", "bt"},
	}

	encode := func(g *types.ResolvedGraph) []byte {
		// json.Marshal sorts map keys, so equal graphs encode identically.
		b, err := json.Marshal(struct {
			Slots map[types.Slot]types.ArtifactRef
			Ops   map[types.Slot][]types.FSOp
			Hash  string
		}{g.Slots, g.Ops, g.OverlayHash})
		if err != nil {
			t.Fatalf("encode graph: %v", err)
		}
		return b
	}

	r := New(testRegistry())
	first, err := r.Resolve(spec)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := New(testRegistry()).Resolve(spec)
		if err != nil {
			t.Fatalf("Resolve (run %d): %v", i, err)
		}
		if !bytes.Equal(encode(first), encode(again)) {
			t.Fatalf("resolution differs between runs:\n%s\n%s", encode(first), encode(again))
		}
	}
}

func TestResolve_RangePicksHighestFinal(t *testing.T) {
	r := New(testRegistry())
	graph, err := r.Resolve(types.ProjectSpec{Board: "esp32", Toolchain: ">=10.0,<13.0"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// 12.4.0-RC1 is in range but RCs only satisfy exact pins.
	if got := graph.Slots[types.SlotToolchain].Version; got != "12.3.0" {
		t.Errorf("toolchain = %s, want 12.3.0 (RC excluded from range)", got)
	}
}

func TestResolve_ExactRCPin(t *testing.T) {
	r := New(testRegistry())
	graph, err := r.Resolve(types.ProjectSpec{Board: "esp32", Toolchain: "12.4.0-RC1"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := graph.Slots[types.SlotToolchain].Checksum; got != "ccc3" {
		t.Errorf("toolchain checksum = %s, want ccc3", got)
	}
}

func TestResolve_ChecksumTieBreak(t *testing.T) {
	reg := registry.New(
		[]types.ArtifactRef{
			ref("gcc", "12.3.0", "1111"),
			ref("gcc", "12.3.0", "9999"),
		},
		map[string][]types.ArtifactRef{"esp32": {ref("esp32-support", "1.0.0", "dddd")}},
		nil,
	)
	graph, err := New(reg).Resolve(types.ProjectSpec{Board: "esp32", Toolchain: "12.3.0"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := graph.Slots[types.SlotToolchain].Checksum; got != "9999" {
		t.Errorf("tie should break to greatest checksum, got %s", got)
	}
}

func TestResolve_UnknownBoard(t *testing.T) {
	r := New(testRegistry())
	_, err := r.Resolve(types.ProjectSpec{Board: "stm32f4", Toolchain: "12.3.0"})
	if !errors.Is(err, types.ErrUnknownBoard) {
		t.Errorf("err = %v, want ErrUnknownBoard", err)
	}
}

func TestResolve_UnresolvableConstraint(t *testing.T) {
	r := New(testRegistry())
	_, err := r.Resolve(types.ProjectSpec{Board: "esp32", Toolchain: ">=99.0"})
	if !errors.Is(err, types.ErrUnresolvableConstraint) {
		t.Errorf("err = %v, want ErrUnresolvableConstraint", err)
	}
}

func TestResolve_UnknownOverlay(t *testing.T) {
	r := New(testRegistry())
	_, err := r.Resolve(types.ProjectSpec{
		Board: "esp32", Toolchain: "12.3.0", Overlays: []string{"nonexistent"},
	})
	if !errors.Is(err, types.ErrUnresolvableConstraint) {
		t.Errorf("err = %v, want ErrUnresolvableConstraint", err)
	}
}

func TestResolve_OverlayConflict(t *testing.T) {
	r := New(testRegistry())
	_, err := r.Resolve(types.ProjectSpec{
		Board: "esp32", Toolchain: "12.3.0", Overlays: []string{"wifi", "wifi-alt"},
	})
	if !errors.Is(err, types.ErrOverlayConflict) {
		t.Errorf("err = %v, want ErrOverlayConflict", err)
	}
}

func TestResolve_IdenticalOverlayEffectAllowed(t *testing.T) {
	// Two overlays declaring byte-identical effects on the same path
	// are not a conflict.
	r := New(testRegistry())
	graph, err := r.Resolve(types.ProjectSpec{
		Board: "esp32", Toolchain: "12.3.0", Overlays: []string{"wifi", "wifi-same"},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(graph.Slots) != 4 {
		t.Errorf("slots = %d, want 4 (toolchain, board, two overlays)", len(graph.Slots))
	}
}

func TestOpsHash_OrderSensitive(t *testing.T) {
	a := types.FSOp{Kind: types.FSOpCopy, Path: "a", Target: "x"}
	b := types.FSOp{Kind: types.FSOpCopy, Path: "b", Target: "y"}

	if OpsHash([]types.FSOp{a, b}) == OpsHash([]types.FSOp{b, a}) {
		t.Error("operation order should change the effect hash")
	}
	if OpsHash([]types.FSOp{a, b}) != OpsHash([]types.FSOp{a, b}) {
		t.Error("identical declarations should hash identically")
	}
}

func TestResolve_OverlayHashTracksDeclaredOrder(t *testing.T) {
	r := New(testRegistry())
	spec := func(overlays ...string) types.ProjectSpec {
		return types.ProjectSpec{Board: "esp32", Toolchain: "12.3.0", Overlays: overlays}
	}

	ab, err := r.Resolve(spec("wifi", "bt"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	ba, err := r.Resolve(spec("bt", "wifi"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ab.OverlayHash == ba.OverlayHash {
		t.Error("overlay set hash should depend on declared order")
	}
}
