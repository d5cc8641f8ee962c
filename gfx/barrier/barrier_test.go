// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package barrier_test

import (
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/vkframe/gfx"
	"github.com/devblok/vkframe/gfx/barrier"
	"github.com/devblok/vkframe/gfx/gfxtest"
)

func recording(c *qt.C) (*gfxtest.Device, gfx.CommandBuffer) {
	dev := gfxtest.New()
	pool, err := dev.CreateCommandPool()
	c.Assert(err, qt.IsNil)
	cmd, err := dev.AllocateCommandBuffer(pool)
	c.Assert(err, qt.IsNil)
	c.Assert(dev.BeginCommandBuffer(cmd), qt.IsNil)
	return dev, cmd
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		old, new gfx.ImageLayout
		want     barrier.Mask
	}{
		{gfx.LayoutUndefined, gfx.LayoutGeneral, barrier.Mask{
			SrcStage:  gfx.StageTopOfPipe,
			DstStage:  gfx.StageComputeShader | gfx.StageTransfer,
			DstAccess: gfx.AccessShaderWrite | gfx.AccessTransferWrite,
		}},
		{gfx.LayoutGeneral, gfx.LayoutTransferSrc, barrier.Mask{
			SrcStage:  gfx.StageComputeShader | gfx.StageTransfer,
			SrcAccess: gfx.AccessShaderWrite | gfx.AccessTransferWrite,
			DstStage:  gfx.StageTransfer,
			DstAccess: gfx.AccessTransferRead,
		}},
		{gfx.LayoutUndefined, gfx.LayoutTransferDst, barrier.Mask{
			SrcStage: gfx.StageColorAttachmentOutput, DstStage: gfx.StageTransfer, DstAccess: gfx.AccessTransferWrite,
		}},
		{gfx.LayoutTransferDst, gfx.LayoutPresentSrc, barrier.Mask{
			SrcStage: gfx.StageTransfer, SrcAccess: gfx.AccessTransferWrite, DstStage: gfx.StageBottomOfPipe,
		}},
	}

	for _, test := range tests {
		c := qt.New(t)
		dev, cmd := recording(c)

		err := barrier.Transition(dev, cmd, "image", test.old, test.new)
		c.Assert(err, qt.IsNil)

		cmds := dev.Commands(cmd)
		c.Assert(cmds, qt.HasLen, 1)
		c.Assert(cmds[0].Op, qt.Equals, "barrier")
		c.Assert(cmds[0].Barrier, qt.DeepEquals, gfx.ImageBarrier{
			Image:     "image",
			OldLayout: test.old,
			NewLayout: test.new,
			SrcStage:  test.want.SrcStage,
			SrcAccess: test.want.SrcAccess,
			DstStage:  test.want.DstStage,
			DstAccess: test.want.DstAccess,
		})
	}

	if len(barrier.Edges()) != len(tests) {
		t.Errorf("table has %d edges, tested %d", len(barrier.Edges()), len(tests))
	}
}

func TestTransitionUnsupported(t *testing.T) {
	c := qt.New(t)
	dev, cmd := recording(c)

	unsupported := []barrier.Edge{
		{Old: gfx.LayoutGeneral, New: gfx.LayoutPresentSrc},
		{Old: gfx.LayoutPresentSrc, New: gfx.LayoutTransferDst},
		{Old: gfx.LayoutTransferSrc, New: gfx.LayoutGeneral},
		{Old: gfx.LayoutGeneral, New: gfx.LayoutGeneral},
	}
	for _, edge := range unsupported {
		err := barrier.Transition(dev, cmd, "image", edge.Old, edge.New)
		if !errors.Is(err, gfx.ErrUnsupportedTransition) {
			t.Errorf("%s -> %s: got %v", edge.Old, edge.New, err)
		}
	}
	c.Assert(dev.Commands(cmd), qt.HasLen, 0)
}

func TestCopyScales(t *testing.T) {
	c := qt.New(t)
	dev, cmd := recording(c)

	barrier.Copy(dev, cmd, "draw", "swap", gfx.Extent2D{Width: 1700, Height: 900}, gfx.Extent2D{Width: 800, Height: 600})

	cmds := dev.Commands(cmd)
	c.Assert(cmds, qt.HasLen, 1)
	c.Assert(cmds[0].Op, qt.Equals, "blit")
	c.Assert(cmds[0].SrcSize, qt.Equals, gfx.Extent2D{Width: 1700, Height: 900})
	c.Assert(cmds[0].DstSize, qt.Equals, gfx.Extent2D{Width: 800, Height: 600})
}

func TestDispatchSize(t *testing.T) {
	tests := []struct {
		extent  gfx.Extent2D
		x, y, z uint32
	}{
		{gfx.Extent2D{Width: 1700, Height: 900}, 107, 57, 1},
		{gfx.Extent2D{Width: 16, Height: 16}, 1, 1, 1},
		{gfx.Extent2D{Width: 17, Height: 1}, 2, 1, 1},
		{gfx.Extent2D{}, 0, 0, 1},
	}

	for _, test := range tests {
		x, y, z := barrier.DispatchSize(test.extent, barrier.Workgroup)
		if x != test.x || y != test.y || z != test.z {
			t.Errorf("%v: got (%d, %d, %d), want (%d, %d, %d)", test.extent, x, y, z, test.x, test.y, test.z)
		}
	}
}

func BenchmarkMasks(b *testing.B) {
	for idx := 0; idx < b.N; idx++ {
		if _, err := barrier.Masks(gfx.LayoutGeneral, gfx.LayoutTransferSrc); err != nil {
			b.Fatal(err)
		}
	}
}
