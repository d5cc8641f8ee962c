// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"math"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/devblok/vkframe/core"
	"github.com/devblok/vkframe/gfx"
	"github.com/devblok/vkframe/gfx/gfxtest"
	"github.com/devblok/vkframe/shader"
)

var testShaders = shader.Dir("../shader/testdata")

func testConfiguration() core.Configuration {
	cfg := core.DefaultConfiguration()
	cfg.Time.StatsInterval = 0
	cfg.Time.MinimizedPollDelay = time.Millisecond
	return cfg
}

func newEngine(c *qt.C, dev *gfxtest.Device, cfg core.Configuration) (*core.Engine, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	e, err := core.New(dev, testShaders, cfg, logger)
	c.Assert(err, qt.IsNil)
	return e, hook
}

func ops(commands []gfxtest.Command) []string {
	var out []string
	for _, cmd := range commands {
		out = append(out, cmd.Op)
	}
	return out
}

func TestFirstFrameDoesNotBlock(t *testing.T) {
	c := qt.New(t)

	dev := gfxtest.New()
	e, _ := newEngine(c, dev, testConfiguration())
	defer e.Destroy()

	c.Assert(e.Effects(), qt.DeepEquals, []string{"gradient", "sky"})
	c.Assert(e.Draw(), qt.IsNil)
	c.Assert(dev.FenceWaits, qt.Equals, 1)
	c.Assert(dev.Submissions, qt.HasLen, 1)
	c.Assert(dev.Presented, qt.DeepEquals, []uint32{0})
	c.Assert(e.Frame(), qt.Equals, uint64(1))
	c.Assert(dev.Misuse, qt.HasLen, 0)
}

func TestFrameCommands(t *testing.T) {
	c := qt.New(t)

	dev := gfxtest.New()
	e, _ := newEngine(c, dev, testConfiguration())
	defer e.Destroy()

	c.Assert(e.Draw(), qt.IsNil)

	var (
		slot   = e.Ring().Slot(0)
		cmds   = dev.Commands(slot.CommandBuffer)
		draw   = e.DrawImage().Image
		target = e.Session().Set().Images[0]
		full   = gfx.Extent2D{Width: 1700, Height: 900}
	)
	c.Assert(ops(cmds), qt.DeepEquals, []string{
		"barrier",
		"bind-pipeline", "bind-set", "push", "dispatch",
		"barrier", "barrier",
		"blit",
		"barrier",
	})

	layouts := func(cmd gfxtest.Command) [3]interface{} {
		return [3]interface{}{cmd.Barrier.Image, cmd.Barrier.OldLayout, cmd.Barrier.NewLayout}
	}
	c.Assert(layouts(cmds[0]), qt.Equals, [3]interface{}{draw, gfx.LayoutUndefined, gfx.LayoutGeneral})
	c.Assert(layouts(cmds[5]), qt.Equals, [3]interface{}{draw, gfx.LayoutGeneral, gfx.LayoutTransferSrc})
	c.Assert(layouts(cmds[6]), qt.Equals, [3]interface{}{target, gfx.LayoutUndefined, gfx.LayoutTransferDst})
	c.Assert(layouts(cmds[8]), qt.Equals, [3]interface{}{target, gfx.LayoutTransferDst, gfx.LayoutPresentSrc})

	c.Assert(cmds[2].Set, qt.Equals, e.DrawSet())
	c.Assert(cmds[3].Size, qt.Equals, uint32(64))
	c.Assert([3]uint32{cmds[4].X, cmds[4].Y, cmds[4].Z}, qt.Equals, [3]uint32{107, 57, 1})

	c.Assert(cmds[7].Src, qt.Equals, draw)
	c.Assert(cmds[7].Dst, qt.Equals, target)
	c.Assert(cmds[7].SrcSize, qt.Equals, full)
	c.Assert(cmds[7].DstSize, qt.Equals, full)

	submit := dev.Submissions[0]
	c.Assert(submit.Wait, qt.Equals, slot.Acquire)
	c.Assert(submit.WaitStage, qt.Equals, gfx.StageColorAttachmentOutput)
	c.Assert(submit.Signal, qt.Equals, slot.Render)
	c.Assert(submit.Fence, qt.Equals, slot.Fence)
}

func TestSlotsAlternate(t *testing.T) {
	c := qt.New(t)

	dev := gfxtest.New()
	e, _ := newEngine(c, dev, testConfiguration())
	defer e.Destroy()

	for idx := 0; idx < 4; idx++ {
		c.Assert(e.Draw(), qt.IsNil)
	}
	c.Assert(dev.Submissions, qt.HasLen, 4)
	for idx, submit := range dev.Submissions {
		c.Assert(submit.Fence, qt.Equals, e.Ring().Slot(uint64(idx)).Fence)
	}
	c.Assert(dev.Submissions[0].Fence, qt.Not(qt.Equals), dev.Submissions[1].Fence)
	c.Assert(dev.Presented, qt.DeepEquals, []uint32{0, 1, 2, 0})
	c.Assert(e.Ring().Slot(0).Visits(), qt.Equals, uint64(2))
	c.Assert(dev.Misuse, qt.HasLen, 0)
}

func TestSlotReleaseQueueDrainsOnReuse(t *testing.T) {
	c := qt.New(t)

	dev := gfxtest.New()
	e, _ := newEngine(c, dev, testConfiguration())
	defer e.Destroy()

	var drained int
	c.Assert(e.Draw(), qt.IsNil)
	e.Ring().Slot(0).Release.Push(func() { drained++ })

	c.Assert(e.Draw(), qt.IsNil)
	c.Assert(drained, qt.Equals, 0)
	c.Assert(e.Draw(), qt.IsNil)
	c.Assert(drained, qt.Equals, 1)
}

func TestResize(t *testing.T) {
	c := qt.New(t)

	dev := gfxtest.New()
	e, _ := newEngine(c, dev, testConfiguration())
	defer e.Destroy()

	c.Assert(e.Draw(), qt.IsNil)
	old := e.Session().Set()
	set := e.DrawSet()

	small := gfx.Extent2D{Width: 800, Height: 600}
	e.RequestResize(small)
	c.Assert(e.Draw(), qt.IsNil)

	current := e.Session().Set()
	c.Assert(current.Extent, qt.Equals, small)
	for _, img := range current.Images {
		c.Assert(dev.Extent(img), qt.Equals, small)
	}
	for _, view := range old.Views {
		c.Assert(dev.Destroyed(view), qt.Equals, true)
	}
	c.Assert(dev.Destroyed(old.Swapchain), qt.Equals, true)
	c.Assert(dev.WaitIdles, qt.Equals, 1)
	c.Assert(e.Stats().Resizes, qt.Equals, uint64(1))

	// the draw image keeps its size and binding
	c.Assert(e.DrawImage().Extent.Extent2D(), qt.Equals, gfx.Extent2D{Width: 1700, Height: 900})
	c.Assert(e.DrawSet(), qt.Equals, set)
	c.Assert(dev.Valid(set), qt.Equals, true)

	cmds := dev.Commands(e.Ring().Slot(1).CommandBuffer)
	c.Assert(cmds[7].SrcSize, qt.Equals, small)
	c.Assert(cmds[7].DstSize, qt.Equals, small)
	c.Assert(dev.Misuse, qt.HasLen, 0)
}

func TestResizeDrawFollowsWindow(t *testing.T) {
	c := qt.New(t)

	cfg := testConfiguration()
	cfg.Renderer.DrawFollowsWindow = true
	dev := gfxtest.New()
	e, _ := newEngine(c, dev, cfg)
	defer e.Destroy()

	c.Assert(e.Draw(), qt.IsNil)
	oldImage := e.DrawImage()
	oldSet := e.DrawSet()

	big := gfx.Extent2D{Width: 1920, Height: 1080}
	e.RequestResize(big)
	c.Assert(e.Draw(), qt.IsNil)

	c.Assert(dev.Destroyed(oldImage.Image), qt.Equals, true)
	c.Assert(dev.Destroyed(oldImage.View), qt.Equals, true)
	c.Assert(dev.Valid(oldSet), qt.Equals, false)

	c.Assert(e.DrawImage().Extent.Extent2D(), qt.Equals, big)
	c.Assert(dev.Valid(e.DrawSet()), qt.Equals, true)
	c.Assert(dev.Written(e.DrawSet()), qt.Equals, e.DrawImage().View)

	cmds := dev.Commands(e.Ring().Slot(1).CommandBuffer)
	c.Assert([3]uint32{cmds[4].X, cmds[4].Y, cmds[4].Z}, qt.Equals, [3]uint32{120, 68, 1})
	c.Assert(dev.Misuse, qt.HasLen, 0)
}

func TestResizeClampedBySurface(t *testing.T) {
	c := qt.New(t)

	dev := gfxtest.New()
	dev.MaxExtent = gfx.Extent2D{Width: 1024, Height: 768}
	e, _ := newEngine(c, dev, testConfiguration())
	defer e.Destroy()

	c.Assert(e.Session().Extent(), qt.Equals, gfx.Extent2D{Width: 1024, Height: 768})
	c.Assert(e.Draw(), qt.IsNil)

	cmds := dev.Commands(e.Ring().Slot(0).CommandBuffer)
	c.Assert(cmds[7].SrcSize, qt.Equals, gfx.Extent2D{Width: 1024, Height: 768})
}

func TestEmptyResizeSkipsFrame(t *testing.T) {
	c := qt.New(t)

	dev := gfxtest.New()
	e, _ := newEngine(c, dev, testConfiguration())
	defer e.Destroy()

	e.RequestResize(gfx.Extent2D{})
	c.Assert(e.Draw(), qt.IsNil)
	c.Assert(dev.Submissions, qt.HasLen, 0)
	c.Assert(e.Stats().Skipped, qt.Equals, uint64(1))

	e.RequestResize(gfx.Extent2D{Width: 640, Height: 480})
	c.Assert(e.Draw(), qt.IsNil)
	c.Assert(dev.Submissions, qt.HasLen, 1)
}

func TestOutOfDateAcquire(t *testing.T) {
	c := qt.New(t)

	dev := gfxtest.New()
	dev.AcquireErrors = []error{gfx.ErrOutOfDate}
	e, _ := newEngine(c, dev, testConfiguration())
	defer e.Destroy()

	c.Assert(e.Draw(), qt.IsNil)
	c.Assert(e.Frame(), qt.Equals, uint64(0))
	c.Assert(dev.Submissions, qt.HasLen, 0)
	c.Assert(e.Stats().Skipped, qt.Equals, uint64(1))

	// the slot was not claimed, its fence stays signaled
	c.Assert(dev.Signaled(e.Ring().Slot(0).Fence), qt.Equals, true)
	c.Assert(e.Ring().Slot(0).Visits(), qt.Equals, uint64(0))

	c.Assert(e.Draw(), qt.IsNil)
	c.Assert(dev.Count("CreateSwapchain"), qt.Equals, 2)
	c.Assert(dev.Submissions, qt.HasLen, 1)
	c.Assert(e.Frame(), qt.Equals, uint64(1))
	c.Assert(e.Ring().Slot(0).Visits(), qt.Equals, uint64(1))
	c.Assert(dev.Misuse, qt.HasLen, 0)
}

func TestOutOfDatePresent(t *testing.T) {
	c := qt.New(t)

	dev := gfxtest.New()
	dev.PresentErrors = []error{gfx.ErrOutOfDate}
	e, _ := newEngine(c, dev, testConfiguration())
	defer e.Destroy()

	c.Assert(e.Draw(), qt.IsNil)
	c.Assert(e.Frame(), qt.Equals, uint64(1))
	c.Assert(dev.Presented, qt.HasLen, 0)
	c.Assert(dev.Count("CreateSwapchain"), qt.Equals, 1)

	c.Assert(e.Draw(), qt.IsNil)
	c.Assert(dev.Count("CreateSwapchain"), qt.Equals, 2)
	c.Assert(dev.Presented, qt.DeepEquals, []uint32{0})
}

func TestAcquireFailureIsFatal(t *testing.T) {
	c := qt.New(t)

	dev := gfxtest.New()
	dev.AcquireErrors = []error{gfx.ErrTimeout}
	e, _ := newEngine(c, dev, testConfiguration())
	defer e.Destroy()

	err := e.Draw()
	c.Assert(errors.Cause(err), qt.Equals, gfx.ErrTimeout)
	c.Assert(gfx.IsFatal(err), qt.Equals, true)
}

func TestFenceTimeoutIsFatal(t *testing.T) {
	c := qt.New(t)

	dev := gfxtest.New()
	dev.Hang = true
	e, _ := newEngine(c, dev, testConfiguration())

	c.Assert(e.Draw(), qt.IsNil)
	c.Assert(e.Draw(), qt.IsNil)

	err := e.Draw()
	c.Assert(errors.Cause(err), qt.Equals, gfx.ErrTimeout)
	c.Assert(e.Frame(), qt.Equals, uint64(2))
	c.Assert(dev.Misuse, qt.HasLen, 0)
}

func TestShaderFailureFallsBackToClear(t *testing.T) {
	c := qt.New(t)

	dev := gfxtest.New()
	dev.FailShaderModules = true
	e, hook := newEngine(c, dev, testConfiguration())
	defer e.Destroy()

	c.Assert(e.Effects(), qt.HasLen, 0)
	var warnings int
	for _, entry := range hook.AllEntries() {
		if entry.Level == log.WarnLevel {
			warnings++
		}
	}
	c.Assert(warnings, qt.Equals, 3)

	for idx := 0; idx < 2; idx++ {
		c.Assert(e.Draw(), qt.IsNil)
	}
	first := dev.Commands(e.Ring().Slot(0).CommandBuffer)
	c.Assert(ops(first), qt.DeepEquals, []string{"barrier", "clear", "barrier", "barrier", "blit", "barrier"})
	c.Assert(first[1].Dst, qt.Equals, e.DrawImage().Image)
	c.Assert(first[1].Layout, qt.Equals, gfx.LayoutGeneral)
	c.Assert(first[1].Color, qt.Equals, [4]float32{0, 0, 0, 1})

	// the clear is a transfer write, both draw image barriers have to cover it
	before, after := first[0].Barrier, first[2].Barrier
	c.Assert(before.DstStage&gfx.StageTransfer, qt.Equals, gfx.StageTransfer)
	c.Assert(before.DstAccess&gfx.AccessTransferWrite, qt.Equals, gfx.AccessTransferWrite)
	c.Assert(after.SrcStage&gfx.StageTransfer, qt.Equals, gfx.StageTransfer)
	c.Assert(after.SrcAccess&gfx.AccessTransferWrite, qt.Equals, gfx.AccessTransferWrite)

	second := dev.Commands(e.Ring().Slot(1).CommandBuffer)
	flash := float32(math.Abs(math.Sin(1.0 / 120)))
	c.Assert(second[1].Color, qt.Equals, [4]float32{0, 0, flash, 1})
}

func TestMissingEffectSkipped(t *testing.T) {
	c := qt.New(t)

	cfg := testConfiguration()
	cfg.Renderer.Effects = []string{"gradient", "missing", "broken"}
	dev := gfxtest.New()
	e, hook := newEngine(c, dev, cfg)
	defer e.Destroy()

	c.Assert(e.Effects(), qt.DeepEquals, []string{"gradient"})
	c.Assert(dev.Count("CreateShaderModule"), qt.Equals, 1)
	c.Assert(dev.Count("Destroyshadermodule"), qt.Equals, 1)

	var skipped []interface{}
	for _, entry := range hook.AllEntries() {
		if entry.Message == "effect skipped" {
			skipped = append(skipped, entry.Data["effect"])
		}
	}
	c.Assert(skipped, qt.DeepEquals, []interface{}{"missing", "broken"})
}

func TestEffectsFromListing(t *testing.T) {
	c := qt.New(t)

	cfg := testConfiguration()
	cfg.Renderer.Effects = nil
	dev := gfxtest.New()
	e, _ := newEngine(c, dev, cfg)
	defer e.Destroy()

	c.Assert(e.Effects(), qt.DeepEquals, []string{"gradient", "sky"})
}

func TestNoShaderSource(t *testing.T) {
	c := qt.New(t)

	dev := gfxtest.New()
	e, err := core.New(dev, nil, testConfiguration(), nil)
	c.Assert(err, qt.IsNil)
	defer e.Destroy()

	c.Assert(e.Effects(), qt.HasLen, 0)
	_, ok := e.Effect()
	c.Assert(ok, qt.Equals, false)
	c.Assert(e.Draw(), qt.IsNil)
}

func TestSelectEffect(t *testing.T) {
	c := qt.New(t)

	dev := gfxtest.New()
	e, _ := newEngine(c, dev, testConfiguration())
	defer e.Destroy()

	effect, ok := e.Effect()
	c.Assert(ok, qt.Equals, true)
	c.Assert(effect.Name, qt.Equals, "gradient")
	c.Assert(effect.Data.Data1[0], qt.Equals, float32(1))

	c.Assert(e.SelectEffect(1), qt.IsNil)
	effect, _ = e.Effect()
	c.Assert(effect.Name, qt.Equals, "sky")

	e.NextEffect()
	effect, _ = e.Effect()
	c.Assert(effect.Name, qt.Equals, "gradient")

	c.Assert(e.SelectEffect(2), qt.ErrorMatches, `effect 2 out of range, 2 loaded`)
	c.Assert(e.SetEffectData(0, core.PushConstants{}), qt.IsNil)
	c.Assert(e.Draw(), qt.IsNil)

	cmds := dev.Commands(e.Ring().Slot(0).CommandBuffer)
	c.Assert(cmds[1].Pipeline, qt.Not(qt.IsNil))
}

func TestRenderScale(t *testing.T) {
	c := qt.New(t)

	cfg := testConfiguration()
	cfg.Renderer.RenderScale = 0.5
	dev := gfxtest.New()
	e, _ := newEngine(c, dev, cfg)
	defer e.Destroy()

	c.Assert(e.Draw(), qt.IsNil)
	cmds := dev.Commands(e.Ring().Slot(0).CommandBuffer)
	c.Assert([3]uint32{cmds[4].X, cmds[4].Y, cmds[4].Z}, qt.Equals, [3]uint32{54, 29, 1})
	c.Assert(cmds[7].SrcSize, qt.Equals, gfx.Extent2D{Width: 850, Height: 450})
	c.Assert(cmds[7].DstSize, qt.Equals, gfx.Extent2D{Width: 1700, Height: 900})
}

func TestDestroyReleasesEverything(t *testing.T) {
	c := qt.New(t)

	dev := gfxtest.New()
	e, _ := newEngine(c, dev, testConfiguration())
	for idx := 0; idx < 3; idx++ {
		c.Assert(e.Draw(), qt.IsNil)
	}
	e.RequestResize(gfx.Extent2D{Width: 640, Height: 480})
	c.Assert(e.Draw(), qt.IsNil)

	e.Destroy()
	c.Assert(dev.Leaks(), qt.HasLen, 0)
	c.Assert(dev.Misuse, qt.HasLen, 0)

	calls := len(dev.Log)
	e.Destroy()
	c.Assert(dev.Log, qt.HasLen, calls)
}

func TestPoolExhaustedAtInit(t *testing.T) {
	c := qt.New(t)

	cfg := testConfiguration()
	cfg.Renderer.DescriptorSets = 0
	dev := gfxtest.New()
	_, err := core.New(dev, testShaders, cfg, nil)
	c.Assert(errors.Cause(err), qt.Equals, gfx.ErrPoolExhausted)
	c.Assert(gfx.IsFatal(err), qt.Equals, true)
	c.Assert(dev.Leaks(), qt.HasLen, 0)
	c.Assert(dev.Misuse, qt.HasLen, 0)
}

func TestPipelineFailureIsFatal(t *testing.T) {
	c := qt.New(t)

	dev := gfxtest.New()
	dev.PipelineErrors = []error{nil, errors.New("driver rejected pipeline")}
	_, err := core.New(dev, testShaders, testConfiguration(), nil)
	c.Assert(err, qt.ErrorMatches, `.*create pipeline for effect sky: driver rejected pipeline`)
	c.Assert(dev.Count("CreateComputePipeline"), qt.Equals, 2)
	c.Assert(dev.Leaks(), qt.HasLen, 0)
	c.Assert(dev.Misuse, qt.HasLen, 0)
}

func TestInvalidConfiguration(t *testing.T) {
	c := qt.New(t)

	cfg := testConfiguration()
	cfg.Window.Width = 0
	dev := gfxtest.New()
	_, err := core.New(dev, nil, cfg, nil)
	c.Assert(err, qt.ErrorMatches, `window size 0x900 is empty`)
	c.Assert(dev.Log, qt.HasLen, 0)
}
