// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package barrier knows the image layout changes the frame loop performs
// and the synchronization each of them needs.
package barrier

import (
	"github.com/pkg/errors"

	"github.com/devblok/vkframe/gfx"
)

// Edge is a layout change of an image.
type Edge struct {
	Old gfx.ImageLayout
	New gfx.ImageLayout
}

// Mask is the pair of scopes a barrier orders.
type Mask struct {
	SrcStage  gfx.PipelineStage
	SrcAccess gfx.Access
	DstStage  gfx.PipelineStage
	DstAccess gfx.Access
}

var table = map[Edge]Mask{
	// draw image, before a compute shader or a clear writes it
	{gfx.LayoutUndefined, gfx.LayoutGeneral}: {
		SrcStage:  gfx.StageTopOfPipe,
		SrcAccess: gfx.AccessNone,
		DstStage:  gfx.StageComputeShader | gfx.StageTransfer,
		DstAccess: gfx.AccessShaderWrite | gfx.AccessTransferWrite,
	},
	// draw image, compute or clear output becomes blit source
	{gfx.LayoutGeneral, gfx.LayoutTransferSrc}: {
		SrcStage:  gfx.StageComputeShader | gfx.StageTransfer,
		SrcAccess: gfx.AccessShaderWrite | gfx.AccessTransferWrite,
		DstStage:  gfx.StageTransfer,
		DstAccess: gfx.AccessTransferRead,
	},
	// swapchain image, previous contents discarded; the stage is where
	// the acquire semaphore wait lands
	{gfx.LayoutUndefined, gfx.LayoutTransferDst}: {
		SrcStage:  gfx.StageColorAttachmentOutput,
		SrcAccess: gfx.AccessNone,
		DstStage:  gfx.StageTransfer,
		DstAccess: gfx.AccessTransferWrite,
	},
	// swapchain image, blit result handed to presentation
	{gfx.LayoutTransferDst, gfx.LayoutPresentSrc}: {
		SrcStage:  gfx.StageTransfer,
		SrcAccess: gfx.AccessTransferWrite,
		DstStage:  gfx.StageBottomOfPipe,
		DstAccess: gfx.AccessNone,
	},
}

// Edges lists every supported layout change.
func Edges() []Edge {
	edges := make([]Edge, 0, len(table))
	for edge := range table {
		edges = append(edges, edge)
	}
	return edges
}

// Masks returns the synchronization scopes of a layout change.
func Masks(old, new gfx.ImageLayout) (Mask, error) {
	mask, ok := table[Edge{old, new}]
	if !ok {
		return Mask{}, errors.Wrapf(gfx.ErrUnsupportedTransition, "%s -> %s", old, new)
	}
	return mask, nil
}

// Transition records exactly one barrier moving image from old to new.
// Nothing is recorded when the change is not supported.
func Transition(rec gfx.Recorder, cmd gfx.CommandBuffer, image gfx.Image, old, new gfx.ImageLayout) error {
	mask, err := Masks(old, new)
	if err != nil {
		return err
	}
	rec.PipelineBarrier(cmd, gfx.ImageBarrier{
		Image:     image,
		OldLayout: old,
		NewLayout: new,
		SrcStage:  mask.SrcStage,
		SrcAccess: mask.SrcAccess,
		DstStage:  mask.DstStage,
		DstAccess: mask.DstAccess,
	})
	return nil
}

// Copy blits the whole of src onto the whole of dst with linear filtering,
// scaling when the sizes differ. src must be in TransferSrc and dst in
// TransferDst layout.
func Copy(rec gfx.Recorder, cmd gfx.CommandBuffer, src, dst gfx.Image, srcSize, dstSize gfx.Extent2D) {
	rec.BlitImage(cmd, src, dst, srcSize, dstSize)
}

// Workgroup is the edge of the square compute workgroup the
// background shaders are written for.
const Workgroup = 16

// DispatchSize returns the number of workgroups covering extent.
func DispatchSize(extent gfx.Extent2D, workgroup uint32) (x, y, z uint32) {
	if workgroup == 0 {
		workgroup = Workgroup
	}
	x = (extent.Width + workgroup - 1) / workgroup
	y = (extent.Height + workgroup - 1) / workgroup
	return x, y, 1
}
