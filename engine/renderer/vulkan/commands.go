package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

// CommandAllocator is a command pool. Each command list owns one command buffer per pool.
type CommandAllocator struct {
	dev  *Device
	pool vk.CommandPool

	open          *CommandList
	pendingSignal bool
	retireFence   *Fence
	retireValue   uint64
	released      bool
}

var _ gpu.CommandAllocator = (*CommandAllocator)(nil)

func (a *CommandAllocator) retire(f *Fence, value uint64) {
	a.pendingSignal = false
	a.retireFence = f
	a.retireValue = value
}

func (a *CommandAllocator) Reset() error {
	switch {
	case a.open != nil:
		return gpu.NewStatusError("CommandAllocator.Reset", gpu.StatusInvalidCall, "a command list is recording into the allocator")
	case a.pendingSignal:
		return gpu.NewStatusError("CommandAllocator.Reset", gpu.StatusInvalidCall, "executed commands were never fenced")
	case a.retireFence != nil && a.retireFence.CompletedValue() < a.retireValue:
		return gpu.NewStatusError("CommandAllocator.Reset", gpu.StatusInvalidCall, "commands are still executing")
	}
	return check("vkResetCommandPool", vk.ResetCommandPool(a.dev.handle, a.pool, 0))
}

func (a *CommandAllocator) Release() {
	if a.released {
		return
	}
	a.released = true
	vk.DestroyCommandPool(a.dev.handle, a.pool, a.dev.ctx.Allocator)
	a.pool = vk.NullCommandPool
}

// CommandList translates the recorded calls to Vulkan commands. The render
// pass begins lazily at the first draw, clearing the bound targets with the
// last clear values, and ends at the next barrier or at Close.
type CommandList struct {
	dev     *Device
	buffers map[*CommandAllocator]vk.CommandBuffer

	alloc     *CommandAllocator
	cb        vk.CommandBuffer
	recording bool
	err       error

	touchesSwapchain bool

	pipeline *PipelineState
	rootSig  *RootSignature
	rtv      gpu.DescriptorHandle
	dsv      *gpu.DescriptorHandle
	clear    [4]float32
	depth    float32
	clearing bool
	viewport vk.Viewport
	scissor  vk.Rect2D
	vb       gpu.VertexBufferView
	ib       gpu.IndexBufferView
	cbv      map[int]*Resource

	inRenderPass bool
}

var _ gpu.CommandList = (*CommandList)(nil)

func (l *CommandList) bufferFor(a *CommandAllocator) (vk.CommandBuffer, error) {
	if cb, ok := l.buffers[a]; ok {
		return cb, nil
	}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        a.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	if err := check("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(l.dev.handle, &allocateInfo, buffers)); err != nil {
		return nil, err
	}
	l.buffers[a] = buffers[0]
	return buffers[0], nil
}

func (l *CommandList) Reset(alloc gpu.CommandAllocator, pso gpu.PipelineState) error {
	if l.recording {
		return gpu.NewStatusError("CommandList.Reset", gpu.StatusInvalidCall, "command list is already recording")
	}
	a, ok := alloc.(*CommandAllocator)
	if !ok {
		return gpu.NewStatusError("CommandList.Reset", gpu.StatusInvalidArg, "foreign allocator")
	}
	if a.open != nil {
		return gpu.NewStatusError("CommandList.Reset", gpu.StatusInvalidCall, "allocator is used by another recording")
	}
	cb, err := l.bufferFor(a)
	if err != nil {
		return err
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check("vkBeginCommandBuffer", vk.BeginCommandBuffer(cb, &beginInfo)); err != nil {
		return err
	}

	*l = CommandList{
		dev:       l.dev,
		buffers:   l.buffers,
		alloc:     a,
		cb:        cb,
		recording: true,
		depth:     1,
		cbv:       make(map[int]*Resource),
	}
	a.open = l
	if pso != nil {
		l.SetPipelineState(pso)
	}
	return nil
}

func (l *CommandList) Close() error {
	if !l.recording {
		return gpu.NewStatusError("CommandList.Close", gpu.StatusInvalidCall, "command list is not recording")
	}
	l.flushClears()
	l.endRenderPass()
	l.recording = false
	l.alloc.open = nil
	if l.err != nil {
		return l.err
	}
	return check("vkEndCommandBuffer", vk.EndCommandBuffer(l.cb))
}

func (l *CommandList) fail(op, reason string) {
	if l.err == nil {
		l.err = gpu.NewStatusError(op, gpu.StatusInvalidCall, reason)
	}
}

func (l *CommandList) usable(op string) bool {
	if !l.recording {
		l.fail(op, "command list is closed")
		return false
	}
	return l.err == nil
}

func (l *CommandList) ResourceBarrier(barriers ...gpu.Barrier) {
	if !l.usable("ResourceBarrier") {
		return
	}
	// Barriers are not allowed inside a render pass.
	l.flushClears()
	l.endRenderPass()

	for _, b := range barriers {
		r, ok := b.Resource.(*Resource)
		if !ok {
			l.fail("ResourceBarrier", "foreign resource")
			return
		}
		if !r.owned {
			l.touchesSwapchain = true
		}

		srcStage := pipelineStage(b.Before, true)
		dstStage := pipelineStage(b.After, false)
		if r.image != vk.NullImage {
			oldLayout := imageLayout(b.Before)
			if !r.initialized {
				oldLayout = vk.ImageLayoutUndefined
				r.initialized = true
			}
			aspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
			if r.desc.Flags&gpu.ResourceFlagAllowDepthStencil != 0 {
				aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
			}
			barrier := vk.ImageMemoryBarrier{
				SType:               vk.StructureTypeImageMemoryBarrier,
				SrcAccessMask:       accessMask(b.Before),
				DstAccessMask:       accessMask(b.After),
				OldLayout:           oldLayout,
				NewLayout:           imageLayout(b.After),
				SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
				DstQueueFamilyIndex: vk.QueueFamilyIgnored,
				Image:               r.image,
				SubresourceRange: vk.ImageSubresourceRange{
					AspectMask: aspect,
					LevelCount: 1,
					LayerCount: 1,
				},
			}
			vk.CmdPipelineBarrier(l.cb, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
			continue
		}

		barrier := vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       accessMask(b.Before),
			DstAccessMask:       accessMask(b.After),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              r.buffer,
			Size:                vk.DeviceSize(vk.WholeSize),
		}
		vk.CmdPipelineBarrier(l.cb, srcStage, dstStage, 0, 0, nil, 1, []vk.BufferMemoryBarrier{barrier}, 0, nil)
	}
}

func (l *CommandList) SetRenderTargets(rtv gpu.DescriptorHandle, dsv *gpu.DescriptorHandle) {
	if !l.usable("SetRenderTargets") {
		return
	}
	l.flushClears()
	l.endRenderPass()
	l.rtv = rtv
	l.dsv = dsv
}

func (l *CommandList) ClearRenderTargetView(rtv gpu.DescriptorHandle, color [4]float32) {
	if !l.usable("ClearRenderTargetView") {
		return
	}
	if rtv != l.rtv {
		l.fail("ClearRenderTargetView", "only the bound render target can be cleared")
		return
	}
	l.endRenderPass()
	l.clear = color
	l.clearing = true
}

func (l *CommandList) ClearDepthStencilView(dsv gpu.DescriptorHandle, depth float32) {
	if !l.usable("ClearDepthStencilView") {
		return
	}
	if l.dsv == nil || dsv != *l.dsv {
		l.fail("ClearDepthStencilView", "only the bound depth target can be cleared")
		return
	}
	l.endRenderPass()
	l.depth = depth
	l.clearing = true
}

func (l *CommandList) SetGraphicsRootSignature(rs gpu.RootSignature) {
	if !l.usable("SetGraphicsRootSignature") {
		return
	}
	sig, ok := rs.(*RootSignature)
	if !ok {
		l.fail("SetGraphicsRootSignature", "foreign root signature")
		return
	}
	l.rootSig = sig
}

func (l *CommandList) SetPipelineState(pso gpu.PipelineState) {
	if !l.usable("SetPipelineState") {
		return
	}
	p, ok := pso.(*PipelineState)
	if !ok {
		l.fail("SetPipelineState", "foreign pipeline state")
		return
	}
	l.pipeline = p
}

// SetViewport flips Y with a negative height so clip space keeps Y pointing up.
func (l *CommandList) SetViewport(vp gpu.Viewport) {
	if !l.usable("SetViewport") {
		return
	}
	l.viewport = vk.Viewport{
		X:        vp.X,
		Y:        vp.Y + vp.Height,
		Width:    vp.Width,
		Height:   -vp.Height,
		MinDepth: vp.MinDepth,
		MaxDepth: vp.MaxDepth,
	}
}

func (l *CommandList) SetScissorRect(r gpu.Rect) {
	if !l.usable("SetScissorRect") {
		return
	}
	l.scissor = vk.Rect2D{
		Offset: vk.Offset2D{X: r.Left, Y: r.Top},
		Extent: vk.Extent2D{Width: uint32(r.Right - r.Left), Height: uint32(r.Bottom - r.Top)},
	}
}

// SetPrimitiveTopology is baked into the pipeline; a mismatch fails the recording.
func (l *CommandList) SetPrimitiveTopology(t gpu.Topology) {
	if !l.usable("SetPrimitiveTopology") {
		return
	}
	if l.pipeline != nil && l.pipeline.topology != t {
		l.fail("SetPrimitiveTopology", "topology differs from the pipeline state")
	}
}

func (l *CommandList) SetVertexBuffer(view gpu.VertexBufferView) {
	if !l.usable("SetVertexBuffer") {
		return
	}
	l.vb = view
}

func (l *CommandList) SetIndexBuffer(view gpu.IndexBufferView) {
	if !l.usable("SetIndexBuffer") {
		return
	}
	l.ib = view
}

func (l *CommandList) SetGraphicsRootConstantBuffer(param int, res gpu.Resource) {
	if !l.usable("SetGraphicsRootConstantBuffer") {
		return
	}
	r, ok := res.(*Resource)
	if !ok || r.buffer == vk.NullBuffer {
		l.fail("SetGraphicsRootConstantBuffer", "constant buffers must be buffers")
		return
	}
	l.cbv[param] = r
}

func (l *CommandList) DrawIndexedInstanced(indexCount, instanceCount uint32) {
	if !l.usable("DrawIndexedInstanced") {
		return
	}
	switch {
	case l.pipeline == nil:
		l.fail("DrawIndexedInstanced", "no pipeline state")
		return
	case l.rootSig == nil:
		l.fail("DrawIndexedInstanced", "no root signature")
		return
	}
	vb, ok := l.vb.Resource.(*Resource)
	if !ok {
		l.fail("DrawIndexedInstanced", "no vertex buffer")
		return
	}
	ib, ok := l.ib.Resource.(*Resource)
	if !ok {
		l.fail("DrawIndexedInstanced", "no index buffer")
		return
	}
	if !l.beginRenderPass() {
		return
	}

	vk.CmdBindPipeline(l.cb, vk.PipelineBindPointGraphics, l.pipeline.handle)
	vk.CmdSetViewport(l.cb, 0, 1, []vk.Viewport{l.viewport})
	vk.CmdSetScissor(l.cb, 0, 1, []vk.Rect2D{l.scissor})
	vk.CmdBindVertexBuffers(l.cb, 0, 1, []vk.Buffer{vb.buffer}, []vk.DeviceSize{0})
	indexType := vk.IndexTypeUint16
	if l.ib.Format == gpu.FormatR32Uint {
		indexType = vk.IndexTypeUint32
	}
	vk.CmdBindIndexBuffer(l.cb, ib.buffer, 0, indexType)

	for i := range l.rootSig.params {
		res, ok := l.cbv[i]
		if !ok {
			l.fail("DrawIndexedInstanced", "root parameter is not bound")
			return
		}
		set, err := l.rootSig.descriptorSet(i, res)
		if err != nil {
			l.err = err
			return
		}
		vk.CmdBindDescriptorSets(l.cb, vk.PipelineBindPointGraphics, l.rootSig.layout, uint32(i), 1, []vk.DescriptorSet{set}, 0, nil)
	}
	vk.CmdDrawIndexed(l.cb, indexCount, instanceCount, 0, 0, 0)
}

func (l *CommandList) CopyBufferRegion(dst gpu.Resource, src gpu.Resource, size uint64) {
	if !l.usable("CopyBufferRegion") {
		return
	}
	d, ok1 := dst.(*Resource)
	s, ok2 := src.(*Resource)
	if !ok1 || !ok2 || d.buffer == vk.NullBuffer || s.buffer == vk.NullBuffer {
		l.fail("CopyBufferRegion", "copies need two buffers")
		return
	}
	if size > d.desc.Width || size > s.desc.Width {
		l.fail("CopyBufferRegion", "copy out of bounds")
		return
	}
	l.endRenderPass()
	vk.CmdCopyBuffer(l.cb, s.buffer, d.buffer, 1, []vk.BufferCopy{{Size: vk.DeviceSize(size)}})
}

func (l *CommandList) beginRenderPass() bool {
	if l.inRenderPass {
		return true
	}
	color, target, ok := lookup(l.rtv)
	if !ok {
		l.fail("BeginRenderPass", "no render target bound")
		return false
	}
	depthView := vk.NullImageView
	depthFormat := vk.FormatUndefined
	if l.dsv != nil {
		view, depth, ok := lookup(*l.dsv)
		if !ok {
			l.fail("BeginRenderPass", "bad depth stencil view")
			return false
		}
		depthView, depthFormat = view, depth.format
	}

	pass, err := l.dev.renderPass(target.format, depthFormat)
	if err != nil {
		l.err = err
		return false
	}
	width, height := uint32(target.desc.Width), target.desc.Height
	fb, err := l.dev.framebuffer(pass, color, depthView, width, height)
	if err != nil {
		l.err = err
		return false
	}

	clearValues := make([]vk.ClearValue, 2)
	clearValues[0].SetColor(l.clear[:])
	clearValues[1].SetDepthStencil(l.depth, 0)
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  pass,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: width, Height: height},
		},
		ClearValueCount: 1,
		PClearValues:    clearValues,
	}
	if depthView != vk.NullImageView {
		beginInfo.ClearValueCount = 2
	}
	vk.CmdBeginRenderPass(l.cb, &beginInfo, vk.SubpassContentsInline)
	l.inRenderPass = true
	l.clearing = false
	return true
}

func (l *CommandList) endRenderPass() {
	if !l.inRenderPass {
		return
	}
	vk.CmdEndRenderPass(l.cb)
	l.inRenderPass = false
}

// flushClears runs an empty render pass when targets were cleared but nothing was drawn.
func (l *CommandList) flushClears() {
	if !l.clearing || l.inRenderPass || l.err != nil {
		return
	}
	if l.beginRenderPass() {
		l.endRenderPass()
	}
}

func (l *CommandList) Release() {
	if l.recording {
		vk.EndCommandBuffer(l.cb)
		l.recording = false
		l.alloc.open = nil
	}
	for a, cb := range l.buffers {
		if !a.released {
			vk.FreeCommandBuffers(l.dev.handle, a.pool, 1, []vk.CommandBuffer{cb})
		}
		delete(l.buffers, a)
	}
}
