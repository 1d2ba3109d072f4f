package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/trajectory/engine/core"
	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

const descriptorSetsPerParameter = 16

type setKey struct {
	param int
	res   *Resource
}

// RootSignature maps every root constant buffer to its own descriptor set.
// Sets are allocated once per bound buffer and cached.
type RootSignature struct {
	dev        *Device
	params     []gpu.RootParameter
	setLayouts []vk.DescriptorSetLayout
	layout     vk.PipelineLayout
	pool       vk.DescriptorPool
	sets       map[setKey]vk.DescriptorSet
	released   bool
}

var _ gpu.RootSignature = (*RootSignature)(nil)

func stageFlags(s gpu.ShaderStage) vk.ShaderStageFlags {
	switch s {
	case gpu.StageVertex:
		return vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	case gpu.StagePixel:
		return vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	return vk.ShaderStageFlags(vk.ShaderStageAllGraphics)
}

func newRootSignature(d *Device, desc gpu.RootSignatureDesc) (*RootSignature, error) {
	rs := &RootSignature{
		dev:    d,
		params: append([]gpu.RootParameter(nil), desc.Parameters...),
		sets:   make(map[setKey]vk.DescriptorSet),
	}

	for _, p := range desc.Parameters {
		if p.Kind != gpu.RootConstantBufferView {
			rs.Release()
			return nil, gpu.NewStatusError("CreateRootSignature", gpu.StatusUnsupported, "only root constant buffers are supported")
		}
		layoutInfo := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: 1,
			PBindings: []vk.DescriptorSetLayoutBinding{{
				Binding:         p.Register,
				DescriptorType:  vk.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,
				StageFlags:      stageFlags(p.Visibility),
			}},
		}
		var setLayout vk.DescriptorSetLayout
		if err := check("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(d.handle, &layoutInfo, d.ctx.Allocator, &setLayout)); err != nil {
			rs.Release()
			return nil, err
		}
		rs.setLayouts = append(rs.setLayouts, setLayout)
	}

	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(rs.setLayouts)),
		PSetLayouts:    rs.setLayouts,
	}
	if err := d.ctx.locks.SafeCall(PipelineManagement, func() error {
		return check("vkCreatePipelineLayout", vk.CreatePipelineLayout(d.handle, &layoutInfo, d.ctx.Allocator, &rs.layout))
	}); err != nil {
		rs.Release()
		return nil, err
	}

	if len(rs.params) > 0 {
		count := uint32(len(rs.params) * descriptorSetsPerParameter)
		poolInfo := vk.DescriptorPoolCreateInfo{
			SType:         vk.StructureTypeDescriptorPoolCreateInfo,
			MaxSets:       count,
			PoolSizeCount: 1,
			PPoolSizes: []vk.DescriptorPoolSize{{
				Type:            vk.DescriptorTypeUniformBuffer,
				DescriptorCount: count,
			}},
		}
		if err := check("vkCreateDescriptorPool", vk.CreateDescriptorPool(d.handle, &poolInfo, d.ctx.Allocator, &rs.pool)); err != nil {
			rs.Release()
			return nil, err
		}
	}
	return rs, nil
}

func (rs *RootSignature) descriptorSet(param int, res *Resource) (vk.DescriptorSet, error) {
	key := setKey{param: param, res: res}
	if set, ok := rs.sets[key]; ok {
		return set, nil
	}

	var set vk.DescriptorSet
	err := rs.dev.ctx.locks.SafeCall(DescriptorManagement, func() error {
		allocInfo := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     rs.pool,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{rs.setLayouts[param]},
		}
		if err := check("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(rs.dev.handle, &allocInfo, &set)); err != nil {
			return err
		}
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      rs.params[param].Register,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: res.buffer,
				Offset: 0,
				Range:  vk.DeviceSize(res.desc.Width),
			}},
		}
		vk.UpdateDescriptorSets(rs.dev.handle, 1, []vk.WriteDescriptorSet{write}, 0, nil)
		return nil
	})
	if err != nil {
		return set, err
	}
	rs.sets[key] = set
	return set, nil
}

func (rs *RootSignature) Release() {
	if rs.released {
		return
	}
	rs.released = true
	if rs.pool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(rs.dev.handle, rs.pool, rs.dev.ctx.Allocator)
	}
	if rs.layout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(rs.dev.handle, rs.layout, rs.dev.ctx.Allocator)
	}
	for _, l := range rs.setLayouts {
		vk.DestroyDescriptorSetLayout(rs.dev.handle, l, rs.dev.ctx.Allocator)
	}
	rs.sets = nil
}

type PipelineState struct {
	dev      *Device
	handle   vk.Pipeline
	topology gpu.Topology
	released bool
}

var _ gpu.PipelineState = (*PipelineState)(nil)

func (d *Device) shaderModule(op string, code []byte) (vk.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return vk.NullShaderModule, gpu.NewStatusError(op, gpu.StatusInvalidArg, "SPIR-V must be a non-empty multiple of 4 bytes")
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}
	var module vk.ShaderModule
	if err := check(op, vk.CreateShaderModule(d.handle, &createInfo, d.ctx.Allocator, &module)); err != nil {
		return vk.NullShaderModule, err
	}
	return module, nil
}

func topology(t gpu.Topology) vk.PrimitiveTopology {
	switch t {
	case gpu.TopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case gpu.TopologyLineList:
		return vk.PrimitiveTopologyLineList
	}
	return vk.PrimitiveTopologyTriangleList
}

func cullMode(c gpu.CullMode) vk.CullModeFlags {
	switch c {
	case gpu.CullFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case gpu.CullBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	}
	return vk.CullModeFlags(vk.CullModeNone)
}

func compareOp(c gpu.CompareFunc) vk.CompareOp {
	switch c {
	case gpu.CompareLessEqual:
		return vk.CompareOpLessOrEqual
	case gpu.CompareAlways:
		return vk.CompareOpAlways
	}
	return vk.CompareOpLess
}

func newPipelineState(d *Device, desc gpu.PipelineDesc) (*PipelineState, error) {
	rs, ok := desc.RootSignature.(*RootSignature)
	if !ok {
		return nil, gpu.NewStatusError("CreatePipelineState", gpu.StatusInvalidArg, "missing root signature")
	}
	if len(desc.InputLayout) == 0 {
		return nil, gpu.NewStatusError("CreatePipelineState", gpu.StatusInvalidArg, "empty input layout")
	}

	vs, err := d.shaderModule("vkCreateShaderModule(vertex)", desc.VS)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyShaderModule(d.handle, vs, d.ctx.Allocator)
	ps, err := d.shaderModule("vkCreateShaderModule(fragment)", desc.PS)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyShaderModule(d.handle, ps, d.ctx.Allocator)

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vs,
			PName:  VulkanSafeString("main"),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: ps,
			PName:  VulkanSafeString("main"),
		},
	}

	// Semantics bind to locations in declaration order.
	attributes := make([]vk.VertexInputAttributeDescription, len(desc.InputLayout))
	for i, el := range desc.InputLayout {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: uint32(i),
			Binding:  0,
			Format:   vkFormat(el.Format),
			Offset:   el.Offset,
		}
	}
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                         vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount: 1,
		PVertexBindingDescriptions: []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    desc.Stride,
			InputRate: vk.VertexInputRateVertex,
		}},
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: topology(desc.Topology),
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	// The negative viewport height keeps clockwise front faces.
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		LineWidth:   1.0,
		CullMode:    cullMode(desc.CullMode),
		FrontFace:   vk.FrontFaceClockwise,
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType: vk.StructureTypePipelineDepthStencilStateCreateInfo,
	}
	if desc.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthWriteEnable = vk.True
		depthStencil.DepthCompareOp = compareOp(desc.DepthFunc)
	}

	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments: []vk.PipelineColorBlendAttachmentState{{
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
				vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
		}},
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	depthFormat := vk.FormatUndefined
	if desc.DSVFormat != gpu.FormatUnknown {
		depthFormat = vkFormat(desc.DSVFormat)
	}
	pass, err := d.renderPass(d.colorFormat(desc.RTVFormat), depthFormat)
	if err != nil {
		return nil, err
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              rs.layout,
		RenderPass:          pass,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := d.ctx.locks.SafeCall(PipelineManagement, func() error {
		return check("vkCreateGraphicsPipelines", vk.CreateGraphicsPipelines(d.handle, vk.NullPipelineCache, 1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, d.ctx.Allocator, pipelines))
	}); err != nil {
		return nil, err
	}

	core.LogDebug("Graphics pipeline created!")
	return &PipelineState{dev: d, handle: pipelines[0], topology: desc.Topology}, nil
}

func (p *PipelineState) Release() {
	if p.released {
		return
	}
	p.released = true
	p.dev.ctx.locks.SafeCall(PipelineManagement, func() error {
		vk.DestroyPipeline(p.dev.handle, p.handle, p.dev.ctx.Allocator)
		return nil
	})
}
