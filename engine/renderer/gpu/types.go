package gpu

import "fmt"

// FeatureLevel uses the D3D encoding, major in the high byte.
type FeatureLevel uint32

const (
	FeatureLevel11_0 FeatureLevel = 0xb000
	FeatureLevel11_1 FeatureLevel = 0xb100
	FeatureLevel12_0 FeatureLevel = 0xc000
	FeatureLevel12_1 FeatureLevel = 0xc100
)

func (f FeatureLevel) String() string {
	return fmt.Sprintf("%d_%d", f>>12, (f>>8)&0xf)
}

type AdapterDesc struct {
	Name                 string
	VendorID             uint32
	DeviceID             uint32
	DedicatedVideoMemory uint64
}

// Rational is a refresh rate. 0/0 means the platform default timing.
type Rational struct {
	Numerator   uint32
	Denominator uint32
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Numerator, r.Denominator)
}

type DisplayMode struct {
	Width       uint32
	Height      uint32
	Format      Format
	RefreshRate Rational
}

type Format uint32

const (
	FormatUnknown Format = iota
	FormatR8G8B8A8Unorm
	FormatB8G8R8A8Unorm
	FormatR32G32B32Float
	FormatR32G32B32A32Float
	FormatR16Uint
	FormatR32Uint
	FormatD32Float
)

// Size returns the number of bytes of one element, 0 for unknown formats.
func (f Format) Size() uint32 {
	switch f {
	case FormatR8G8B8A8Unorm, FormatB8G8R8A8Unorm, FormatR32Uint, FormatD32Float:
		return 4
	case FormatR16Uint:
		return 2
	case FormatR32G32B32Float:
		return 12
	case FormatR32G32B32A32Float:
		return 16
	}
	return 0
}

type QueueKind int

const (
	QueueDirect QueueKind = iota
	QueueCopy
	QueueCompute
)

type HeapKind int

const (
	HeapRTV HeapKind = iota
	HeapDSV
	HeapCBV
)

type HeapType int

const (
	HeapDefault HeapType = iota
	HeapUpload
	HeapReadback
)

type Dimension int

const (
	DimensionBuffer Dimension = iota
	DimensionTexture2D
)

type ResourceFlags uint32

const (
	ResourceFlagNone              ResourceFlags = 0
	ResourceFlagAllowRenderTarget ResourceFlags = 1 << 0
	ResourceFlagAllowDepthStencil ResourceFlags = 1 << 1
)

// ResourceState follows D3D12: Present and Common share a value.
type ResourceState uint32

const (
	StateCommon                  ResourceState = 0
	StatePresent                 ResourceState = 0
	StateVertexAndConstantBuffer ResourceState = 0x1
	StateIndexBuffer             ResourceState = 0x2
	StateRenderTarget            ResourceState = 0x4
	StateDepthWrite              ResourceState = 0x10
	StateCopyDest                ResourceState = 0x400
	StateCopySource              ResourceState = 0x800
	StateGenericRead             ResourceState = 0xac3
)

func (s ResourceState) String() string {
	switch s {
	case StateCommon:
		return "PRESENT"
	case StateVertexAndConstantBuffer:
		return "VERTEX_AND_CONSTANT_BUFFER"
	case StateIndexBuffer:
		return "INDEX_BUFFER"
	case StateRenderTarget:
		return "RENDER_TARGET"
	case StateDepthWrite:
		return "DEPTH_WRITE"
	case StateCopyDest:
		return "COPY_DEST"
	case StateCopySource:
		return "COPY_SOURCE"
	case StateGenericRead:
		return "GENERIC_READ"
	}
	return fmt.Sprintf("STATE(0x%x)", uint32(s))
}

type ResourceDesc struct {
	Dimension    Dimension
	Width        uint64
	Height       uint32
	Format       Format
	Heap         HeapType
	InitialState ResourceState
	Flags        ResourceFlags
	ClearDepth   float32
}

// Barrier is a transition barrier for a whole resource.
type Barrier struct {
	Resource Resource
	Before   ResourceState
	After    ResourceState
}

type ShaderStage int

const (
	StageAll ShaderStage = iota
	StageVertex
	StagePixel
)

type RootParameterKind int

const (
	RootConstantBufferView RootParameterKind = iota
)

type RootParameter struct {
	Kind       RootParameterKind
	Register   uint32
	Visibility ShaderStage
}

type RootSignatureDesc struct {
	Parameters []RootParameter
}

type InputElement struct {
	Semantic string
	Format   Format
	Offset   uint32
}

type Topology int

const (
	TopologyTriangleList Topology = iota
	TopologyTriangleStrip
	TopologyLineList
)

type CullMode int

const (
	CullNone CullMode = iota
	CullFront
	CullBack
)

type CompareFunc int

const (
	CompareLess CompareFunc = iota
	CompareLessEqual
	CompareAlways
)

type PipelineDesc struct {
	RootSignature RootSignature
	VS            []byte
	PS            []byte
	InputLayout   []InputElement
	Stride        uint32
	Topology      Topology
	CullMode      CullMode
	DepthTest     bool
	DepthFunc     CompareFunc
	RTVFormat     Format
	DSVFormat     Format
}

type SwapchainDesc struct {
	Width       uint32
	Height      uint32
	Format      Format
	BufferCount int
	Window      WindowHandle
	Fullscreen  bool
	RefreshRate Rational
	// VSync selects a presentation mode that waits for vertical blank.
	VSync bool
}

// WindowHandle is the platform window the swapchain presents to.
type WindowHandle interface{}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type Rect struct {
	Left, Top, Right, Bottom int32
}

type VertexBufferView struct {
	Resource Resource
	Stride   uint32
	Size     uint32
}

type IndexBufferView struct {
	Resource Resource
	Format   Format
	Size     uint32
}
