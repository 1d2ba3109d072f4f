package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/trajectory/engine/renderer/gpu"
)

func VulkanResultString(result vk.Result) string {
	switch result {
	case vk.Success:
		return "VK_SUCCESS"
	case vk.NotReady:
		return "VK_NOT_READY"
	case vk.Timeout:
		return "VK_TIMEOUT"
	case vk.Incomplete:
		return "VK_INCOMPLETE"
	case vk.Suboptimal:
		return "VK_SUBOPTIMAL_KHR"
	case vk.ErrorOutOfHostMemory:
		return "VK_ERROR_OUT_OF_HOST_MEMORY"
	case vk.ErrorOutOfDeviceMemory:
		return "VK_ERROR_OUT_OF_DEVICE_MEMORY"
	case vk.ErrorInitializationFailed:
		return "VK_ERROR_INITIALIZATION_FAILED"
	case vk.ErrorDeviceLost:
		return "VK_ERROR_DEVICE_LOST"
	case vk.ErrorMemoryMapFailed:
		return "VK_ERROR_MEMORY_MAP_FAILED"
	case vk.ErrorLayerNotPresent:
		return "VK_ERROR_LAYER_NOT_PRESENT"
	case vk.ErrorExtensionNotPresent:
		return "VK_ERROR_EXTENSION_NOT_PRESENT"
	case vk.ErrorFeatureNotPresent:
		return "VK_ERROR_FEATURE_NOT_PRESENT"
	case vk.ErrorIncompatibleDriver:
		return "VK_ERROR_INCOMPATIBLE_DRIVER"
	case vk.ErrorTooManyObjects:
		return "VK_ERROR_TOO_MANY_OBJECTS"
	case vk.ErrorFormatNotSupported:
		return "VK_ERROR_FORMAT_NOT_SUPPORTED"
	case vk.ErrorFragmentedPool:
		return "VK_ERROR_FRAGMENTED_POOL"
	case vk.ErrorSurfaceLost:
		return "VK_ERROR_SURFACE_LOST_KHR"
	case vk.ErrorNativeWindowInUse:
		return "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR"
	case vk.ErrorOutOfDate:
		return "VK_ERROR_OUT_OF_DATE_KHR"
	case vk.ErrorIncompatibleDisplay:
		return "VK_ERROR_INCOMPATIBLE_DISPLAY_KHR"
	case vk.ErrorOutOfPoolMemory:
		return "VK_ERROR_OUT_OF_POOL_MEMORY"
	}
	return "VK_ERROR_UNKNOWN"
}

// statusCode maps a Vulkan result onto the platform status codes the renderer reports.
func statusCode(result vk.Result) uint32 {
	switch result {
	case vk.Success:
		return gpu.StatusOK
	case vk.Timeout, vk.NotReady:
		return gpu.StatusWaitTimeout
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory, vk.ErrorOutOfPoolMemory, vk.ErrorFragmentedPool:
		return gpu.StatusOutOfMemory
	case vk.ErrorDeviceLost, vk.ErrorSurfaceLost, vk.ErrorOutOfDate:
		return gpu.StatusDeviceRemoved
	case vk.ErrorFeatureNotPresent, vk.ErrorExtensionNotPresent, vk.ErrorLayerNotPresent,
		vk.ErrorIncompatibleDriver, vk.ErrorFormatNotSupported:
		return gpu.StatusUnsupported
	case vk.ErrorInitializationFailed, vk.ErrorNativeWindowInUse, vk.ErrorIncompatibleDisplay:
		return gpu.StatusInvalidCall
	}
	return gpu.StatusFail
}

// check turns a failed call into a *gpu.StatusError.
func check(op string, result vk.Result) error {
	if result == vk.Success {
		return nil
	}
	return gpu.NewStatusError(op, statusCode(result), VulkanResultString(result))
}

var end = "\x00"
var endChar byte = '\x00'

func VulkanSafeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}

// cString reads a fixed size, zero terminated name as reported by the driver.
func cString(arr []byte) string {
	for i, b := range arr {
		if b == 0 {
			return string(arr[:i])
		}
	}
	return string(arr)
}

// sliceUint32 reinterprets SPIR-V bytecode as words. len(data) must be a multiple of 4.
func sliceUint32(data []byte) []uint32 {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}

func vkFormat(f gpu.Format) vk.Format {
	switch f {
	case gpu.FormatR8G8B8A8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case gpu.FormatB8G8R8A8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case gpu.FormatR32G32B32Float:
		return vk.FormatR32g32b32Sfloat
	case gpu.FormatR32G32B32A32Float:
		return vk.FormatR32g32b32a32Sfloat
	case gpu.FormatR16Uint:
		return vk.FormatR16Uint
	case gpu.FormatR32Uint:
		return vk.FormatR32Uint
	case gpu.FormatD32Float:
		return vk.FormatD32Sfloat
	}
	return vk.FormatUndefined
}

func imageLayout(s gpu.ResourceState) vk.ImageLayout {
	switch s {
	case gpu.StatePresent:
		return vk.ImageLayoutPresentSrc
	case gpu.StateRenderTarget:
		return vk.ImageLayoutColorAttachmentOptimal
	case gpu.StateDepthWrite:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case gpu.StateCopyDest:
		return vk.ImageLayoutTransferDstOptimal
	case gpu.StateCopySource:
		return vk.ImageLayoutTransferSrcOptimal
	}
	return vk.ImageLayoutGeneral
}

func accessMask(s gpu.ResourceState) vk.AccessFlags {
	switch s {
	case gpu.StateVertexAndConstantBuffer:
		return vk.AccessFlags(vk.AccessVertexAttributeReadBit) | vk.AccessFlags(vk.AccessUniformReadBit)
	case gpu.StateIndexBuffer:
		return vk.AccessFlags(vk.AccessIndexReadBit)
	case gpu.StateRenderTarget:
		return vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
	case gpu.StateDepthWrite:
		return vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit) | vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
	case gpu.StateCopyDest:
		return vk.AccessFlags(vk.AccessTransferWriteBit)
	case gpu.StateCopySource:
		return vk.AccessFlags(vk.AccessTransferReadBit)
	case gpu.StateGenericRead:
		return vk.AccessFlags(vk.AccessHostWriteBit) | vk.AccessFlags(vk.AccessTransferReadBit) | vk.AccessFlags(vk.AccessUniformReadBit)
	}
	return 0
}

func pipelineStage(s gpu.ResourceState, src bool) vk.PipelineStageFlags {
	switch s {
	case gpu.StatePresent:
		if src {
			return vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
		}
		return vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	case gpu.StateVertexAndConstantBuffer:
		return vk.PipelineStageFlags(vk.PipelineStageVertexInputBit) | vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit)
	case gpu.StateIndexBuffer:
		return vk.PipelineStageFlags(vk.PipelineStageVertexInputBit)
	case gpu.StateRenderTarget:
		return vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	case gpu.StateDepthWrite:
		return vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit) | vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit)
	case gpu.StateCopyDest, gpu.StateCopySource:
		return vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case gpu.StateGenericRead:
		return vk.PipelineStageFlags(vk.PipelineStageHostBit) | vk.PipelineStageFlags(vk.PipelineStageTransferBit) | vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit)
	}
	return vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
}
