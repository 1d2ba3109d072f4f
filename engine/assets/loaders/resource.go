package loaders

type ResourceType uint8

const (
	ResourceTypeNone ResourceType = iota
	ResourceTypeShader
	ResourceTypeImage
	ResourceTypeBinary
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeShader:
		return "shader"
	case ResourceTypeImage:
		return "image"
	case ResourceTypeBinary:
		return "binary"
	}
	return "none"
}

// Resource is what a loader hands back. Data depends on the loader.
type Resource struct {
	Name     string
	FullPath string
	DataSize uint64
	Data     interface{}
}
