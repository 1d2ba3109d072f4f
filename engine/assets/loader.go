package assets

import "github.com/spaghettifunk/trajectory/engine/assets/loaders"

type Loader interface {
	Load(path string, params interface{}) (*loaders.Resource, error) // `interface{}` here allows loaders to take various options
	Unload(*loaders.Resource) error
}
