//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
)

const shaderDir = "assets/shaders"

var shaderSources = []string{"cube.vert", "cube.frag"}

type Build mg.Namespace

// Compiles the cube shaders to SPIR-V with glslc.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the trajectory binary.
func (Build) Binary() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", "bin/trajectory", "."), withStream())
	return err
}

func buildShaders() error {
	for _, src := range shaderSources {
		in := filepath.Join(shaderDir, src)
		if _, err := executeCmd("glslc", withArgs(in, "-o", in+".spv"), withStream()); err != nil {
			return err
		}
	}
	return nil
}
