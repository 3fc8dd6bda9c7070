// Package corelib provides the stock reflectors: vector math, keyboard
// input handlers with script-overridable callbacks, and a text asset
// loader. Importing the package registers them with script.
package corelib

import "github.com/wippyai/script-bridge/script"

// Reflector names.
const (
	MathReflector  = "math"
	InputReflector = "input"
	AssetReflector = "asset"
)

// Script modules the reflectors bind into.
const (
	MathModule  = "geom"
	InputModule = "input"
	AssetModule = "asset"
)

// Reflectors returns fresh instances of the stock reflectors.
func Reflectors() []script.Reflector {
	return []script.Reflector{
		script.NewReflector(MathReflector, nil, reflectMath),
		script.NewReflector(InputReflector, []string{MathReflector}, reflectInput),
		script.NewReflector(AssetReflector, nil, reflectAsset),
	}
}

func init() {
	for _, r := range Reflectors() {
		script.RegisterReflector(r)
	}
}
