// Package config loads the node's YAML configuration over built-in
// defaults and resolves the standard directory layout under the node
// root.
package config
