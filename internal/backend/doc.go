// Package backend defines the request, metadata and response types served by
// infernum, the model type the engine runs, and a registry of named model
// factories. Concrete models live in subpackages.
package backend
