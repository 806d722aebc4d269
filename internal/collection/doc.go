// Package collection loads collection, environment, globals and vault
// documents from JSON (comments allowed) or YAML and flattens folders into
// the ordered item list a run consumes.
package collection
