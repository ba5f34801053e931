// Package registry tracks which nodes are currently connected and
// authenticated, keyed by their (node_id, password) pair.
package registry
