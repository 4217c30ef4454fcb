// Package memory provides process-local implementations of the repository
// interfaces. They back STORAGE_BACKEND=memory deployments and tests.
package memory
