// Package memory provides an in-memory implementation of the storage
// interfaces. It is suitable for development and tests; production
// deployments use the postgres implementation.
package memory
