// Package memory provides an in-memory content store. It backs tests and
// demos, and can be seeded from a YAML fixture.
package memory
