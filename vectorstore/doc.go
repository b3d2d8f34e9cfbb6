// Package vectorstore defines the interface between ragpilot and the vector
// document index.
//
// The index itself is an external collaborator: similarity search quality
// and embedding computation are properties of the hosted services, not of
// this system. Drivers live in sub-packages; vectorstore/redis implements
// the interface over RediSearch vector indexes.
package vectorstore
