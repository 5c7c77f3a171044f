// Package model holds the plain data types shared by the engine, the
// persistence layer and the public API.
package model
