// Package handlers implements the HTTP handlers of the memory service.
package handlers
