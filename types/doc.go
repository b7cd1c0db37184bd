// Package types provides unified type definitions for the Azentiq memory manager.
package types
