// Package api defines the request and response types of the HTTP service.
package api
