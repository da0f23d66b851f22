// Package httpserver provides the HTTP/HTTPS server for StreamMesh.
//
// It uses the Go standard library net/http for implementation,
// providing RESTful API endpoints for keyed state access and
// checkpoint management, plus health and Prometheus metrics endpoints.
package httpserver
