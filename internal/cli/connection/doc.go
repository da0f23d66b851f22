// Package connection provides the HTTP client for streammesh-cli.
//
// The client wraps net/http with the worker API's JSON envelope
// handling: every response carries {code, message, request_id, data},
// error responses surface as "[CODE] message" and successful payloads
// are decoded from the envelope's data field.
//
// @design DS-0602
package connection
