// Package server hosts the Fiber HTTP service: the request middleware chain,
// the operation and result endpoints, and the shared outbound HTTP client used
// by the remote generator. Diagnostics routes live in the routes subpackage.
package server
