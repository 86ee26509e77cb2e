// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It adapts the task lifecycle, points ledger and
// job services to JSON over HTTP, translating domain error kinds into
// status codes.
package api
