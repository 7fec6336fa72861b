// Package httputil holds the JSON response helpers shared by the status
// endpoints. Handlers go through these instead of raw http.ResponseWriter
// calls so every response carries the same envelope and content type.
package httputil
