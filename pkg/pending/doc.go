// Package pending correlates dispatched node commands with their
// replies. Each outstanding request owns a one-shot slot keyed by
// (request_id, request_type); exactly one of the facade's timeout path
// or the session's reply path consumes it.
package pending
