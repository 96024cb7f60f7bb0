// Package session orchestrates one extraction session end to end.
//
// The Manager is the heart of the engine: it recovers state from the
// checkpoint store, drives the paged fetch loop through the retry
// executor and rate limiter, accumulates results with page-level
// degradation, accounts progress, and finalizes the session into a
// terminal outcome. Interruption at any point leaves a resumable
// checkpoint behind.
package session
