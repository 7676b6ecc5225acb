// Package traceimport applies live emulator trace events to a ROM-annotation
// store.
//
// An Importer is fed from the transport receive loop, one message at a time
// and in arrival order. Store writes happen only when an attribute actually
// changes. Trace comments are staged privately and reach the store only
// through Finalize, so an aborted session leaves no comments behind.
package traceimport
