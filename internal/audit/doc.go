// Package audit buffers identity events and hands them to a Sink off the
// request path.
//
// The dispatcher owns buffering and delivery only. Which events exist, and
// when they fire, is decided by the engine and the flow functions.
//
// This package must not import goIdentity or any sibling internal package.
package audit
