// Package secframe owns the secure frame transport stage.
//
// Ownership boundary:
// - session readiness state machine
// - pending write buffering and flush/protect orchestration
// - aggregate completion resolution for batched writes
// - protector lifetime from installation to shutdown
//
// The handshake that produces a protector and the transport that carries
// framed bytes live outside this package, behind the Protector and
// Downstream contracts.
package secframe
