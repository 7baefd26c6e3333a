// SPDX-License-Identifier: GPL-3.0-or-later

// Package timeoutmap maps engine-specific timeout errors to canonical ones.
//
// Network engines signal an expired timeout in different ways: the [net]
// package returns errors wrapping [os.ErrDeadlineExceeded] or ETIMEDOUT,
// quic-go returns [*quic.IdleTimeoutError], and so on. HTTP client code
// that wants to react to "the socket timed out" would need to know every
// engine. This package interposes between the engine byte streams and the
// consumer and replaces the engine timeout signals with two canonical error
// types: [*ConnectTimeoutError] and [*SocketTimeoutError]. Both implement
// [net.Error], keep the engine message, and unwrap to the engine error.
//
// # Streams and Mappers
//
// The byte stream model is [ReadStream] and [WriteStream]. A stream has a
// single terminal state, either normal end-of-data or a failure with a cause.
//
// [MapInboundFunc] maps a [ReadStream] produced by an engine: the consumer
// reads from a replacement [*Channel] filled by a background [*Relay].
// [MapOutboundFunc] maps a [WriteStream] consumed by an engine: the consumer
// writes into a replacement drained by a [*Relay]. In both cases, a failure
// on either side terminates the other side with the same cause, and a
// timeout marker becomes the canonical error the consumer observes.
//
// Relays run on a caller-supplied [*Supervisor]. Tearing the supervisor down
// terminates every relay it owns, and each relay terminates both of its
// streams with the teardown cause.
//
// # Policies
//
// A [Policy] contains all the engine-specific knowledge: which errors are
// timeout markers and how to build the canonical errors. Select it through
// [Config.Policy]:
//
//   - [StdlibPolicy]: the [net] package engine (the default)
//   - [QUICPolicy]: the quic-go engine
//   - [NativePolicy]: an engine already producing canonical errors, for
//     which mappers return the engine streams unchanged
//
// [MapSocketCause] and [MapConnectCause] apply the substitution rule to a
// single error without any stream involved.
//
// # Transport Integration
//
// Engine adapters turn engine objects into streams: [NewConnReadStream],
// [NewConnWriteStream], [NewReadCloserStream], [NewWriteCloserStream],
// [NewQUICReadStream], and [NewQUICWriteStream].
//
// On top of the mappers, this package provides [Func] primitives composable
// using [Compose2] and friends:
//
//   - [ConnectFunc]: dials and maps dial timeouts, including the engine's
//     own connect timeout, to [*ConnectTimeoutError]
//   - [TLSHandshakeFunc]: performs the TLS handshake and maps handshake
//     timeouts to [*ConnectTimeoutError]
//   - [MapConnFunc]: maps both directions of a [net.Conn]
//   - [HTTPConnFunc]: creates an [*HTTPConn] mapping round trip and
//     response body timeouts to [*SocketTimeoutError]
//
// # Observability
//
// All primitives support structured logging via [SLogger] (compatible with
// [log/slog]). By default, logging is disabled. Relays emit relayStart and
// relayDone at [slog.LevelInfo] and relayTransfer for each chunk at
// [slog.LevelDebug]. The relayDone event includes the engine error (origErr),
// the error observed by the consumer (err), and whether it was mapped.
// Events carry the spanID assigned by [NewRequestData], which is also
// recorded inside the canonical errors.
//
// # Design Boundaries
//
// This package does not enforce timeouts: engines do, according to the
// deadlines and contexts configured by the caller. The [TimeoutConfig] in
// [RequestData] is only diagnostic context. This package also does not
// retry failed operations and does no I/O other than forwarding the bytes
// that engines and consumers produce.
package timeoutmap
