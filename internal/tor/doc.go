// Package tor talks to the local Tor daemon on behalf of the rotation engine.
//
// It provides the two collaborators the engine needs:
//   - IPObserver reads the exit address by querying an IP-echo service
//     through the SOCKS5 port
//   - CircuitController opens a control-port session, sends NEWNYM and
//     closes the session
//
// plus the plumbing around them: a SOCKS5 Client that builds HTTP clients,
// connectivity checks for both ports, and EmbeddedTor for running a private
// daemon through tornago.
//
// Every exported operation returns an error value; transport failures never
// escape as panics.
package tor
