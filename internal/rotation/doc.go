// Package rotation implements the identity rotation protocol: ask the Tor
// control port for a new circuit, re-read the exit address, and compare it
// with the address seen before the first request.
//
// The Engine depends on two narrow interfaces, Observer and Controller, so
// the retry policy can be tested without a Tor daemon. Production
// implementations live in the tor package.
//
// Attempts are strictly sequential. A NEWNYM signal that is still being
// applied while another observation runs would make the before/after
// comparison meaningless, so the Engine also serializes concurrent callers.
package rotation
