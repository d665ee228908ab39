/*
Package host defines the host capability consumed by the client and a
websocket implementation of it.

# Overview

The host is an opaque process manager reachable through one RPC entry
point and a set of named event channels. Invoker and Listener capture
those two capabilities; Bridge implements both over a single websocket
connection using JSON text frames.

# Bridge Protocol

	client → host  {"kind":"invoke","id":"req_…","cmd":"execute_command","args":{…}}
	client → host  {"kind":"listen","id":"req_…","event":"tart://event"}
	client → host  {"kind":"unlisten","id":"req_…","handler":"…"}
	host → client  {"kind":"reply","id":"req_…","payload":…}
	host → client  {"kind":"reply","id":"req_…","error":"message"}
	host → client  {"kind":"event","event":"tart://event","handler":"…","payload":{…}}

# Failure Model

Calls are never retried and the bridge imposes no timeouts; the caller's
context bounds each wait. Every call passes through an optional circuit
breaker. When the connection drops, pending calls fail with ErrClosed and
there is no reconnect.
*/
package host
