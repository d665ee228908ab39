/*
Package command implements the command codec between the client and the
host's RPC entry point.

# Wire Form

A logical command name and payload become one envelope:

	Execute(ctx, "create_terminal", types.CreateRequest{Command: "zsh"})
	→ execute_command({"command": {"type": "CreateTerminal", "command": "zsh", "args": null, "title": null}})

The host replies with {id, command, result: {Ok?, Err?}}. Presence of a
slot defines it even when it holds null.

# Outcomes

	Ok present            → Success() == true, Value() holds Ok
	else Err present      → Failure() returns the Err value
	neither               → Failure() returns nil (Malformed() == true)

Transport failures wrap ErrTransport, replies that are not JSON wrap
ErrMalformedReply, and typed decoding failures wrap ErrDecode. Command
failures are values, never errors.
*/
package command
