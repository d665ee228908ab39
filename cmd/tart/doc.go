// Command tart drives terminal sessions on a process host.
//
// It speaks the websocket bridge protocol of internal/host and offers
// one subcommand per session command plus two long running modes:
//
//	tart list [--json]
//	tart create --command zsh --arg -l --title shell
//	tart write <id> <data> [-n]
//	tart resize <id> <rows> <cols>
//	tart remove <id>
//	tart watch [--diag-addr 127.0.0.1:9090] [--output]
//	tart attach <id> [--rows 24 --cols 80]
//	tart demo [--listen 127.0.0.1:7878] [--session zsh]
//
// Configuration comes from the environment (TART_HOST_URL, LOG_LEVEL, ...)
// and the global --host, --log-level and --dev flags override it.
package main
