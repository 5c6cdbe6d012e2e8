// Package bridge drives authenticated repository transfers through the bridge
// helper subprocess.
//
// The helper is substituted into git's "ext::" remote transport, so all wire
// traffic and protocol framing stay inside the helper binary. The invoker
// injects connection parameters through the child environment (the helper
// reads configuration exclusively from its process environment) and passes
// operation metadata as repeated --extra key/value pairs.
package bridge
