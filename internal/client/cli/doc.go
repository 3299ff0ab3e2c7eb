// Package cli implements relayctl, a command-line client for keyrelay.
//
// Commands
//
//	listen                 print relayed messages as they arrive
//	send <user> <text>     send one message and wait for its ACK
//	chat [user]            interactive session (/to <user>, /quit)
//	keys stats             pre-key inventory of the caller
//	keys check             whether the caller should upload more pre-keys
//	keys fetch <user>      fetch a bundle, consuming one of <user>'s pre-keys
//	keys upload <file>     publish the key bundle stored as JSON in <file>
//
// The session token comes from --token, the config file, RELAY_TOKEN or,
// on a terminal, a hidden prompt.
package cli
