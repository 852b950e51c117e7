// Package iceagent is an Interactive Connectivity Establishment (ICE)
// agent for a single media stream, implementing RFC 5245 connectivity
// checks, RFC 7675 consent freshness, and RFC 5389 STUN encoding.
//
// The agent itself lives in the ice subpackage; see ice.Agent.
package iceagent
