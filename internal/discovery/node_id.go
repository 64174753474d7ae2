package discovery

import "regexp"

// NodeID identifies a peer on the network, announced via mDNS TXT
// records and used as the key into the health monitor's status table.
type NodeID string

var nodeIDPattern = regexp.MustCompile(`^[0-9a-fA-F-]{8,}$`)

// Valid reports whether s is well-formed as a NodeID (a UUID-shaped
// token); used by the consistency checker's InvalidReplicaInfo check.
func (id NodeID) Valid() bool {
	return nodeIDPattern.MatchString(string(id))
}

// ParseNodeID reports whether s is a valid NodeID; its signature
// matches consistency.ReplicaParser, so it can be passed as one
// directly.
func ParseNodeID(s string) bool {
	return NodeID(s).Valid()
}
