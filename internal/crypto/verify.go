package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
)

// verificationDomain separates verification-message signatures from any
// other use of a node's identity key.
const verificationDomain = "vdfs-verify-v1"

// VerificationMessage attests that a node holds a file matching the given
// Merkle root, signed by that node's identity key. A requesting peer
// collects these from replica holders after a transfer to confirm the
// write landed intact without re-reading the whole file itself.
type VerificationMessage struct {
	NodeID     string `json:"node_id"`
	Path       string `json:"path"`
	MerkleRoot string `json:"merkle_root"`
	Signature  string `json:"signature"` // base64 ed25519 signature
}

func verificationTranscript(nodeID, path, merkleRoot string) []byte {
	return []byte(verificationDomain + "|" + nodeID + "|" + path + "|" + merkleRoot)
}

// SignVerification produces a VerificationMessage for path/merkleRoot
// using priv, the signing node's Ed25519 identity key.
func SignVerification(nodeID, path, merkleRoot string, priv ed25519.PrivateKey) VerificationMessage {
	sig := ed25519.Sign(priv, verificationTranscript(nodeID, path, merkleRoot))
	return VerificationMessage{
		NodeID:     nodeID,
		Path:       path,
		MerkleRoot: merkleRoot,
		Signature:  base64.StdEncoding.EncodeToString(sig),
	}
}

// VerifyVerification checks msg's signature against the signer's public
// key and confirms the attested Merkle root matches wantMerkleRoot.
func VerifyVerification(msg VerificationMessage, pub ed25519.PublicKey, wantMerkleRoot string) error {
	if msg.MerkleRoot != wantMerkleRoot {
		return fmt.Errorf("crypto: verification root mismatch: got %s, want %s", msg.MerkleRoot, wantMerkleRoot)
	}
	sig, err := base64.StdEncoding.DecodeString(msg.Signature)
	if err != nil {
		return fmt.Errorf("crypto: decode verification signature: %w", err)
	}
	if !ed25519.Verify(pub, verificationTranscript(msg.NodeID, msg.Path, msg.MerkleRoot), sig) {
		return fmt.Errorf("crypto: verification signature invalid for node %s", msg.NodeID)
	}
	return nil
}
