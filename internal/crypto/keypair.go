package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// GenerateEd25519 generates a new Ed25519 identity keypair.
// The keypair can be used for peer authentication and digital signatures.
//
// Returns:
//   - Ed25519KeyPair containing public and private keys
//   - error if random number generation fails
func GenerateEd25519() (*Ed25519KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Ed25519 keypair: %w", err)
	}

	return &Ed25519KeyPair{
		PublicKey:  pub,
		PrivateKey: priv,
	}, nil
}