/*
Copyright © 2025 EleutherAI
SPDX-License-Identifier: Apache-2.0
*/

// Package keys generates the per-deployment SSH keypair.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"

	"golang.org/x/crypto/ssh"

	"github.com/eleutherai/neoxctl/pkg/errors"
)

// rsaBits is the keypair size. 2048 keeps generation fast; the key only
// guards pod-to-pod SSH within a single training run.
const rsaBits = 2048

// Pair holds freshly generated key material. Each deployment gets its own
// pair; pairs are never reused across invocations.
type Pair struct {
	// PrivatePEM is the PKCS#1 PEM-encoded private key, no passphrase.
	PrivatePEM []byte
	// PublicAuthorizedKey is the public key in authorized_keys format.
	PublicAuthorizedKey []byte
}

// Generate creates a new RSA keypair.
func Generate() (*Pair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeKeyGeneration, "rsa key generation failed", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})

	pub, err := ssh.NewPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeKeyGeneration, "public key encoding failed", err)
	}

	return &Pair{
		PrivatePEM:          privPEM,
		PublicAuthorizedKey: ssh.MarshalAuthorizedKey(pub),
	}, nil
}
