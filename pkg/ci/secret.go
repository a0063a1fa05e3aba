package ci

import (
	"crypto/rand"

	"golang.org/x/crypto/nacl/box"

	derrors "github.com/suntomi/deplo/pkg/errors"
)

// sealSecret encrypts value for GitHub's "sealed box" secrets API
// (spec.md §6: "libsodium-sealed payload {encrypted_value, key_id}").
// box.SealAnonymous implements the same anonymous sealed-box construction
// as libsodium's crypto_box_seal, so the result is wire-compatible with
// GitHub's public-key + encrypted_value upload. SealAnonymous draws its own
// ephemeral key pair from rand.Reader on every call and has no hook to pin
// one, so ciphertext is never reproducible across calls even for the same
// (publicKey, value) -- tests open the sealed box back up instead of
// comparing against a fixed vector.
func sealSecret(publicKey [32]byte, value string) ([]byte, error) {
	sealed, err := box.SealAnonymous(nil, []byte(value), &publicKey, rand.Reader)
	if err != nil {
		return nil, derrors.Wrap(derrors.ErrCodeCIProvider, "failed to seal secret", err)
	}
	return sealed, nil
}
