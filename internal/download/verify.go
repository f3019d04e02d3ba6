package download

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// SignatureSuffix is appended to an archive URL to locate its detached signature.
const SignatureSuffix = ".sig"

// ErrSignatureInvalid is returned when an archive does not match its signature.
var ErrSignatureInvalid = errors.New("signature verification failed")

// Verifier checks detached OpenPGP signatures against a trusted keyring.
type Verifier struct {
	keyring openpgp.EntityList
}

// NewVerifier creates a verifier trusting keyring.
func NewVerifier(keyring openpgp.EntityList) *Verifier {
	return &Verifier{keyring: keyring}
}

// LoadVerifier reads an armored or binary keyring from path.
func LoadVerifier(path string) (*Verifier, error) {
	keyring, err := LoadKeyring(path)
	if err != nil {
		return nil, err
	}
	return NewVerifier(keyring), nil
}

// LoadKeyring reads an armored or binary OpenPGP keyring.
func LoadKeyring(path string) (openpgp.EntityList, error) {
	keyringFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	defer func() { _ = keyringFile.Close() }()

	keyring, err := openpgp.ReadArmoredKeyRing(keyringFile)
	if err != nil {
		// Try reading as non-armored keyring
		if _, seekErr := keyringFile.Seek(0, io.SeekStart); seekErr != nil {
			return nil, fmt.Errorf("read keyring: %w", seekErr)
		}
		keyring, err = openpgp.ReadKeyRing(keyringFile)
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring is empty")
	}

	return keyring, nil
}

// Verify checks the detached signature at signaturePath for filePath.
// Both armored and binary signatures are accepted.
func (v *Verifier) Verify(filePath, signaturePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = file.Close() }()

	sigFile, err := os.Open(signaturePath)
	if err != nil {
		return fmt.Errorf("open signature: %w", err)
	}
	defer func() { _ = sigFile.Close() }()

	_, err = openpgp.CheckArmoredDetachedSignature(v.keyring, file, sigFile, nil)
	if err != nil {
		if err := rewind(file, sigFile); err != nil {
			return err
		}
		_, err = openpgp.CheckDetachedSignature(v.keyring, file, sigFile, nil)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSignatureInvalid, filePath, err)
	}

	return nil
}

func rewind(files ...*os.File) error {
	for _, f := range files {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind %s: %w", f.Name(), err)
		}
	}
	return nil
}
