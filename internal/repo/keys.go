package repo

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// prepareKeyFile ensures a key file is in the binary format aptly's
// GoSigner/GoVerifier expect. ASCII-armored files are converted into a
// temporary binary keyring; binary files are used as-is. The returned
// cleanup func removes any temporary file created.
func prepareKeyFile(keyPath string) (string, func(), error) {
	f, err := os.Open(keyPath)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = f.Close() }()

	header := make([]byte, 5)
	n, _ := f.Read(header)
	isArmored := n == 5 && bytes.Equal(header, []byte("-----"))

	if !isArmored {
		return keyPath, func() {}, nil
	}

	if _, err := f.Seek(0, 0); err != nil {
		return "", nil, err
	}

	keys, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		return "", nil, fmt.Errorf("read armored keyring: %w", err)
	}

	tmpFile, err := os.CreateTemp("", "debrepod-keyring-*.gpg")
	if err != nil {
		return "", nil, fmt.Errorf("create temp keyring: %w", err)
	}

	hasPrivateKey := false
	for _, entity := range keys {
		if entity.PrivateKey != nil {
			hasPrivateKey = true
			break
		}
	}

	for _, entity := range keys {
		var serializeErr error
		if hasPrivateKey && entity.PrivateKey != nil {
			serializeErr = entity.SerializePrivate(tmpFile, nil)
		} else {
			serializeErr = entity.Serialize(tmpFile)
		}
		if serializeErr != nil {
			_ = tmpFile.Close()
			_ = os.Remove(tmpFile.Name())
			return "", nil, fmt.Errorf("serialize key: %w", serializeErr)
		}
	}

	tmpFileName := tmpFile.Name()
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpFileName)
		return "", nil, fmt.Errorf("close temp keyring: %w", err)
	}

	cleanup := func() { _ = os.Remove(tmpFileName) }
	return tmpFileName, cleanup, nil
}
