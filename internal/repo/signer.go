package repo

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aptly-dev/aptly/pgp"

	"github.com/debrepod/debrepod/internal/config"
)

// SigningOperation identifies which step of the sign lifecycle a
// SigningError came from.
type SigningOperation string

const (
	OpImport SigningOperation = "Import"
	OpSign   SigningOperation = "Sign"
	OpVerify SigningOperation = "Verify"
)

// SigningError is the single error category RepositorySigner raises. Status
// names the step that failed and Err wraps the underlying error; the
// in-process pgp signer reports no return code or stderr, so Code and Stderr
// are left empty.
type SigningError struct {
	Operation SigningOperation
	Code      int
	Status    string
	Stderr    string
	Err       error
}

func (e *SigningError) Error() string {
	msg := fmt.Sprintf("%s failed: %s", e.Operation, e.Status)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *SigningError) Unwrap() error { return e.Err }

// Signer puts a repository's Release manifests under a GPG trust anchor:
// it imports the configured private key once at startup, then clear-signs
// and detached-signs each distribution's Release file on every rebuild.
type Signer struct {
	cfg   *config.Config
	cache *Cache

	signer pgp.Signer
	log    *slog.Logger
}

// NewSigner builds a Signer. Call Initialize before Sign.
func NewSigner(cfg *config.Config, cache *Cache) *Signer {
	return &Signer{
		cfg:    cfg,
		cache:  cache,
		signer: &pgp.GoSigner{},
		log:    slog.With("component", "signer"),
	}
}

// Initialize imports the configured private key into the signer's keyring
// and publishes the public key file into the repository root. Import
// failure is fatal. Called once per process lifetime (RepositoryService.Start),
// so unlike the source's GPG-backed signer, there is no persistent keyring
// state across calls worth checking before importing.
func (s *Signer) Initialize() error {
	privateKeyPath := s.cfg.Signing.GetPrivateKeyPath(s.cfg.ConfigDir)
	publicKeyPath := s.cfg.Signing.GetPublicKeyPath(s.cfg.ConfigDir)

	preparedPublic, cleanupPublic, err := prepareKeyFile(publicKeyPath)
	if err != nil {
		return &SigningError{Operation: OpImport, Status: "prepare public key", Err: err}
	}
	defer cleanupPublic()

	preparedPrivate, cleanupPrivate, err := prepareKeyFile(privateKeyPath)
	if err != nil {
		return &SigningError{Operation: OpImport, Status: "prepare private key", Err: err}
	}
	defer cleanupPrivate()

	s.signer.SetKeyRing(preparedPublic, preparedPrivate)
	if s.cfg.Signing.PrivateKeyPassphrase != "" {
		s.signer.SetPassphrase(s.cfg.Signing.PrivateKeyPassphrase, "")
	}

	if err := s.signer.Init(); err != nil {
		return &SigningError{Operation: OpImport, Status: "import private key", Err: err}
	}

	if err := s.publishPublicKey(); err != nil {
		return &SigningError{Operation: OpImport, Status: "publish public key", Err: err}
	}

	return nil
}

func (s *Signer) publishPublicKey() error {
	publicKeyPath := s.cfg.Signing.GetPublicKeyPath(s.cfg.ConfigDir)
	data, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return err
	}

	dest := filepath.Join(s.cfg.GetRepoPath(), s.cfg.Signing.PublicName)
	return os.WriteFile(dest, data, 0644)
}

// Sign amends dists/d/Release with a SignWith line, clear-signs it into
// InRelease, detached-signs it into Release.gpg, and verifies both
// signatures. The caller must hold cache.Lock(d) across this call, the same
// as Creator.Create.
func (s *Signer) Sign(d string) error {
	repoPath := s.cfg.GetRepoPath()
	releasePath := filepath.Join(repoPath, "dists", d, "Release")
	inReleasePath := filepath.Join(repoPath, "dists", d, "InRelease")
	releaseGpgPath := releasePath + ".gpg"

	if err := s.amendSignWith(releasePath); err != nil {
		return &SigningError{Operation: OpSign, Status: "amend SignWith", Err: err}
	}

	if err := s.signer.ClearSign(releasePath, inReleasePath); err != nil {
		return &SigningError{Operation: OpSign, Status: "clear-sign Release", Err: err}
	}
	if err := s.signer.DetachedSign(releasePath, releaseGpgPath); err != nil {
		return &SigningError{Operation: OpSign, Status: "detached-sign Release", Err: err}
	}

	if err := s.verify(d, releasePath, inReleasePath, releaseGpgPath); err != nil {
		return err
	}

	if data, err := os.ReadFile(releasePath); err == nil {
		s.cache.Store(d, releasePath, data)
	}
	if data, err := os.ReadFile(inReleasePath); err == nil {
		s.cache.Store(d, inReleasePath, data)
	}
	if data, err := os.ReadFile(releaseGpgPath); err == nil {
		s.cache.Store(d, releaseGpgPath, data)
	}

	return nil
}

// amendSignWith rewrites the Release file's last line to "SignWith:
// <keyid>", appending it instead when the file has no such line yet.
func (s *Signer) amendSignWith(releasePath string) error {
	data, err := os.ReadFile(releasePath)
	if err != nil {
		return err
	}

	signWithLine := "SignWith: " + s.cfg.Signing.PrivateKeyID

	text := strings.TrimRight(string(data), "\n")
	lines := strings.Split(text, "\n")
	last := lines[len(lines)-1]

	var amended string
	if strings.Contains(last, "SignWith") {
		lines[len(lines)-1] = signWithLine
		amended = strings.Join(lines, "\n") + "\n"
	} else {
		amended = text + "\n" + signWithLine + "\n"
	}

	return os.WriteFile(releasePath, []byte(amended), 0644)
}

func (s *Signer) verify(d, releasePath, inReleasePath, releaseGpgPath string) error {
	verifier := &pgp.GoVerifier{}
	publicKeyPath := s.cfg.Signing.GetPublicKeyPath(s.cfg.ConfigDir)
	verifier.AddKeyring(publicKeyPath)
	if err := verifier.InitKeyring(false); err != nil {
		return &SigningError{Operation: OpVerify, Status: "load public keyring", Err: err}
	}

	inReleaseFile, err := os.Open(inReleasePath)
	if err != nil {
		return &SigningError{Operation: OpVerify, Status: "open InRelease", Err: err}
	}
	defer func() { _ = inReleaseFile.Close() }()

	isClearSigned, err := verifier.IsClearSigned(inReleaseFile)
	if err != nil {
		return &SigningError{Operation: OpVerify, Status: "inspect InRelease", Err: err}
	}
	if !isClearSigned {
		return &SigningError{Operation: OpVerify, Status: "InRelease is not clear-signed"}
	}
	if _, err := inReleaseFile.Seek(0, io.SeekStart); err != nil {
		return &SigningError{Operation: OpVerify, Status: "seek InRelease", Err: err}
	}
	if _, err := verifier.VerifyClearsigned(inReleaseFile, false); err != nil {
		return &SigningError{Operation: OpVerify, Status: "verify InRelease signature", Err: err}
	}

	releaseData, err := os.ReadFile(releasePath)
	if err != nil {
		return &SigningError{Operation: OpVerify, Status: "open Release", Err: err}
	}
	gpgData, err := os.ReadFile(releaseGpgPath)
	if err != nil {
		return &SigningError{Operation: OpVerify, Status: "open Release.gpg", Err: err}
	}
	if _, err := verifier.VerifyDetachedSignature(bytes.NewReader(gpgData), bytes.NewReader(releaseData), false); err != nil {
		return &SigningError{Operation: OpVerify, Status: fmt.Sprintf("verify detached signature for %s", d), Err: err}
	}

	return nil
}
