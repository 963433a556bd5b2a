// Package signing binds a langpack archive to its identity and file version
// with an ed25519 signature embedded in the archive.
//
// The identity block is the contract that makes a signature non-transferable:
// ID must be globally unique and never reused across artifacts of any kind,
// and Version must increase monotonically for that ID. Both guarantees are
// the caller's (the identity allocator and the entity store's conditional
// publish enforce them).
package signing

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gowebpki/jcs"
)

// Archive members added by the signer.
const (
	IdentityMember  = "META-INF/ids.json"
	ContentsMember  = "META-INF/contents.json"
	SignatureMember = "META-INF/signature.json"
)

// IdentityBlock is the signed binding between archive content and the pack.
type IdentityBlock struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
}

// Signer produces a signed archive from raw archive bytes and an identity
// block, or fails. Implementations must not write anywhere; placement is the
// storage placer's job.
type Signer interface {
	Sign(ctx context.Context, archive []byte, block IdentityBlock) ([]byte, error)
}

// signatureEnvelope is the content of the signature member.
type signatureEnvelope struct {
	Algorithm string `json:"algorithm"`
	KeyID     string `json:"key_id"`
	Signature string `json:"signature"`
}

// contentsManifest lists SHA-256 digests of every original archive member.
type contentsManifest struct {
	Digests map[string]string `json:"digests"`
}

// Ed25519Signer signs archives with an ed25519 key.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewEd25519Signer generates a fresh keypair (dev/test use).
func NewEd25519Signer() (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &Ed25519Signer{priv: priv, pub: pub}, nil
}

// NewEd25519SignerFromSeed builds a signer from a 32-byte hex seed.
func NewEd25519SignerFromSeed(seedHex string) (*Ed25519Signer, error) {
	seed, err := hex.DecodeString(strings.TrimSpace(seedHex))
	if err != nil {
		return nil, fmt.Errorf("invalid seed hex: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Ed25519Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// LoadEd25519Signer reads a hex seed from a key file.
func LoadEd25519Signer(path string) (*Ed25519Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key %q: %w", path, err)
	}
	return NewEd25519SignerFromSeed(string(data))
}

// PublicKey returns the hex-encoded public key, also used as the key id.
func (s *Ed25519Signer) PublicKey() string {
	return hex.EncodeToString(s.pub)
}

// Sign re-writes the archive with META-INF members binding its contents to
// the identity block. The source bytes are read once and not mutated.
func (s *Ed25519Signer) Sign(ctx context.Context, archive []byte, block IdentityBlock) ([]byte, error) {
	if block.ID == "" {
		return nil, errors.New("signing: empty identity")
	}
	if block.Version <= 0 {
		return nil, fmt.Errorf("signing: non-positive version %d", block.Version)
	}

	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("signing: open archive: %w", err)
	}

	blockJSON, contentsJSON, payload, err := signingPayload(zr, block)
	if err != nil {
		return nil, err
	}
	sig := ed25519.Sign(s.priv, payload)

	envelope, err := json.Marshal(signatureEnvelope{
		Algorithm: "ed25519",
		KeyID:     s.PublicKey(),
		Signature: hex.EncodeToString(sig),
	})
	if err != nil {
		return nil, fmt.Errorf("signing: marshal envelope: %w", err)
	}

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "META-INF/") {
			continue
		}
		if err := copyMember(zw, f); err != nil {
			return nil, err
		}
	}
	for _, member := range []struct {
		name string
		data []byte
	}{
		{IdentityMember, blockJSON},
		{ContentsMember, contentsJSON},
		{SignatureMember, envelope},
	} {
		w, err := zw.Create(member.name)
		if err != nil {
			return nil, fmt.Errorf("signing: create %s: %w", member.name, err)
		}
		if _, err := w.Write(member.data); err != nil {
			return nil, fmt.Errorf("signing: write %s: %w", member.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("signing: finalize archive: %w", err)
	}
	return out.Bytes(), nil
}

// Verify checks a signed archive against a hex public key. It recomputes the
// member digests and verifies the signature over them and the identity block.
func Verify(signed []byte, pubHex string) (IdentityBlock, error) {
	var block IdentityBlock

	pub, err := hex.DecodeString(pubHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return block, errors.New("signing: invalid public key")
	}

	zr, err := zip.NewReader(bytes.NewReader(signed), int64(len(signed)))
	if err != nil {
		return block, fmt.Errorf("signing: open archive: %w", err)
	}

	blockJSON, err := readMember(zr, IdentityMember)
	if err != nil {
		return block, err
	}
	if err := json.Unmarshal(blockJSON, &block); err != nil {
		return block, fmt.Errorf("signing: decode identity block: %w", err)
	}

	envJSON, err := readMember(zr, SignatureMember)
	if err != nil {
		return block, err
	}
	var env signatureEnvelope
	if err := json.Unmarshal(envJSON, &env); err != nil {
		return block, fmt.Errorf("signing: decode signature envelope: %w", err)
	}
	sig, err := hex.DecodeString(env.Signature)
	if err != nil {
		return block, fmt.Errorf("signing: decode signature: %w", err)
	}

	_, _, payload, err := signingPayload(zr, block)
	if err != nil {
		return block, err
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), payload, sig) {
		return block, errors.New("signing: signature invalid")
	}
	return block, nil
}

// signingPayload computes the canonical identity block, the contents manifest
// and the byte sequence that is actually signed. META-INF members are
// excluded from the digest listing so Sign and Verify agree.
func signingPayload(zr *zip.Reader, block IdentityBlock) (blockJSON, contentsJSON, payload []byte, err error) {
	digests := make(map[string]string)
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "META-INF/") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("signing: open member %s: %w", f.Name, err)
		}
		h := sha256.New()
		_, err = io.Copy(h, rc)
		_ = rc.Close()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("signing: digest member %s: %w", f.Name, err)
		}
		digests[f.Name] = hex.EncodeToString(h.Sum(nil))
	}
	if len(digests) == 0 {
		return nil, nil, nil, errors.New("signing: empty archive")
	}

	rawBlock, err := json.Marshal(block)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("signing: marshal identity block: %w", err)
	}
	blockJSON, err = jcs.Transform(rawBlock)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("signing: canonicalize identity block: %w", err)
	}

	rawContents, err := json.Marshal(contentsManifest{Digests: digests})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("signing: marshal contents: %w", err)
	}
	contentsJSON, err = jcs.Transform(rawContents)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("signing: canonicalize contents: %w", err)
	}

	contentsSum := sha256.Sum256(contentsJSON)
	payload = append(append([]byte{}, blockJSON...), contentsSum[:]...)
	return blockJSON, contentsJSON, payload, nil
}

func copyMember(zw *zip.Writer, f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("signing: open member %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	hdr := f.FileHeader
	w, err := zw.CreateHeader(&hdr)
	if err != nil {
		return fmt.Errorf("signing: copy member %s: %w", f.Name, err)
	}
	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("signing: copy member %s: %w", f.Name, err)
	}
	return nil
}

func readMember(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("signing: open %s: %w", name, err)
		}
		defer func() { _ = rc.Close() }()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("signing: %s missing from archive", name)
}
