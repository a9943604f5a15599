package activitypub

import (
	"code.superseriousbusiness.org/httpsig"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Maximum accepted skew between the Date header and local time
const dateSkewTolerance = 12 * time.Hour

// SignRequest signs an outgoing HTTP request with the given private key
// keyId format: "https://example.com/users/alice#main-key"
func SignRequest(req *http.Request, privateKey *rsa.PrivateKey, keyId string, body []byte) error {
	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		[]string{"(request-target)", "host", "date", "digest"},
		httpsig.Signature,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}

	return signer.SignRequest(privateKey, keyId, req, body)
}

// RequestKeyId extracts the keyId of the Signature header before
// verification, so the signer's actor can be resolved first
func RequestKeyId(req *http.Request) (string, error) {
	if req.Header.Get("Signature") == "" {
		return "", ErrMissingSignature
	}
	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return "", fmt.Errorf("failed to create verifier: %w", err)
	}
	return verifier.KeyId(), nil
}

// VerifyRequest verifies the HTTP signature on an incoming request
// against the given public key PEM. Returns the keyId if valid.
func VerifyRequest(req *http.Request, publicKeyPem string) (string, error) {
	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return "", fmt.Errorf("failed to create verifier: %w", err)
	}

	rsaPubKey, err := ParsePublicKey(publicKeyPem)
	if err != nil {
		return "", err
	}

	if err := verifier.Verify(rsaPubKey, httpsig.RSA_SHA256); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	return verifier.KeyId(), nil
}

// VerifyDate checks that the Date header is present and within the
// tolerance window
func VerifyDate(req *http.Request) error {
	dateHeader := req.Header.Get("Date")
	if dateHeader == "" {
		return ErrExpiredHeader
	}
	date, err := http.ParseTime(dateHeader)
	if err != nil {
		return ErrExpiredHeader
	}
	skew := time.Since(date)
	if skew < 0 {
		skew = -skew
	}
	if skew > dateSkewTolerance {
		return ErrExpiredHeader
	}
	return nil
}

// VerifyDigest checks the Digest header against the request body.
// Required for any request that carries a body.
func VerifyDigest(req *http.Request, body []byte) error {
	digestHeader := req.Header.Get("Digest")
	if digestHeader == "" {
		return ErrMissingDigest
	}
	if ComputeDigest(body) != normalizeDigest(digestHeader) {
		return ErrMissingDigest
	}
	return nil
}

// ComputeDigest returns the SHA-256 Digest header value for a body
func ComputeDigest(body []byte) string {
	hash := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])
}

func normalizeDigest(header string) string {
	if strings.HasPrefix(strings.ToLower(header), "sha-256=") {
		return "SHA-256=" + header[len("sha-256="):]
	}
	return header
}

// KeyIdToActorId strips the key fragment of a keyId, yielding the actor URI.
// Handles both "#main-key" fragments and "/main-key" path suffixes, since
// some servers key-scope rather than actor-scope the identifier.
func KeyIdToActorId(keyId string) string {
	actorId := strings.Split(keyId, "#")[0]
	actorId = strings.TrimSuffix(actorId, "/main-key")
	return actorId
}

// ParsePrivateKey converts PEM string to *rsa.PrivateKey
func ParsePrivateKey(pemString string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return privateKey, nil
}

// ParsePublicKey converts PEM string to *rsa.PublicKey
func ParsePublicKey(pemString string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaPubKey, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}

	return rsaPubKey, nil
}
