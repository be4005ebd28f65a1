package rpc

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"vaultchain/storage"
)

// SignatureHeader carries the hex-encoded secp256k1 signature over a
// state-changing request.
const SignatureHeader = "X-Vault-Signature"

var (
	errUnauthenticated = errors.New("unauthenticated")
	errStaleNonce      = errors.New("stale nonce")
)

var noncePrefix = []byte("rpc/nonce/")

// signedFields identify the signer of a request body. Every state-changing
// request embeds them.
type signedFields struct {
	Caller string `json:"caller"`
	Nonce  uint64 `json:"nonce"`
}

func (f signedFields) signer() signedFields { return f }

type signedRequest interface {
	signer() signedFields
}

// RequestDigest is the hash a client signs: method, path and the exact body
// bytes it sends.
func RequestDigest(method, path string, body []byte) []byte {
	return ethcrypto.Keccak256(
		[]byte("vaultchain request\n"),
		[]byte(strings.ToUpper(method)+" "+path+"\n"),
		body,
	)
}

// SignRequest returns the SignatureHeader value for body.
func SignRequest(key *ecdsa.PrivateKey, method, path string, body []byte) (string, error) {
	sig, err := ethcrypto.Sign(RequestDigest(method, path, body), key)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(sig), nil
}

func recoverSigner(digest []byte, signature string) ([20]byte, error) {
	var zero [20]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "0x"))
	if err != nil {
		return zero, fmt.Errorf("%w: signature: %v", errUnauthenticated, err)
	}
	if len(raw) != 65 {
		return zero, fmt.Errorf("%w: signature must be 65 bytes", errUnauthenticated)
	}
	if raw[64] >= 27 {
		raw[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(digest, raw)
	if err != nil {
		return zero, fmt.Errorf("%w: invalid signature: %v", errUnauthenticated, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// NonceStore tracks the highest nonce accepted from each signer so a signed
// request cannot be replayed.
type NonceStore struct {
	mu sync.Mutex
	db storage.Database
}

// NewNonceStore keeps nonces in db. A nil db keeps them in memory.
func NewNonceStore(db storage.Database) *NonceStore {
	if db == nil {
		db = storage.NewMemDB()
	}
	return &NonceStore{db: db}
}

func nonceKey(addr [20]byte) []byte {
	return append(append([]byte(nil), noncePrefix...), addr[:]...)
}

// Last returns the highest nonce accepted from addr, zero if none.
func (n *NonceStore) Last(addr [20]byte) (uint64, error) {
	raw, err := n.db.Get(nonceKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("rpc: corrupt nonce record for %x", addr)
	}
	return binary.BigEndian.Uint64(raw), nil
}

// Consume accepts nonce when it is above the last one seen from addr.
func (n *NonceStore) Consume(addr [20]byte, nonce uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	last, err := n.Last(addr)
	if err != nil {
		return err
	}
	if nonce <= last {
		return fmt.Errorf("%w: %w: %d not above %d", errUnauthenticated, errStaleNonce, nonce, last)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	batch := n.db.NewBatch()
	batch.Put(nonceKey(addr), buf[:])
	return n.db.Write(batch)
}

// authenticate decodes a signed body into out and returns the caller it was
// signed by. The declared caller must match the recovered signer and the
// nonce must be fresh.
func (s *Server) authenticate(r *http.Request, out signedRequest) ([20]byte, error) {
	var zero [20]byte
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		return zero, fmt.Errorf("%w: read body: %v", errBadRequest, err)
	}
	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		return zero, fmt.Errorf("%w: missing %s header", errUnauthenticated, SignatureHeader)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return zero, fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	fields := out.signer()
	caller, err := parseAddress("caller", fields.Caller)
	if err != nil {
		return zero, err
	}
	if fields.Nonce == 0 {
		return zero, fmt.Errorf("%w: nonce must be greater than zero", errBadRequest)
	}
	signer, err := recoverSigner(RequestDigest(r.Method, r.URL.Path, body), signature)
	if err != nil {
		return zero, err
	}
	if signer != caller {
		return zero, fmt.Errorf("%w: signature does not match caller", errUnauthenticated)
	}
	if err := s.nonces.Consume(caller, fields.Nonce); err != nil {
		return zero, err
	}
	return caller, nil
}
