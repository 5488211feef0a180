package venue

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xspreadcap/polymarket-maker/pkg/types"
)

// Credentials holds the L2 API key triplet returned by derive-api-key, used
// for HMAC-signed trading requests and the authenticated user WS channel.
type Credentials struct {
	APIKey     string
	Secret     string
	Passphrase string
}

// Auth builds the L1 (EIP-712, used once to derive L2 keys) and L2
// (HMAC-SHA256 over timestamp+method+path[+body]) authentication headers,
// plus the derived signature the user WebSocket channel requires.
type Auth struct {
	signer        OrderSigner
	funderAddress common.Address
	chainID       *big.Int
	sigType       types.SignatureType
	creds         Credentials
}

// NewAuth builds an Auth around a signer and the funder/proxy address (equal
// to the signer's own address when not trading through a proxy wallet).
func NewAuth(signer OrderSigner, funderAddress string, chainID int, sigType types.SignatureType, creds Credentials) *Auth {
	funder := signer.Address()
	if funderAddress != "" {
		funder = common.HexToAddress(funderAddress)
	}
	return &Auth{
		signer:        signer,
		funderAddress: funder,
		chainID:       big.NewInt(int64(chainID)),
		sigType:       sigType,
		creds:         creds,
	}
}

func (a *Auth) Address() common.Address       { return a.signer.Address() }
func (a *Auth) FunderAddress() common.Address { return a.funderAddress }
func (a *Auth) ChainID() *big.Int             { return a.chainID }

// HasL2Credentials reports whether L2 API credentials are configured.
func (a *Auth) HasL2Credentials() bool {
	return a.creds.APIKey != "" && a.creds.Secret != "" && a.creds.Passphrase != ""
}

// SetCredentials installs L2 credentials (after deriving them via L1).
func (a *Auth) SetCredentials(c Credentials) { a.creds = c }

// L1Headers builds headers for L1-authenticated endpoints (key derivation).
func (a *Auth) L1Headers(nonce int) (map[string]string, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := a.signer.SignClobAuth(timestamp, nonce, a.chainID)
	if err != nil {
		return nil, fmt.Errorf("sign clob auth: %w", err)
	}
	return map[string]string{
		"POLY_ADDRESS":   a.signer.Address().Hex(),
		"POLY_SIGNATURE": sig,
		"POLY_TIMESTAMP": timestamp,
		"POLY_NONCE":     strconv.Itoa(nonce),
	}, nil
}

// L2Headers builds headers for L2 HMAC-authenticated trading endpoints.
func (a *Auth) L2Headers(method, path, body string) (map[string]string, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := hmacSign(a.creds.Secret, timestamp+method+path+body)
	if err != nil {
		return nil, fmt.Errorf("build hmac: %w", err)
	}
	return map[string]string{
		"POLY_ADDRESS":    a.signer.Address().Hex(),
		"POLY_SIGNATURE":  sig,
		"POLY_TIMESTAMP":  timestamp,
		"POLY_API_KEY":    a.creds.APIKey,
		"POLY_PASSPHRASE": a.creds.Passphrase,
	}, nil
}

// userWSPath is the fixed path the HMAC challenge for the authenticated user
// channel is computed over, per spec section 6.
const userWSPath = "/ws/user"

// WSAuthPayload builds the user WebSocket channel's auth frame: API key,
// passphrase, and, in the Secret field, an HMAC-SHA256 signature over
// timestamp||"GET"||"/ws/user", base64url-encoded. The frame carries neither
// the signing address nor the timestamp the signature was computed over.
func (a *Auth) WSAuthPayload() (*types.WSAuth, error) {
	sig, err := hmacSign(a.creds.Secret, fmt.Sprintf("%d", time.Now().Unix())+"GET"+userWSPath)
	if err != nil {
		return nil, fmt.Errorf("sign user ws challenge: %w", err)
	}
	return &types.WSAuth{
		ApiKey:     a.creds.APIKey,
		Secret:     sig,
		Passphrase: a.creds.Passphrase,
	}, nil
}

// hmacSign computes HMAC-SHA256 over message using secret (decoded from
// whichever of the four common base64 variants the venue happened to
// return it in) and returns the base64url-safe encoded signature.
func hmacSign(secret, message string) (string, error) {
	decoders := []*base64.Encoding{
		base64.URLEncoding,
		base64.RawURLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	}

	var secretBytes []byte
	var err error
	for _, dec := range decoders {
		secretBytes, err = dec.DecodeString(secret)
		if err == nil {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}

	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}
