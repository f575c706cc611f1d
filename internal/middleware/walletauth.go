// Package middleware provides the gin middleware chain: wallet-signature
// authentication, request ids, CORS and request metrics.
package middleware

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	decdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/ethereum/go-ethereum/accounts"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160"

	"payables-relay/internal/chains"
)

// Auth headers. A request authenticates either with a Bearer session token
// or by signing the challenge for its wallet.
const (
	HeaderWalletAddress   = "X-Wallet-Address"
	HeaderWalletSignature = "X-Wallet-Signature"
	HeaderWalletChain     = "X-Wallet-Chain"
	HeaderWalletPubkey    = "X-Wallet-Pubkey"
)

// Context keys set on authenticated requests.
const (
	CtxWallet = "wallet"
	CtxChain  = "chain"
)

// challengeMessage is the fixed text a wallet signs to authenticate.
func challengeMessage(wallet string) string {
	return fmt.Sprintf("Payables Relay Authentication\nWallet: %s", wallet)
}

// SessionClaims is the JWT session payload.
type SessionClaims struct {
	Wallet string `json:"wallet"`
	Chain  string `json:"chain"`
	jwt.RegisteredClaims
}

// GenerateSessionToken mints a session JWT for an authenticated wallet.
func GenerateSessionToken(secret, wallet, chainName string, ttl time.Duration) (string, error) {
	claims := SessionClaims{
		Wallet: wallet,
		Chain:  chainName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "payables-relay",
			Subject:   wallet,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateSessionToken parses and verifies a session JWT.
func ValidateSessionToken(secret, tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid session token")
	}
	return claims, nil
}

// WalletAuth authenticates requests. It accepts a Bearer session token or
// a per-request wallet signature over the challenge message, verified with
// the signature scheme of the wallet's chain family.
func WalletAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			claims, err := ValidateSessionToken(jwtSecret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				abortUnauthorized(c, err.Error())
				return
			}
			c.Set(CtxWallet, claims.Wallet)
			c.Set(CtxChain, claims.Chain)
			c.Next()
			return
		}

		wallet, chainName, err := VerifySignatureHeaders(
			c.GetHeader(HeaderWalletAddress),
			c.GetHeader(HeaderWalletChain),
			c.GetHeader(HeaderWalletSignature),
			c.GetHeader(HeaderWalletPubkey),
		)
		if err != nil {
			abortUnauthorized(c, err.Error())
			return
		}
		c.Set(CtxWallet, wallet)
		c.Set(CtxChain, chainName)
		c.Next()
	}
}

// VerifySignatureHeaders checks a wallet signature over the challenge
// message and returns the authenticated wallet and chain name. Exposed for
// the session endpoint, which authenticates the same way before minting a
// token.
func VerifySignatureHeaders(wallet, chainName, signature, pubkey string) (string, string, error) {
	if wallet == "" || chainName == "" || signature == "" {
		return "", "", fmt.Errorf("missing wallet auth headers")
	}
	ch, err := chains.ByName(chainName)
	if err != nil {
		return "", "", err
	}
	message := challengeMessage(wallet)

	switch ch.Family {
	case chains.FamilyEvm:
		err = verifyEvmSignature(wallet, message, signature)
	case chains.FamilySolana:
		err = verifySolanaSignature(wallet, message, signature)
	case chains.FamilyCosmwasm:
		err = verifyCosmosSignature(wallet, message, signature, pubkey, ch.Bech32HRP)
	default:
		err = fmt.Errorf("no signature scheme for chain %s", ch.Name)
	}
	if err != nil {
		return "", "", err
	}
	return wallet, ch.Name, nil
}

// verifyEvmSignature recovers the signer of a personal-sign signature and
// compares it to the claimed address.
func verifyEvmSignature(wallet, message, signature string) error {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil || len(sig) != 65 {
		return fmt.Errorf("malformed evm signature")
	}
	// Wallets emit V as 27/28; recovery wants 0/1.
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	hash := accounts.TextHash([]byte(message))
	pub, err := ethcrypto.SigToPub(hash, sig)
	if err != nil {
		return fmt.Errorf("signature recovery failed: %w", err)
	}
	recovered := ethcrypto.PubkeyToAddress(*pub)
	if !strings.EqualFold(recovered.Hex(), wallet) {
		return fmt.Errorf("signature does not match wallet %s", wallet)
	}
	return nil
}

// verifySolanaSignature checks an ed25519 signature; the wallet address is
// the public key.
func verifySolanaSignature(wallet, message, signature string) error {
	pub, err := base58.Decode(wallet)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("malformed solana wallet %q", wallet)
	}
	sig, err := base58.Decode(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("malformed solana signature")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(message), sig) {
		return fmt.Errorf("signature does not match wallet %s", wallet)
	}
	return nil
}

// verifyCosmosSignature checks a secp256k1 signature and that the supplied
// public key hashes to the claimed bech32 address.
func verifyCosmosSignature(wallet, message, signature, pubkey, hrp string) error {
	pubBytes, err := base64.StdEncoding.DecodeString(pubkey)
	if err != nil || len(pubBytes) != secp256k1.PubKeyBytesLenCompressed {
		return fmt.Errorf("malformed cosmos public key")
	}
	pub, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return fmt.Errorf("malformed cosmos public key: %w", err)
	}

	sigBytes, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(sigBytes) != 64 {
		return fmt.Errorf("malformed cosmos signature")
	}
	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sigBytes[:32]); overflow {
		return fmt.Errorf("malformed cosmos signature")
	}
	if overflow := s.SetByteSlice(sigBytes[32:]); overflow {
		return fmt.Errorf("malformed cosmos signature")
	}
	hash := sha256.Sum256([]byte(message))
	if !decdsa.NewSignature(&r, &s).Verify(hash[:], pub) {
		return fmt.Errorf("signature does not match wallet %s", wallet)
	}

	derived, err := cosmosAddressFromPubkey(pubBytes, hrp)
	if err != nil {
		return err
	}
	if derived != strings.ToLower(wallet) {
		return fmt.Errorf("public key does not match wallet %s", wallet)
	}
	return nil
}

// cosmosAddressFromPubkey derives the bech32 account address:
// ripemd160(sha256(pubkey)) under the chain's prefix.
func cosmosAddressFromPubkey(pub []byte, hrp string) (string, error) {
	sum := sha256.Sum256(pub)
	h := ripemd160.New()
	h.Write(sum[:])
	payload := h.Sum(nil)

	converted, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("encode cosmos address: %w", err)
	}
	addr, err := bech32.Encode(hrp, converted)
	if err != nil {
		return "", fmt.Errorf("encode cosmos address: %w", err)
	}
	return addr, nil
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"message": msg,
	})
}

// AuthedWallet returns the authenticated wallet and chain from the request
// context.
func AuthedWallet(c *gin.Context) (wallet, chainName string, ok bool) {
	w, ok1 := c.Get(CtxWallet)
	ch, ok2 := c.Get(CtxChain)
	if !ok1 || !ok2 {
		return "", "", false
	}
	return w.(string), ch.(string), true
}
