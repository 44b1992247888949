// Package auth authenticates callers by wallet signature. A client asks for a
// challenge, signs its message with personal_sign and trades the signature
// for a short-lived HS256 access token whose subject is the wallet address.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/segmentio/ksuid"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidSignature = errors.New("signature does not match challenge")
	ErrChallengeUsed    = errors.New("challenge already used")
)

const (
	typeChallenge = "challenge"
	typeAccess    = "access"
)

type Claims struct {
	Type     string `json:"typ"`
	Operator bool   `json:"op,omitempty"`
	jwt.RegisteredClaims
}

// Identity is an authenticated caller.
type Identity struct {
	Address  common.Address
	Operator bool
}

type Config struct {
	Secret       []byte
	Issuer       string
	Operator     common.Address
	AccessTTL    time.Duration
	ChallengeTTL time.Duration
	Clock        clockwork.Clock
}

type Service struct {
	secret       []byte
	issuer       string
	operator     common.Address
	accessTTL    time.Duration
	challengeTTL time.Duration
	clock        clockwork.Clock

	mu   sync.Mutex
	used map[string]time.Time
}

func NewService(cfg Config) (*Service, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("auth secret must be at least 32 bytes")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "unempower"
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 5 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Service{
		secret:       cfg.Secret,
		issuer:       cfg.Issuer,
		operator:     cfg.Operator,
		accessTTL:    cfg.AccessTTL,
		challengeTTL: cfg.ChallengeTTL,
		clock:        cfg.Clock,
		used:         make(map[string]time.Time),
	}, nil
}

// Challenge returns a signed challenge token for addr and the message the
// wallet has to sign.
func (s *Service) Challenge(addr common.Address) (token, message string, err error) {
	now := s.clock.Now()
	claims := Claims{
		Type: typeChallenge,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ksuid.New().String(),
			Issuer:    s.issuer,
			Subject:   addr.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.challengeTTL)),
		},
	}
	token, err = s.sign(claims)
	if err != nil {
		return "", "", err
	}
	return token, ChallengeMessage(addr, claims.ID), nil
}

// ChallengeMessage is the text a wallet signs for challenge id.
func ChallengeMessage(addr common.Address, id string) string {
	return fmt.Sprintf("Sign in to UnEmpower\naddress: %s\nchallenge: %s", addr.Hex(), id)
}

// Login checks sig against the challenge and issues an access token. Each
// challenge can be redeemed once.
func (s *Service) Login(challenge string, sig []byte) (string, Identity, error) {
	claims, err := s.parse(challenge, typeChallenge)
	if err != nil {
		return "", Identity{}, err
	}
	addr := common.HexToAddress(claims.Subject)
	signer, err := recoverPersonal(ChallengeMessage(addr, claims.ID), sig)
	if err != nil || signer != addr {
		return "", Identity{}, ErrInvalidSignature
	}
	if err := s.redeem(claims.ID, claims.ExpiresAt.Time); err != nil {
		return "", Identity{}, err
	}

	id := Identity{Address: addr, Operator: addr == s.operator}
	token, err := s.Issue(id)
	return token, id, err
}

// Issue signs an access token for id.
func (s *Service) Issue(id Identity) (string, error) {
	now := s.clock.Now()
	return s.sign(Claims{
		Type:     typeAccess,
		Operator: id.Operator,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ksuid.New().String(),
			Issuer:    s.issuer,
			Subject:   id.Address.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	})
}

// Verify parses an access token.
func (s *Service) Verify(token string) (Identity, error) {
	claims, err := s.parse(token, typeAccess)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Address: common.HexToAddress(claims.Subject), Operator: claims.Operator}, nil
}

func (s *Service) sign(c Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

func (s *Service) parse(token, typ string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil || claims.Type != typ || !common.IsHexAddress(claims.Subject) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) redeem(id string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	for k, e := range s.used {
		if now.After(e) {
			delete(s.used, k)
		}
	}
	if _, ok := s.used[id]; ok {
		return ErrChallengeUsed
	}
	s.used[id] = exp
	return nil
}

// recoverPersonal recovers the personal_sign signer of msg. Wallets send v
// as 27/28.
func recoverPersonal(msg string, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignature
	}
	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(msg)), normalized)
	if err != nil {
		return common.Address{}, ErrInvalidSignature
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func bearer(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
