package carrier

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultTTL        = time.Hour
	DefaultCookieName = "invite_token"
	DefaultIssuer     = "go-invites"
	QueryParam        = "invite"

	minSecretLength = 32
)

var (
	ErrCarrierMissing = errors.New("carrier: no invitation carrier on request")
	ErrCarrierInvalid = errors.New("carrier: invitation carrier is invalid")
	ErrCarrierExpired = errors.New("carrier: invitation carrier has expired")
)

type Config struct {
	Secret       string        `env:"INVITES_CARRIER_SECRET"`
	TTL          time.Duration `env:"INVITES_CARRIER_TTL" envDefault:"1h"`
	Issuer       string        `env:"INVITES_CARRIER_ISSUER" envDefault:"go-invites"`
	CookieName   string        `env:"INVITES_CARRIER_COOKIE_NAME" envDefault:"invite_token"`
	CookieDomain string        `env:"INVITES_CARRIER_COOKIE_DOMAIN"`
	CookiePath   string        `env:"INVITES_CARRIER_COOKIE_PATH" envDefault:"/"`
	CookieSecure bool          `env:"INVITES_CARRIER_COOKIE_SECURE" envDefault:"true"`
}

// LoadConfigFromEnv reads the carrier settings. environ overrides the process
// environment when non-nil.
func LoadConfigFromEnv(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("carrier: parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(strings.TrimSpace(c.Secret)) < minSecretLength {
		return fmt.Errorf("carrier: INVITES_CARRIER_SECRET must be at least %d bytes", minSecretLength)
	}
	if c.TTL < 0 {
		return fmt.Errorf("carrier: ttl must not be negative")
	}
	return nil
}

type claims struct {
	jwt.RegisteredClaims
	Token string `json:"inv"`
}

// Carrier seals an invitation token into a short-lived HS256 JWT for the hop
// through sign-in and opens it again on the way back. The token string comes
// out exactly as it went in.
type Carrier struct {
	cfg Config
	now func() time.Time
}

func New(cfg Config, now func() time.Time) (*Carrier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		cfg.Issuer = DefaultIssuer
	}
	if strings.TrimSpace(cfg.CookieName) == "" {
		cfg.CookieName = DefaultCookieName
	}
	if strings.TrimSpace(cfg.CookiePath) == "" {
		cfg.CookiePath = "/"
	}
	if now == nil {
		now = time.Now
	}
	return &Carrier{cfg: cfg, now: now}, nil
}

// Seal wraps token in a carrier that lives for the configured TTL. It is the
// short hop through sign-in.
func (c *Carrier) Seal(token string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("carrier: not configured")
	}
	return c.SealUntil(token, c.now().Add(c.cfg.TTL))
}

// SealUntil wraps token in a carrier that expires at expiresAt. Invite links
// use the token's own expiry so the link lives exactly as long as the token.
func (c *Carrier) SealUntil(token string, expiresAt time.Time) (string, error) {
	if c == nil {
		return "", fmt.Errorf("carrier: not configured")
	}
	if token == "" {
		return "", fmt.Errorf("carrier: token is required")
	}
	now := c.now().UTC()
	if !expiresAt.After(now) {
		return "", fmt.Errorf("carrier: expiry %s is not in the future", expiresAt.UTC().Format(time.RFC3339))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt.UTC()),
			ID:        uuid.NewString(),
		},
		Token: token,
	}).SignedString([]byte(c.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("carrier: sign: %w", err)
	}
	return signed, nil
}

func (c *Carrier) Open(sealed string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("carrier: not configured")
	}
	sealed = strings.TrimSpace(sealed)
	if sealed == "" {
		return "", ErrCarrierMissing
	}
	var parsed claims
	_, err := jwt.ParseWithClaims(sealed, &parsed, func(*jwt.Token) (any, error) {
		return []byte(c.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: %v", ErrCarrierExpired, err)
		}
		return "", fmt.Errorf("%w: %v", ErrCarrierInvalid, err)
	}
	if parsed.Token == "" {
		return "", ErrCarrierInvalid
	}
	return parsed.Token, nil
}

// SetCookie stores the sealed token in an HttpOnly SameSite=Lax cookie so it
// survives the top-level redirect back from the identity provider.
func (c *Carrier) SetCookie(w http.ResponseWriter, sealed string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cfg.CookieName,
		Value:    sealed,
		Path:     c.cfg.CookiePath,
		Domain:   c.cfg.CookieDomain,
		MaxAge:   int(c.cfg.TTL / time.Second),
		Secure:   c.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c *Carrier) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cfg.CookieName,
		Value:    "",
		Path:     c.cfg.CookiePath,
		Domain:   c.cfg.CookieDomain,
		MaxAge:   -1,
		Secure:   c.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// RedirectURL appends the sealed token to target as the invite query param.
func (c *Carrier) RedirectURL(target string, sealed string) (string, error) {
	u, err := parseURL(target)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(QueryParam, sealed)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FromRequest opens the carrier from the invite query param, falling back
// to the cookie.
func (c *Carrier) FromRequest(r *http.Request) (string, error) {
	if c == nil || r == nil {
		return "", ErrCarrierMissing
	}
	if sealed := strings.TrimSpace(r.URL.Query().Get(QueryParam)); sealed != "" {
		return c.Open(sealed)
	}
	cookie, err := r.Cookie(c.cfg.CookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return "", ErrCarrierMissing
	}
	return c.Open(cookie.Value)
}

func parseURL(target string) (*url.URL, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, fmt.Errorf("carrier: redirect target is required")
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("carrier: invalid redirect target: %w", err)
	}
	return u, nil
}
