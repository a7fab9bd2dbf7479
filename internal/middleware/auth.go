package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"cmm/internal/models"
	"cmm/internal/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenTTL = 720 * time.Minute
	// MaxPasswordBytes is the bcrypt input limit, measured after trimming.
	MaxPasswordBytes = 72

	ContextUserKey = "user"
	ContextRoleKey = "role"

	// apiFailureWindow is how long a rejected token counts toward the lockout.
	apiFailureWindow = 5 * time.Minute
)

var errPasswordTooLong = models.NewError(models.ErrValidation, "Password too long (max 72 bytes)")

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// UserLookup is the part of the credential store the auth gate reads.
type UserLookup interface {
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, id int64) (*models.User, error)
}

type AuthOptions struct {
	Secret string
	TTL    time.Duration
	// LockoutThreshold is the number of rejected tokens per client IP that
	// triggers a temporary 429. Zero disables the lockout.
	LockoutThreshold int
	Logger           *zap.Logger
}

type AuthService struct {
	secret           []byte
	ttl              time.Duration
	users            UserLookup
	log              *zap.Logger
	now              func() time.Time
	lockoutThreshold int

	mu          sync.Mutex
	apiFailures map[string]*apiFailure
	janitor     sync.Once
	stopCh      chan struct{}
	stopOnce    sync.Once

	dummyOnce sync.Once
	dummyHash []byte
}

type apiFailure struct {
	count        int
	lastAttempt  time.Time
	lockoutUntil time.Time
}

func NewAuthService(users UserLookup, opts AuthOptions) *AuthService {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		secret:           []byte(opts.Secret),
		ttl:              ttl,
		users:            users,
		log:              log,
		now:              time.Now,
		lockoutThreshold: opts.LockoutThreshold,
		apiFailures:      make(map[string]*apiFailure),
		stopCh:           make(chan struct{}),
	}
}

// Stop ends the background sweep of lockout records.
func (a *AuthService) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
}

func (a *AuthService) TTL() time.Duration { return a.ttl }

// HashPassword bcrypt-hashes the trimmed password.
func (a *AuthService) HashPassword(password string) (string, error) {
	password = strings.TrimSpace(password)
	if len(password) > MaxPasswordBytes {
		return "", errPasswordTooLong
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPassword compares the trimmed password against hash. Over-long input
// is rejected after a comparison against a fixed hash, so it costs the same
// as a wrong password.
func (a *AuthService) CheckPassword(password, hash string) bool {
	password = strings.TrimSpace(password)
	if len(password) > MaxPasswordBytes {
		a.burnCompare()
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

func (a *AuthService) burnCompare() {
	a.dummyOnce.Do(func() {
		a.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("cmm-placeholder-password"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte("not-the-password"))
}

func (a *AuthService) GenerateToken(u *models.User) (string, error) {
	now := a.now()
	claims := Claims{
		Role: string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken checks signature, algorithm and expiry. It does not consult
// the credential store.
func (a *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, models.WrapError(models.ErrAuth, "Invalid token", err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, models.NewError(models.ErrAuth, "Invalid token")
}

// Login verifies credentials and issues a session token. Unknown email,
// wrong password and inactive account produce the same error.
func (a *AuthService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	invalid := models.NewError(models.ErrAuth, "Invalid credentials")

	u, err := a.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			a.burnCompare()
			telemetry.AuthEvents.WithLabelValues("login_failed").Inc()
			return "", nil, invalid
		}
		return "", nil, err
	}
	if !a.CheckPassword(password, u.PasswordHash) || !u.IsActive {
		telemetry.AuthEvents.WithLabelValues("login_failed").Inc()
		return "", nil, invalid
	}

	token, err := a.GenerateToken(u)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	telemetry.AuthEvents.WithLabelValues("login_ok").Inc()
	return token, u, nil
}

// Authorize resolves token to a live user and checks the user's current role
// against allowed. An empty allowed list admits any role. Role and active
// state are read from the store on every call, so changes apply to tokens
// already issued.
func (a *AuthService) Authorize(ctx context.Context, token string, allowed ...models.Role) (*models.User, error) {
	claims, err := a.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, models.NewError(models.ErrAuth, "Invalid token")
	}
	u, err := a.users.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.NewError(models.ErrAuth, "User inactive or not found")
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, models.NewError(models.ErrAuth, "User inactive or not found")
	}
	if len(allowed) > 0 && !slices.Contains(allowed, u.Role) {
		return nil, models.NewError(models.ErrForbidden, "Insufficient role")
	}
	return u, nil
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// RequireRoles authorizes the request's bearer token and stores the user
// under ContextUserKey and its role under ContextRoleKey.
func (a *AuthService) RequireRoles(roles ...models.Role) gin.HandlerFunc {
	if a.lockoutThreshold > 0 {
		a.janitor.Do(func() {
			go func() {
				ticker := time.NewTicker(apiFailureWindow)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						a.sweepAPIFailures(a.now())
					case <-a.stopCh:
						return
					}
				}
			}()
		})
	}
	return func(c *gin.Context) {
		key := a.apiFailureKey(c)
		if retryAfter, locked := a.checkAPILockout(key); locked {
			a.abortLocked(c, retryAfter)
			return
		}

		token := bearerToken(c)
		if token == "" {
			a.rejectToken(c, key, "Missing bearer token")
			return
		}

		u, err := a.Authorize(c.Request.Context(), token, roles...)
		switch {
		case err == nil:
		case errors.Is(err, models.ErrAuth):
			a.rejectToken(c, key, models.Message(err))
			return
		case errors.Is(err, models.ErrForbidden):
			telemetry.AuthEvents.WithLabelValues("forbidden").Inc()
			a.log.Info("forbidden",
				zap.String("path", c.FullPath()),
				zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"ok": false, "message": models.Message(err)})
			return
		default:
			a.log.Error("authorize failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "message": "internal error"})
			return
		}

		a.clearAPIFailures(key)
		c.Set(ContextUserKey, u)
		c.Set(ContextRoleKey, string(u.Role))
		c.Next()
	}
}

// CurrentUser returns the user stored by RequireRoles.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok && u != nil
}

func (a *AuthService) rejectToken(c *gin.Context, key, message string) {
	telemetry.AuthEvents.WithLabelValues("unauthorized").Inc()
	if retryAfter, locked := a.recordAPIFailure(key); locked {
		a.abortLocked(c, retryAfter)
		return
	}
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "message": message})
}

func (a *AuthService) abortLocked(c *gin.Context, retryAfter time.Duration) {
	telemetry.AuthEvents.WithLabelValues("locked_out").Inc()
	c.Header("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"ok":          false,
		"message":     "Too many unauthorized attempts",
		"retry_after": int(retryAfter.Seconds()),
	})
}

func (a *AuthService) apiFailureKey(c *gin.Context) string {
	return c.ClientIP()
}

func (a *AuthService) checkAPILockout(key string) (time.Duration, bool) {
	if a.lockoutThreshold <= 0 {
		return 0, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.apiFailures[key]
	if !ok {
		return 0, false
	}
	now := a.now()
	if rec.lockoutUntil.After(now) {
		return rec.lockoutUntil.Sub(now), true
	}
	return 0, false
}

func (a *AuthService) recordAPIFailure(key string) (time.Duration, bool) {
	if a.lockoutThreshold <= 0 {
		return 0, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	rec, ok := a.apiFailures[key]
	if !ok {
		rec = &apiFailure{}
		a.apiFailures[key] = rec
	}

	if rec.lockoutUntil.After(now) {
		return rec.lockoutUntil.Sub(now), true
	}

	if now.Sub(rec.lastAttempt) > apiFailureWindow {
		rec.count = 0
	}

	rec.lastAttempt = now
	rec.count++

	if rec.count >= a.lockoutThreshold {
		lockout := time.Duration(rec.count) * 15 * time.Second
		if lockout > 2*time.Minute {
			lockout = 2 * time.Minute
		}
		rec.lockoutUntil = now.Add(lockout)
		rec.count = 0
		return lockout, true
	}

	return 0, false
}

func (a *AuthService) clearAPIFailures(key string) {
	if a.lockoutThreshold <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.apiFailures, key)
}

// sweepAPIFailures drops records whose window and lockout have both passed.
func (a *AuthService) sweepAPIFailures(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, rec := range a.apiFailures {
		if now.Sub(rec.lastAttempt) > apiFailureWindow && !rec.lockoutUntil.After(now) {
			delete(a.apiFailures, key)
		}
	}
}
