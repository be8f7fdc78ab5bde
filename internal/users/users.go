// Package users keeps staff accounts in a single kv blob and verifies logins.
package users

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/kv"
	"pharmapos/backend/internal/xid"
)

const (
	DefaultKey = "pharma.users"

	defaultOwnerPassword  = "owner123"
	defaultWorkerPassword = "worker123"
	legacyPrefix          = "sha256:"
)

var ErrInvalidCredentials = errors.New("invalid credentials or role")

type Option func(*Directory)

func WithKey(key string) Option {
	return func(d *Directory) {
		if key != "" {
			d.key = key
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(d *Directory) { d.logger = logger }
}

// WithDemoPasswords sets the passwords used when the directory seeds its
// demo accounts. Blank values fall back to the well-known demo passwords.
func WithDemoPasswords(owner, worker string) Option {
	return func(d *Directory) {
		d.ownerPassword = owner
		d.workerPassword = worker
	}
}

func WithBcryptCost(cost int) Option {
	return func(d *Directory) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			d.cost = cost
		}
	}
}

type Directory struct {
	mu             sync.Mutex
	blobs          kv.Store
	key            string
	logger         zerolog.Logger
	cost           int
	ownerPassword  string
	workerPassword string
}

func New(blobs kv.Store, opts ...Option) *Directory {
	d := &Directory{
		blobs:  blobs,
		key:    DefaultKey,
		logger: zerolog.Nop(),
		cost:   bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// EnsureDemoUsers seeds an owner and a worker account when the directory is
// empty.
func (d *Directory) EnsureDemoUsers(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	records, err := d.loadLocked(ctx)
	if err != nil {
		return err
	}
	if len(records) > 0 {
		return nil
	}
	_, err = d.seedLocked(ctx)
	return err
}

// List returns every account without password material.
func (d *Directory) List(ctx context.Context) ([]domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	records, err := d.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.user())
	}
	return out, nil
}

// Authenticate matches email and role, then checks the password against the
// stored bcrypt hash. Accounts still carrying a legacy SHA-256 digest are
// re-hashed with bcrypt on their first successful login.
func (d *Directory) Authenticate(ctx context.Context, email, password, role string) (domain.User, error) {
	email = normalizeEmail(email)
	role = normalizeRole(role)
	if email == "" || strings.TrimSpace(password) == "" {
		return domain.User{}, ErrInvalidCredentials
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	records, err := d.loadLocked(ctx)
	if err != nil {
		return domain.User{}, err
	}
	if len(records) == 0 {
		if records, err = d.seedLocked(ctx); err != nil {
			return domain.User{}, err
		}
	}

	for i := range records {
		rec := &records[i]
		if rec.Email != email || rec.Role != role {
			continue
		}
		legacy, ok := verifyPassword(rec.PasswordHash, password)
		if !ok {
			break
		}
		if legacy {
			hashed, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
			if err != nil {
				return domain.User{}, fmt.Errorf("hash password: %w", err)
			}
			rec.PasswordHash = string(hashed)
			if err := d.saveLocked(ctx, records); err != nil {
				return domain.User{}, err
			}
			d.logger.Info().Str("user_id", rec.ID).Msg("upgraded legacy password hash")
		}
		return rec.user(), nil
	}
	return domain.User{}, ErrInvalidCredentials
}

func (d *Directory) seedLocked(ctx context.Context) ([]record, error) {
	ownerPwd, workerPwd := d.ownerPassword, d.workerPassword
	if ownerPwd == "" || workerPwd == "" {
		d.logger.Warn().Msg("using default demo credentials; set SEED_OWNER_PASSWORD and SEED_WORKER_PASSWORD to override")
	}
	if ownerPwd == "" {
		ownerPwd = defaultOwnerPassword
	}
	if workerPwd == "" {
		workerPwd = defaultWorkerPassword
	}

	records := make([]record, 0, 2)
	for _, seed := range []struct {
		email, name, role, password string
	}{
		{"owner@shop", "Owner", domain.RoleOwner, ownerPwd},
		{"worker@shop", "Worker", domain.RoleWorker, workerPwd},
	} {
		hashed, err := bcrypt.GenerateFromPassword([]byte(seed.password), d.cost)
		if err != nil {
			return nil, fmt.Errorf("hash seed password for %s: %w", seed.email, err)
		}
		records = append(records, record{
			ID:           xid.New("usr"),
			Email:        seed.email,
			Name:         seed.name,
			Role:         seed.role,
			PasswordHash: string(hashed),
		})
	}
	if err := d.saveLocked(ctx, records); err != nil {
		return nil, err
	}
	d.logger.Info().Int("users", len(records)).Msg("seeded demo users")
	return records, nil
}

// verifyPassword reports whether input matches stored and whether stored is
// a legacy SHA-256 digest.
func verifyPassword(stored, input string) (legacy bool, ok bool) {
	if digest, found := strings.CutPrefix(stored, legacyPrefix); found {
		sum := sha256.Sum256([]byte(input))
		want := hex.EncodeToString(sum[:])
		return true, subtle.ConstantTimeCompare([]byte(strings.ToLower(digest)), []byte(want)) == 1
	}
	if !isBcryptHash(stored) {
		return false, false
	}
	return false, bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func isBcryptHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeRole(role string) string {
	role = strings.TrimSpace(role)
	if strings.EqualFold(role, "Shop Owner") {
		return domain.RoleOwner
	}
	return strings.ToLower(role)
}
