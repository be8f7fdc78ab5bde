package users

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/kv"
	"pharmapos/backend/internal/xid"
)

const documentVersion = 1

var ErrCorruptDirectory = errors.New("corrupt user directory")

// record is the persisted account. Password only appears in documents
// written before hashes were stored.
type record struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	PasswordHash string `json:"passwordHash,omitempty"`
	Password     string `json:"password,omitempty"`
}

func (r record) user() domain.User {
	return domain.User{ID: r.ID, Email: r.Email, Name: r.Name, Role: r.Role}
}

type document struct {
	Version int      `json:"version"`
	Users   []record `json:"users"`
}

// loadLocked reads the directory and upgrades legacy records in place,
// writing the result back when anything changed.
func (d *Directory) loadLocked(ctx context.Context) ([]record, error) {
	raw, err := d.blobs.Load(ctx, d.key)
	if errors.Is(err, kv.ErrNotFound) {
		return []record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", d.key, err)
	}

	records, legacyShape, err := decodeDirectory(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", d.key, err)
	}

	changed := legacyShape
	for i := range records {
		upgraded, err := d.upgrade(&records[i])
		if err != nil {
			return nil, err
		}
		changed = changed || upgraded
	}
	if changed {
		if err := d.saveLocked(ctx, records); err != nil {
			return nil, err
		}
		d.logger.Info().Int("users", len(records)).Msg("migrated user directory")
	}
	return records, nil
}

func (d *Directory) saveLocked(ctx context.Context, records []record) error {
	raw, err := json.Marshal(document{Version: documentVersion, Users: records})
	if err != nil {
		return fmt.Errorf("encode %s: %w", d.key, err)
	}
	if err := d.blobs.Save(ctx, d.key, raw); err != nil {
		return fmt.Errorf("save %s: %w", d.key, err)
	}
	return nil
}

func decodeDirectory(raw []byte) ([]record, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		var records []record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrCorruptDirectory, err)
		}
		if records == nil {
			records = []record{}
		}
		return records, true, nil
	}

	var doc document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrCorruptDirectory, err)
	}
	if doc.Version > documentVersion {
		return nil, false, fmt.Errorf("%w: unsupported version %d", ErrCorruptDirectory, doc.Version)
	}
	if doc.Users == nil {
		doc.Users = []record{}
	}
	return doc.Users, false, nil
}

func (d *Directory) upgrade(rec *record) (bool, error) {
	changed := false
	if email := normalizeEmail(rec.Email); email != rec.Email {
		rec.Email = email
		changed = true
	}
	if role := normalizeRole(rec.Role); role != rec.Role {
		rec.Role = role
		changed = true
	}
	if rec.ID == "" {
		rec.ID = xid.New("usr")
		changed = true
	}
	if rec.PasswordHash == "" && rec.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(rec.Password), d.cost)
		if err != nil {
			return false, fmt.Errorf("hash legacy password for %s: %w", rec.Email, err)
		}
		rec.PasswordHash = string(hashed)
		changed = true
	}
	if rec.Password != "" {
		rec.Password = ""
		changed = true
	}
	if isHexDigest(rec.PasswordHash) {
		rec.PasswordHash = legacyPrefix + rec.PasswordHash
		changed = true
	}
	return changed, nil
}

func isHexDigest(value string) bool {
	if len(value) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(value)
	return err == nil
}
