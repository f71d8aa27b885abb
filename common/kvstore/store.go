package kvstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docuforge/docuforge/common/cryptox"
	"github.com/docuforge/docuforge/common/errdomain"
)

// Store is prefixed key/value persistence with TTL entries and optional
// at-rest encryption. Keys passed in are logical; the physical key is
// namespaced by the store's prefix.
type Store interface {
	Put(ctx context.Context, key string, value any, opts *PutOptions) error
	Get(ctx context.Context, key string, out any) (bool, error)
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Keys(ctx context.Context) ([]string, error)
}

// PutOptions control expiry and record versioning.
type PutOptions struct {
	Expires time.Duration
	Version int
}

// record is the envelope every stored value is wrapped in.
type record struct {
	Value     json.RawMessage `json:"value"`
	Timestamp int64           `json:"timestamp"`
	Expires   *int64          `json:"expires"`
	Version   int             `json:"version"`
}

// sealedRecord wraps an encrypted envelope.
type sealedRecord struct {
	Encrypted  bool   `json:"encrypted"`
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
}

// codec encodes envelopes, sealing them when a session key is configured.
type codec struct {
	crypto *cryptox.Provider
	keys   *SessionKeys
}

func (c *codec) encrypted() bool {
	return c.crypto != nil && c.keys != nil
}

func (c *codec) encode(value any, opts *PutOptions) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}

	rec := record{
		Value:     raw,
		Timestamp: time.Now().UnixMilli(),
	}
	if opts != nil {
		rec.Version = opts.Version
		if opts.Expires > 0 {
			exp := time.Now().Add(opts.Expires).UnixMilli()
			rec.Expires = &exp
		}
	}

	plain, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	if !c.encrypted() {
		return plain, nil
	}

	key, err := c.keys.Key()
	if err != nil {
		return nil, err
	}
	ciphertext, iv, err := c.crypto.EncryptWithKey(plain, key)
	if err != nil {
		return nil, err
	}

	return json.Marshal(sealedRecord{
		Encrypted:  true,
		IV:         base64.StdEncoding.EncodeToString(iv),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	})
}

// decode unwraps an envelope into out. The second return is false when the
// record is expired. A decrypt failure surfaces errdomain.ErrIntegrity so
// callers fall back to their default value.
func (c *codec) decode(data []byte, out any) (bool, error) {
	var sealed sealedRecord
	if err := json.Unmarshal(data, &sealed); err == nil && sealed.Encrypted {
		if !c.encrypted() {
			return false, errdomain.ErrIntegrity
		}
		key, err := c.keys.Key()
		if err != nil {
			return false, err
		}
		iv, err := base64.StdEncoding.DecodeString(sealed.IV)
		if err != nil {
			return false, errdomain.ErrIntegrity
		}
		ciphertext, err := base64.StdEncoding.DecodeString(sealed.Ciphertext)
		if err != nil {
			return false, errdomain.ErrIntegrity
		}
		data, err = c.crypto.Decrypt(ciphertext, key, iv)
		if err != nil {
			return false, errdomain.ErrIntegrity
		}
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return false, fmt.Errorf("unmarshal record: %w", err)
	}

	if rec.Expires != nil && *rec.Expires < time.Now().UnixMilli() {
		return false, nil
	}

	if err := json.Unmarshal(rec.Value, out); err != nil {
		return false, fmt.Errorf("unmarshal value: %w", err)
	}
	return true, nil
}
