package allergy

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/ehr/allergy/internal/platform/kv"
)

// load decodes the JSON value at key into v. It reports false when the key
// is absent.
func load(ctx context.Context, rw kv.Reader, key string, v any) (bool, error) {
	b, ok, err := rw.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func save(ctx context.Context, rw kv.Writer, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := rw.Put(ctx, key, b); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
