package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

// MaxQueryIDs bounds comma separated id lists.
const MaxQueryIDs = 100

func invalidParam(key, msg string, extra map[string]any) *pkgerrors.Error {
	details := map[string]any{"field": key}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(details)
}

// ParseQueryInt returns fallback when key is absent and rejects values outside [min, max].
func ParseQueryInt(r *http.Request, key string, fallback, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidParam(key, key+" must be an integer", nil)
	}
	if value < min || value > max {
		return 0, invalidParam(key, key+" out of range", map[string]any{"min": min, "max": max})
	}
	return value, nil
}

// ParseUUIDParam reads a required UUID path parameter.
func ParseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		return uuid.Nil, invalidParam(key, key+" is required", nil)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, invalidParam(key, "invalid "+key, map[string]any{"value": raw})
	}
	return id, nil
}

// ParseQueryUUIDs reads a comma separated UUID list, dropping blanks and repeats while
// keeping first-seen order. An absent key yields nil.
func ParseQueryUUIDs(r *http.Request, key string) ([]uuid.UUID, error) {
	parts := strings.FieldsFunc(r.URL.Query().Get(key), func(c rune) bool { return c == ',' })
	var ids []uuid.UUID
	seen := make(map[uuid.UUID]struct{}, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, invalidParam(key, "invalid "+key, map[string]any{"value": part})
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) > MaxQueryIDs {
		return nil, invalidParam(key, "too many ids in "+key, map[string]any{"max": MaxQueryIDs})
	}
	return ids, nil
}
