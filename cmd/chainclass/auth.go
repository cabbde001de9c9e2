package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

const authSchema = `
CREATE TABLE IF NOT EXISTS api_keys (
    id            INTEGER   PRIMARY KEY,
    key_hash      TEXT      NOT NULL UNIQUE,
    scopes        TEXT      NOT NULL,
    description   TEXT      NOT NULL
);
`

// Scopes understood by the API. ScopeAll grants everything.
const (
	ScopeAll        = "*"
	ScopeModelRead  = "model:read"
	ScopeModelWrite = "model:write"
	ScopeAuthManage = "auth:manage"
)

// AuthHeader carries the raw API key on every request.
const AuthHeader = "chainclass-auth"

const contextKeyPermissions = contextKey("permissions")

var (
	ErrKeyNotFound  = errors.New("api key not found")
	ErrPrimaryKey   = errors.New("the primary master key (ID 1) cannot be revoked")
	ErrUnknownScope = errors.New("unknown scope")
)

var knownScopes = map[string]struct{}{
	ScopeAll:        {},
	ScopeModelRead:  {},
	ScopeModelWrite: {},
	ScopeAuthManage: {},
}

// Permissions holds the authentication info for a request.
type Permissions struct {
	ScopeSet map[string]struct{}
}

func newPermissions(scopes []string) *Permissions {
	set := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	return &Permissions{ScopeSet: set}
}

// Has reports whether the permission set grants scope.
func (p *Permissions) Has(scope string) bool {
	if p == nil {
		return false
	}
	if _, isMaster := p.ScopeSet[ScopeAll]; isMaster {
		return true
	}
	_, ok := p.ScopeSet[scope]
	return ok
}

// Scopes returns the granted scopes in sorted order.
func (p *Permissions) Scopes() []string {
	out := make([]string, 0, len(p.ScopeSet))
	for s := range p.ScopeSet {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// APIKeyInfo is the structure returned when listing keys.
type APIKeyInfo struct {
	ID          int      `json:"id"`
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// CreateKeyRequest is the expected JSON body for creating a new key.
type CreateKeyRequest struct {
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// CreateKeyResponse is the JSON response after creating a key. RawKey is only
// ever shown here; the database keeps its hash.
type CreateKeyResponse struct {
	ID     int      `json:"id"`
	RawKey string   `json:"raw_key"`
	Scopes []string `json:"scopes"`
}

func setupAuthSchema(db *sql.DB) error {
	if _, err := db.Exec(authSchema); err != nil {
		return err
	}
	return nil
}

// KeyStore manages hashed API keys in the api_keys table.
type KeyStore struct {
	db *sql.DB
}

func NewKeyStore(db *sql.DB) *KeyStore {
	return &KeyStore{db: db}
}

// Count returns the number of stored keys. While it is zero the API is open.
func (k *KeyStore) Count(ctx context.Context) (int, error) {
	var n int
	err := k.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM api_keys").Scan(&n)
	return n, err
}

// Create generates and stores a new key. The first key created is always
// given the master scope so the API cannot be locked.
func (k *KeyStore) Create(ctx context.Context, scopes []string, description string) (CreateKeyResponse, error) {
	for _, s := range scopes {
		if _, ok := knownScopes[s]; !ok {
			return CreateKeyResponse{}, fmt.Errorf("%w: %q", ErrUnknownScope, s)
		}
	}

	rawKey, err := generateAPIKey()
	if err != nil {
		return CreateKeyResponse{}, err
	}

	tx, err := k.db.BeginTx(ctx, nil)
	if err != nil {
		return CreateKeyResponse{}, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var keyCount int
	if err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM api_keys").Scan(&keyCount); err != nil {
		return CreateKeyResponse{}, fmt.Errorf("failed to count keys: %w", err)
	}
	if keyCount == 0 {
		scopes = []string{ScopeAll}
	}
	if len(scopes) == 0 {
		scopes = []string{ScopeModelRead}
	}

	var newID int
	err = tx.QueryRowContext(ctx,
		`INSERT INTO api_keys (key_hash, description, scopes) VALUES (?, ?, ?) RETURNING id`,
		hashAPIKey(rawKey), description, strings.Join(scopes, " ")).Scan(&newID)
	if err != nil {
		return CreateKeyResponse{}, fmt.Errorf("failed to save new key: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return CreateKeyResponse{}, fmt.Errorf("could not commit transaction: %w", err)
	}
	return CreateKeyResponse{ID: newID, RawKey: rawKey, Scopes: scopes}, nil
}

// List returns every key without its secret, ordered by ID.
func (k *KeyStore) List(ctx context.Context) ([]APIKeyInfo, error) {
	rows, err := k.db.QueryContext(ctx, `SELECT id, description, scopes FROM api_keys ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query API keys: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	keys := []APIKeyInfo{}
	for rows.Next() {
		var key APIKeyInfo
		var scopesStr string
		if err = rows.Scan(&key.ID, &key.Description, &scopesStr); err != nil {
			return nil, fmt.Errorf("failed to scan API key row: %w", err)
		}
		key.Scopes = strings.Fields(scopesStr)
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Revoke deletes the key with the given ID.
func (k *KeyStore) Revoke(ctx context.Context, id int) error {
	if id == 1 {
		return ErrPrimaryKey
	}
	res, err := k.db.ExecContext(ctx, "DELETE FROM api_keys WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete key %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrKeyNotFound, id)
	}
	return nil
}

// Lookup resolves a raw key to its permissions.
func (k *KeyStore) Lookup(ctx context.Context, rawKey string) (*Permissions, error) {
	var scopesStr string
	err := k.db.QueryRowContext(ctx, "SELECT scopes FROM api_keys WHERE key_hash = ?", hashAPIKey(rawKey)).Scan(&scopesStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return newPermissions(strings.Fields(scopesStr)), nil
}

// authenticate checks for a valid key in the AuthHeader. With no keys
// stored every request gets master permissions.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keyCount, err := s.keys.Count(r.Context())
		if err != nil {
			s.logger.Error("Authenticate failed to count keys", "request_id", requestID(r), "error", err)
			respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		var perms *Permissions
		if keyCount == 0 {
			perms = newPermissions([]string{ScopeAll})
		} else {
			apiKey := r.Header.Get(AuthHeader)
			if apiKey == "" {
				respondWithError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
				return
			}
			perms, err = s.keys.Lookup(r.Context(), apiKey)
			if err != nil {
				if !errors.Is(err, ErrKeyNotFound) {
					s.logger.Error("Authenticate failed to query API key", "request_id", requestID(r), "error", err)
					respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
					return
				}
				s.logger.Warn("Rejected unknown API key", "request_id", requestID(r), "remote_addr", r.RemoteAddr)
				respondWithError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
				return
			}
		}

		ctx := context.WithValue(r.Context(), contextKeyPermissions, perms)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireScope rejects requests whose key lacks scope.
func requireScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !hasScope(r, scope) {
			respondWithError(w, http.StatusForbidden, fmt.Sprintf("Forbidden: requires '%s' scope", scope))
			return
		}
		next(w, r)
	}
}

// hasScope checks if the permission set in the request context includes a required scope.
func hasScope(r *http.Request, requiredScope string) bool {
	perms, _ := r.Context().Value(contextKeyPermissions).(*Permissions)
	return perms.Has(requiredScope)
}

func (s *Server) handleCheckMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	perms, ok := r.Context().Value(contextKeyPermissions).(*Permissions)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid or missing token")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"scopes": perms.Scopes()})
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		keys, err := s.keys.List(r.Context())
		if err != nil {
			s.logger.Error("Failed to list API keys", "request_id", requestID(r), "error", err)
			respondWithError(w, http.StatusInternalServerError, "Database query failed")
			return
		}
		respondWithJSON(w, http.StatusOK, keys)

	case http.MethodPost:
		var req CreateKeyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		resp, err := s.keys.Create(r.Context(), req.Scopes, req.Description)
		if err != nil {
			if errors.Is(err, ErrUnknownScope) {
				respondWithError(w, http.StatusBadRequest, err.Error())
				return
			}
			s.logger.Error("Failed to create API key", "request_id", requestID(r), "error", err)
			respondWithError(w, http.StatusInternalServerError, "Key creation failed")
			return
		}
		s.logger.Info("Created API key", "request_id", requestID(r), "id", resp.ID, "scopes", resp.Scopes)
		respondWithJSON(w, http.StatusCreated, resp)

	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleKeyByID(w http.ResponseWriter, r *http.Request) {
	trimmedPath := strings.TrimPrefix(r.URL.Path, "/api/auth/keys/")
	idStr := strings.TrimSuffix(trimmedPath, "/")

	id, err := strconv.Atoi(idStr)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid key ID format in URL")
		return
	}
	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", "DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed for this key resource")
		return
	}

	switch err = s.keys.Revoke(r.Context(), id); {
	case err == nil:
		s.logger.Info("Revoked API key", "request_id", requestID(r), "id", id)
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, ErrPrimaryKey):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrKeyNotFound):
		respondWithError(w, http.StatusNotFound, "Key not found")
	default:
		s.logger.Error("Failed to delete API key", "request_id", requestID(r), "id", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete key")
	}
}

func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return "cc_" + hex.EncodeToString(b), nil
}

func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
