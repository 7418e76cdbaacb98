package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/leetfollow/leetfollow-service/internal/auth"
	"github.com/leetfollow/leetfollow-service/internal/lifecycle"
	"github.com/leetfollow/leetfollow-service/internal/models"
	"github.com/leetfollow/leetfollow-service/internal/store"
	"github.com/leetfollow/leetfollow-service/internal/traffic"
	"github.com/leetfollow/leetfollow-service/internal/validation"
)

// UserStore is the persistence surface the handlers need.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (store.User, error)
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	GetUserByID(ctx context.Context, id int) (store.User, error)
	SetLeetCodeUsername(ctx context.Context, userID int, leetcodeUsername string) error
	Follow(ctx context.Context, userID int, leetcodeUsername string) error
	Unfollow(ctx context.Context, userID int, leetcodeUsername string) error
	ListFollowed(ctx context.Context, userID int) ([]string, error)
}

// StatsProvider serves solved-problem stats for single names and batches.
type StatsProvider interface {
	Fetch(ctx context.Context, username string) (models.StatsRecord, error)
	FetchMany(ctx context.Context, usernames []string) []models.StatsRecord
}

// TokenManager issues and validates session tokens.
type TokenManager interface {
	IssueToken(userID int) (string, error)
	ParseToken(token string) (int, error)
}

// HealthConfig holds thresholds and probes for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// DBPing checks database reachability.
	DBPing func(ctx context.Context) error
	// CachePing, when set, checks cache reachability. Used when the backend
	// is memcached.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	users  UserStore
	stats  StatsProvider
	tokens TokenManager
	health *HealthConfig
	logger *zap.Logger

	usernameMinLen int
	usernameMaxLen int

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(users UserStore, stats StatsProvider, tokens TokenManager, health *HealthConfig, logger *zap.Logger, usernameMinLen, usernameMaxLen int) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		users:          users,
		stats:          stats,
		tokens:         tokens,
		health:         health,
		logger:         logger,
		usernameMinLen: usernameMinLen,
		usernameMaxLen: usernameMaxLen,
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type leetcodeRequest struct {
	LeetCodeUsername string `json:"leetcode_username"`
}

// Register handles POST /api/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	username, err := validation.ValidateUsername(req.Username, h.usernameMinLen, h.usernameMaxLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_USERNAME", err.Error())
		return
	}
	if req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_PASSWORD", "password is required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		traffic.RecordError()
		writeInternalError(w, r, err)
		return
	}
	user, err := h.users.CreateUser(r.Context(), username, hash)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, r, http.StatusBadRequest, "USERNAME_TAKEN", "username already registered")
			return
		}
		traffic.RecordError()
		writeInternalError(w, r, err)
		return
	}

	h.logger.Info("user registered", zap.Int("user_id", user.ID))
	traffic.RecordSuccess()
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
	})
}

// Login handles POST /api/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}

	user, err := h.users.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Same response as a wrong password so login probes cannot
			// enumerate usernames.
			writeError(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password")
			return
		}
		traffic.RecordError()
		writeInternalError(w, r, err)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password")
		return
	}

	token, err := h.tokens.IssueToken(user.ID)
	if err != nil {
		traffic.RecordError()
		writeInternalError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": token,
	})
}

// Profile handles GET /api/profile. The caller's own stats ride along when a
// LeetCode username is linked (a failed fetch leaves them null rather than
// failing the whole profile); followed accounts' stats come via the
// concurrent fan-out, with unresolvable names dropped.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	followed, err := h.users.ListFollowed(r.Context(), user.ID)
	if err != nil {
		traffic.RecordError()
		writeInternalError(w, r, err)
		return
	}

	var ownStats interface{}
	if user.LeetCodeUsername != nil {
		if stats, err := h.stats.Fetch(r.Context(), *user.LeetCodeUsername); err == nil {
			ownStats = stats
		}
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"leetcode_username": user.LeetCodeUsername,
		"leetcode_stats":    ownStats,
		"followed_stats":    h.stats.FetchMany(r.Context(), followed),
	})
}

// Following handles GET /api/following. Unresolvable names are dropped from
// the response; the endpoint succeeds even when every fetch fails.
func (h *Handler) Following(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	followed, err := h.users.ListFollowed(r.Context(), user.ID)
	if err != nil {
		traffic.RecordError()
		writeInternalError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"followed_stats": h.stats.FetchMany(r.Context(), followed),
	})
}

// UpdateLeetCode handles POST /api/update_leetcode. The name is verified
// against the upstream API before it is linked, so a typo is rejected
// instead of silently stored. The response is the fetched stats record.
func (h *Handler) UpdateLeetCode(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	leetcodeUsername, stats, ok := h.verifiedLeetCodeName(w, r)
	if !ok {
		return
	}

	if err := h.users.SetLeetCodeUsername(r.Context(), user.ID, leetcodeUsername); err != nil {
		traffic.RecordError()
		writeInternalError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, stats)
}

// FollowLeetCode handles POST /api/follow_leetcode. Following a name twice
// is a no-op.
func (h *Handler) FollowLeetCode(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	leetcodeUsername, _, ok := h.verifiedLeetCodeName(w, r)
	if !ok {
		return
	}

	if err := h.users.Follow(r.Context(), user.ID, leetcodeUsername); err != nil {
		traffic.RecordError()
		writeInternalError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}

// UnfollowLeetCode handles POST /api/unfollow_leetcode. Unfollowing a name
// that was never followed still succeeds.
func (h *Handler) UnfollowLeetCode(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req leetcodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	leetcodeUsername, err := validation.ValidateUsername(req.LeetCodeUsername, 1, 0)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LEETCODE_USERNAME", err.Error())
		return
	}

	if err := h.users.Unfollow(r.Context(), user.ID, leetcodeUsername); err != nil {
		traffic.RecordError()
		writeInternalError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}

// currentUser resolves the authenticated user from the request context. A
// missing or stale user writes the response itself and returns ok=false.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (store.User, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return store.User{}, false
	}
	user, err := h.users.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Token outlived the account.
			writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "account no longer exists")
			return store.User{}, false
		}
		traffic.RecordError()
		writeInternalError(w, r, err)
		return store.User{}, false
	}
	return user, true
}

// verifiedLeetCodeName decodes a leetcode_username body field and proves the
// name resolves upstream. On failure it writes the response and returns
// ok=false.
func (h *Handler) verifiedLeetCodeName(w http.ResponseWriter, r *http.Request) (string, models.StatsRecord, bool) {
	var req leetcodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return "", models.StatsRecord{}, false
	}
	leetcodeUsername, err := validation.ValidateUsername(req.LeetCodeUsername, 1, 0)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LEETCODE_USERNAME", err.Error())
		return "", models.StatsRecord{}, false
	}

	stats, err := h.stats.Fetch(r.Context(), leetcodeUsername)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LEETCODE_USERNAME", "invalid LeetCode username")
		return "", models.StatsRecord{}, false
	}
	return leetcodeUsername, stats, true
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if h.health != nil && h.health.DBPing != nil {
		if h.health.DBPing(r.Context()) == nil {
			checks["database"] = "healthy"
		} else {
			checks["database"] = "unhealthy"
		}
	}
	if h.health != nil && h.health.CachePing != nil {
		if h.health.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "leetfollow-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// computeHealthStatus evaluates health conditions in priority order:
// shutting-down > database unreachable > error rate breach > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.health == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if h.health.DBPing != nil {
		if err := h.health.DBPing(ctx); err != nil {
			return healthResult{"degraded", http.StatusServiceUnavailable, "database_unreachable"}
		}
	}
	if h.health.DegradedWindow > 0 && h.health.DegradedErrorPct > 0 {
		errors, total := traffic.ErrorRate(h.health.DegradedWindow)
		if total > 0 {
			pct := float64(errors) * 100 / float64(total)
			if pct >= float64(h.health.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with
// code, message, and requestId (correlation ID) if available in request
// context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeInternalError writes a 500 response and logs the underlying error.
func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error")
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Error("request failed", zap.Error(err))
	}
}
