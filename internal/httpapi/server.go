package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"

	"github.com/yogev77/tophuman-core/pkg/credits"
	"github.com/yogev77/tophuman-core/pkg/groupplay"
	"github.com/yogev77/tophuman-core/pkg/turns"
)

const (
	authClaimsKey  = "auth_claims"
	bannedRole     = "banned"
	defaultTurnTTL = 2 * time.Minute
)

// Services bundles the domain services exposed over HTTP.
type Services struct {
	Credits   *credits.Service
	Turns     *turns.Service
	GroupPlay *groupplay.Service
}

// Run boots the HTTP API using the supplied configuration.
func Run(ctx context.Context, cfg Config, logger *zap.Logger, services Services) error {
	sessionValidator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return err
	}

	handler := &httpHandler{
		logger:   logger,
		services: services,
		cfg:      cfg,
	}
	router := setupRouter(cfg, handler, sessionValidator)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("httpapi listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler, validator *sessionvalidator.Validator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(validator.GinMiddleware(authClaimsKey))

	api.GET("/wallet", handler.handleWallet)
	api.GET("/history", handler.handleHistory)
	api.POST("/grants/daily", handler.handleGrantDaily)
	api.GET("/claims", handler.handleListClaims)
	api.POST("/claims/:id/claim", handler.handleClaim)
	api.POST("/turns", handler.handleIssueTurn)
	api.POST("/turns/:token/start", handler.handleStartTurn)
	api.POST("/turns/:token/complete", handler.handleCompleteTurn)
	api.POST("/groups", handler.handleCreateGroup)
	api.POST("/groups/:token/join", handler.handleJoinGroup)

	return router
}

type httpHandler struct {
	logger   *zap.Logger
	services Services
	cfg      Config
}

func (handler *httpHandler) handleWallet(ctx *gin.Context) {
	userID, ok := handler.authenticate(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	balance, err := handler.services.Credits.Balance(requestCtx, userID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	entries, total, err := handler.services.Credits.History(requestCtx, userID, walletHistoryLimit, 0)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"balance": balance.Int64(),
		"recent":  entryPayloads(entries),
		"total":   total,
	})
}

func (handler *httpHandler) handleHistory(ctx *gin.Context) {
	userID, ok := handler.authenticate(ctx)
	if !ok {
		return
	}
	var query historyQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("validation_error", "invalid pagination parameters"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	entries, total, err := handler.services.Credits.History(requestCtx, userID, query.Limit, query.Offset)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"entries": entryPayloads(entries),
		"total":   total,
	})
}

func (handler *httpHandler) handleGrantDaily(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	if hasRole(claims, bannedRole) {
		ctx.JSON(http.StatusForbidden, errorResponse("banned", "account restricted"))
		return
	}
	if claims.GetUserEmail() == "" {
		ctx.JSON(http.StatusForbidden, errorResponse("email_unverified", "verified email required"))
		return
	}
	userID, err := credits.NewUserID(claims.GetUserID())
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("validation_error", "invalid user id"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	result, err := handler.services.Credits.GrantDaily(requestCtx, userID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	balance, err := handler.services.Credits.Balance(requestCtx, userID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	// An existing grant for today is a steady state, not a failure.
	ctx.JSON(http.StatusOK, gin.H{
		"granted": result.Granted,
		"balance": balance.Int64(),
	})
}

func (handler *httpHandler) handleListClaims(ctx *gin.Context) {
	userID, ok := handler.authenticate(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	claims, err := handler.services.Credits.ListUnclaimed(requestCtx, userID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"claims": claimPayloads(claims)})
}

func (handler *httpHandler) handleClaim(ctx *gin.Context) {
	userID, ok := handler.authenticate(ctx)
	if !ok {
		return
	}
	claimID := ctx.Param("id")
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	entry, err := handler.services.Credits.Claim(requestCtx, claimID, userID)
	if errors.Is(err, credits.ErrAlreadyClaimed) {
		ctx.JSON(http.StatusOK, gin.H{"status": "already_claimed"})
		return
	}
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"status": "claimed",
		"entry":  entryPayload(entry),
	})
}

func (handler *httpHandler) handleIssueTurn(ctx *gin.Context) {
	userID, ok := handler.authenticate(ctx)
	if !ok {
		return
	}
	var request issueTurnRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("validation_error", "expected JSON body"))
		return
	}
	ttl := defaultTurnTTL
	if request.TTLMs > 0 {
		ttl = time.Duration(request.TTLMs) * time.Millisecond
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	turn, err := handler.services.Turns.Issue(requestCtx, userID.String(), turns.TurnSpec{
		GameType:    request.GameType,
		TimeLimitMs: request.TimeLimitMs,
		Seed:        request.Seed,
	}, ttl)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"turn_id":       turn.TurnID,
		"turn_token":    turn.TurnToken,
		"game_type":     turn.GameType,
		"time_limit_ms": turn.TimeLimitMs,
		"expires_at":    turn.ExpiresAt.UnixMilli(),
	})
}

func (handler *httpHandler) handleStartTurn(ctx *gin.Context) {
	userID, ok := handler.authenticate(ctx)
	if !ok {
		return
	}
	token, err := turns.NewTurnToken(ctx.Param("token"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("validation_error", "invalid turn token"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	result, err := handler.services.Turns.Start(requestCtx, token, userID.String())
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"turn_id":       result.TurnID,
		"started_at":    result.StartedAt.UnixMilli(),
		"time_limit_ms": result.TimeLimitMs,
	})
}

func (handler *httpHandler) handleCompleteTurn(ctx *gin.Context) {
	userID, ok := handler.authenticate(ctx)
	if !ok {
		return
	}
	token, err := turns.NewTurnToken(ctx.Param("token"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("validation_error", "invalid turn token"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	result, err := handler.services.Turns.Complete(requestCtx, token, userID.String())
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"turn_id":      result.TurnID,
		"elapsed_ms":   result.ElapsedMs,
		"completed_at": result.CompletedAt.UnixMilli(),
	})
}

func (handler *httpHandler) handleCreateGroup(ctx *gin.Context) {
	userID, ok := handler.authenticate(ctx)
	if !ok {
		return
	}
	var request createGroupRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("validation_error", "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	session, err := handler.services.GroupPlay.Create(requestCtx, userID.String(), request.GameTypeID)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, sessionPayload(session))
}

func (handler *httpHandler) handleJoinGroup(ctx *gin.Context) {
	if _, ok := handler.authenticate(ctx); !ok {
		return
	}
	token, err := groupplay.NewJoinToken(ctx.Param("token"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("validation_error", "invalid join token"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	session, err := handler.services.GroupPlay.Join(requestCtx, token)
	if err != nil {
		handler.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, sessionPayload(session))
}

func (handler *httpHandler) authenticate(ctx *gin.Context) (credits.UserID, bool) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return credits.UserID{}, false
	}
	if hasRole(claims, bannedRole) {
		ctx.JSON(http.StatusForbidden, errorResponse("banned", "account restricted"))
		return credits.UserID{}, false
	}
	userID, err := credits.NewUserID(claims.GetUserID())
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("validation_error", "invalid user id"))
		return credits.UserID{}, false
	}
	return userID, true
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func (handler *httpHandler) respondDomainError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, credits.ErrClaimNotFound),
		errors.Is(err, turns.ErrTurnNotFound),
		errors.Is(err, groupplay.ErrSessionNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", "resource not found"))
	case errors.Is(err, turns.ErrInvalidTurnState):
		ctx.JSON(http.StatusConflict, errorResponse("invalid_state", "operation not allowed in current state"))
	case errors.Is(err, turns.ErrTurnExpired):
		ctx.JSON(http.StatusGone, errorResponse("expired", "turn deadline passed"))
	case errors.Is(err, groupplay.ErrSessionExpired):
		ctx.JSON(http.StatusGone, errorResponse("expired", "session no longer accepts joins"))
	case errors.Is(err, credits.ErrInvalidAmountUnits),
		errors.Is(err, credits.ErrInvalidUserID),
		errors.Is(err, credits.ErrInvalidMetadataJSON),
		errors.Is(err, turns.ErrInvalidTurnSpec),
		errors.Is(err, turns.ErrInvalidTurnToken),
		errors.Is(err, groupplay.ErrInvalidGameType),
		errors.Is(err, groupplay.ErrInvalidJoinToken):
		ctx.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
	default:
		handler.logger.Error("storage failure", zap.Error(err))
		ctx.JSON(http.StatusBadGateway, errorResponse("storage_failure", "ledger unavailable"))
	}
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(authClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}

func hasRole(claims *sessionvalidator.Claims, role string) bool {
	for _, candidate := range claims.GetUserRoles() {
		if candidate == role {
			return true
		}
	}
	return false
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

type historyQuery struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

type issueTurnRequest struct {
	GameType    string `json:"game_type"`
	TimeLimitMs int64  `json:"time_limit_ms"`
	Seed        string `json:"seed"`
	TTLMs       int64  `json:"ttl_ms"`
}

type createGroupRequest struct {
	GameTypeID string `json:"game_type_id"`
}

type entryJSON struct {
	EntryID       string `json:"entry_id"`
	Type          string `json:"type"`
	AmountUnits   int64  `json:"amount_units"`
	UTCDay        string `json:"utc_day"`
	ReferenceID   string `json:"reference_id,omitempty"`
	ReferenceType string `json:"reference_type,omitempty"`
	CreatedAt     int64  `json:"created_at"`
}

func entryPayload(entry credits.LedgerEntry) entryJSON {
	return entryJSON{
		EntryID:       entry.EntryID,
		Type:          entry.Type.String(),
		AmountUnits:   entry.AmountUnits.Int64(),
		UTCDay:        entry.UTCDay,
		ReferenceID:   entry.ReferenceID,
		ReferenceType: entry.ReferenceType,
		CreatedAt:     entry.CreatedAt.UnixMilli(),
	}
}

func entryPayloads(entries []credits.LedgerEntry) []entryJSON {
	payloads := make([]entryJSON, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, entryPayload(entry))
	}
	return payloads
}

type claimJSON struct {
	ClaimID     string `json:"claim_id"`
	Type        string `json:"type"`
	AmountUnits int64  `json:"amount_units"`
	UTCDay      string `json:"utc_day"`
	CreatedAt   int64  `json:"created_at"`
}

func claimPayloads(claims []credits.PendingClaim) []claimJSON {
	payloads := make([]claimJSON, 0, len(claims))
	for _, claim := range claims {
		payloads = append(payloads, claimJSON{
			ClaimID:     claim.ClaimID,
			Type:        claim.Type.String(),
			AmountUnits: claim.AmountUnits.Int64(),
			UTCDay:      claim.UTCDay,
			CreatedAt:   claim.CreatedAt.UnixMilli(),
		})
	}
	return payloads
}

func sessionPayload(session groupplay.GroupSession) gin.H {
	return gin.H{
		"session_id":   session.SessionID,
		"join_token":   session.JoinToken,
		"game_type_id": session.GameTypeID,
		"created_by":   session.CreatedBy,
		"ends_at":      session.EndsAt.UnixMilli(),
	}
}
