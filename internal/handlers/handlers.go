package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/whisperhq/whisper/backend/internal/database"
	"github.com/whisperhq/whisper/backend/internal/ledger"
	"github.com/whisperhq/whisper/backend/internal/middleware"
)

// Handler combines all handler types
type Handler struct {
	Zone       *ZoneHandler
	Membership *MembershipHandler
	Point      *PointHandler
	Comment    *CommentHandler
	Boost      *BoostHandler
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(db *gorm.DB, votes *ledger.Ledger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Zone:       NewZoneHandler(db, logger),
		Membership: NewMembershipHandler(db, logger),
		Point:      NewPointHandler(db, votes, logger),
		Comment:    NewCommentHandler(db, votes, logger),
		Boost:      NewBoostHandler(votes, database.NewSubjects(db), logger),
	}
}

func extractUserID(c *gin.Context) (int, bool) {
	id, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	userID, ok := id.(int)
	return userID, ok && userID > 0
}

func parseID(raw string) (int, bool) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// pagination reads ?page= and ?limit=, clamping limit to [1, 100].
func pagination(c *gin.Context) (page, limit int) {
	page, limit = 1, 20
	if p, err := strconv.Atoi(c.Query("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 {
		limit = min(l, 100)
	}
	return page, limit
}
