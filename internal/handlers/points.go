package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/whisperhq/whisper/backend/internal/database"
	"github.com/whisperhq/whisper/backend/internal/ledger"
	"github.com/whisperhq/whisper/backend/internal/middleware"
	"github.com/whisperhq/whisper/backend/internal/models"
)

type PointHandler struct {
	db     *gorm.DB
	votes  *ledger.Ledger
	logger *zap.Logger
}

func NewPointHandler(db *gorm.DB, votes *ledger.Ledger, logger *zap.Logger) *PointHandler {
	return &PointHandler{db: db, votes: votes, logger: logger}
}

// pointResponse builds the response for a point, including its tally
func pointResponse(point models.Point, zone string, tally ledger.Tally) gin.H {
	return gin.H{
		"id":         point.ID,
		"title":      point.Title,
		"content":    point.Content,
		"zone_id":    point.ZoneID,
		"zone":       zone,
		"author_id":  point.AuthorID,
		"author":     point.Author,
		"boosts":     tally.Up,
		"reduces":    tally.Down,
		"net":        tally.Net,
		"created_at": point.CreatedAt,
		"updated_at": point.UpdatedAt,
	}
}

func (h *PointHandler) withTally(c *gin.Context, point models.Point, zone string) (gin.H, error) {
	tally, err := h.votes.Tally(c.Request.Context(), ledger.SubjectKey(database.SubjectPoint, point.ID))
	if err != nil {
		return nil, err
	}
	return pointResponse(point, zone, tally), nil
}

// GetPoints lists points newest first, optionally within one zone
func (h *PointHandler) GetPoints(c *gin.Context) {
	page, limit := pagination(c)

	var zoneID int
	if name := c.Query("zone"); name != "" {
		var zone models.Zone
		if err := h.db.WithContext(c.Request.Context()).Where("name = ?", name).First(&zone).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Zone not found"})
			return
		}
		zoneID = zone.ID
	}
	inZone := func(db *gorm.DB) *gorm.DB {
		if zoneID == 0 {
			return db
		}
		return db.Where("zone_id = ?", zoneID)
	}

	var total int64
	if err := h.db.WithContext(c.Request.Context()).Model(&models.Point{}).Scopes(inZone).Count(&total).Error; err != nil {
		h.logger.Error("count points", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch points"})
		return
	}

	var points []models.Point
	err := h.db.WithContext(c.Request.Context()).
		Scopes(inZone).
		Preload("Zone").
		Order("created_at desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&points).Error
	if err != nil {
		h.logger.Error("list points", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch points"})
		return
	}

	subjects := make([]string, len(points))
	for i, point := range points {
		subjects[i] = ledger.SubjectKey(database.SubjectPoint, point.ID)
	}
	tallies, err := h.votes.Tallies(c.Request.Context(), subjects)
	if err != nil {
		h.logger.Error("tally points", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch points"})
		return
	}

	// If no points, return empty array not null
	responses := make([]gin.H, 0, len(points))
	for i, point := range points {
		responses = append(responses, pointResponse(point, point.Zone.Name, tallies[subjects[i]]))
	}

	c.JSON(http.StatusOK, gin.H{
		"points": responses,
		"page":   page,
		"limit":  limit,
		"total":  total,
	})
}

// GetPoint returns a single point by ID
func (h *PointHandler) GetPoint(c *gin.Context) {
	point, ok := h.findPoint(c)
	if !ok {
		return
	}

	resp, err := h.withTally(c, point, point.Zone.Name)
	if err != nil {
		h.logger.Error("tally point", zap.Int("point_id", point.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch point"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CreatePoint creates a new point in a zone (PROTECTED - requires authentication)
func (h *PointHandler) CreatePoint(c *gin.Context) {
	var input models.CreatePointRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title and zone are required"})
		return
	}

	authorID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var zone models.Zone
	if err := h.db.WithContext(c.Request.Context()).Where("name = ?", input.Zone).First(&zone).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Zone not found"})
		return
	}

	point := models.Point{
		Title:    input.Title,
		Content:  input.Content,
		ZoneID:   zone.ID,
		AuthorID: authorID,
		Author:   c.GetString(middleware.UsernameKey),
	}
	if err := h.db.WithContext(c.Request.Context()).Omit("Zone").Create(&point).Error; err != nil {
		h.logger.Error("create point", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create point"})
		return
	}

	// A new point has no boosts yet
	resp, err := h.withTally(c, point, zone.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create point"})
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// UpdatePoint updates an existing point (PROTECTED - requires ownership)
func (h *PointHandler) UpdatePoint(c *gin.Context) {
	currentUserID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var input models.UpdatePointRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	point, ok := h.findPoint(c)
	if !ok {
		return
	}

	// Check ownership
	if point.AuthorID != currentUserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only edit your own points"})
		return
	}

	if input.Title != "" {
		point.Title = input.Title
	}
	if input.Content != "" {
		point.Content = input.Content
	}

	if err := h.db.WithContext(c.Request.Context()).Omit("Zone").Save(&point).Error; err != nil {
		h.logger.Error("update point", zap.Int("point_id", point.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update point"})
		return
	}

	resp, err := h.withTally(c, point, point.Zone.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update point"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DeletePoint deletes a point with its comments and boosts (PROTECTED - requires ownership)
func (h *PointHandler) DeletePoint(c *gin.Context) {
	currentUserID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	point, ok := h.findPoint(c)
	if !ok {
		return
	}

	// Check ownership
	if point.AuthorID != currentUserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only delete your own points"})
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var commentIDs []int
		if err := tx.Model(&models.Comment{}).Where("point_id = ?", point.ID).Pluck("id", &commentIDs).Error; err != nil {
			return err
		}

		subjects := []string{ledger.SubjectKey(database.SubjectPoint, point.ID)}
		for _, id := range commentIDs {
			subjects = append(subjects, ledger.SubjectKey(database.SubjectComment, id))
		}
		if err := database.DeleteSubjects(tx, subjects...); err != nil {
			return err
		}
		if err := tx.Where("point_id = ?", point.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&point).Error
	})
	if err != nil {
		h.logger.Error("delete point", zap.Int("point_id", point.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete point"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Point deleted successfully"})
}

// findPoint loads the point named by the :id route param, writing the error
// response itself when it can't.
func (h *PointHandler) findPoint(c *gin.Context) (models.Point, bool) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid point id"})
		return models.Point{}, false
	}

	var point models.Point
	if err := h.db.WithContext(c.Request.Context()).Preload("Zone").First(&point, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Point not found"})
		} else {
			h.logger.Error("find point", zap.Int("point_id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch point"})
		}
		return models.Point{}, false
	}
	return point, true
}
