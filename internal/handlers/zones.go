package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/whisperhq/whisper/backend/internal/database"
	"github.com/whisperhq/whisper/backend/internal/middleware"
	"github.com/whisperhq/whisper/backend/internal/models"
)

type ZoneHandler struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewZoneHandler(db *gorm.DB, logger *zap.Logger) *ZoneHandler {
	return &ZoneHandler{db: db, logger: logger}
}

// GetZones lists zones alphabetically
func (h *ZoneHandler) GetZones(c *gin.Context) {
	page, limit := pagination(c)

	zones := []models.Zone{}
	if err := h.db.WithContext(c.Request.Context()).Order("name asc").Offset((page - 1) * limit).Limit(limit).Find(&zones).Error; err != nil {
		h.logger.Error("list zones", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch zones"})
		return
	}

	c.JSON(http.StatusOK, zones)
}

// GetZone returns a zone by name
func (h *ZoneHandler) GetZone(c *gin.Context) {
	var zone models.Zone
	if err := h.db.WithContext(c.Request.Context()).Where("name = ?", c.Param("name")).First(&zone).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Zone not found"})
			return
		}
		h.logger.Error("find zone", zap.String("zone", c.Param("name")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch zone"})
		return
	}

	c.JSON(http.StatusOK, zone)
}

// CreateZone creates a zone owned by the caller (PROTECTED - requires authentication)
func (h *ZoneHandler) CreateZone(c *gin.Context) {
	var input models.CreateZoneRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	creatorID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	// Check if the name is taken
	var existing models.Zone
	if err := h.db.WithContext(c.Request.Context()).Where("name = ?", input.Name).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Zone already exists"})
		return
	}

	zone := models.Zone{
		Name:        input.Name,
		Description: input.Description,
		CreatorID:   creatorID,
	}
	// The creator owns the zone from the start
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&zone).Error; err != nil {
			return err
		}
		return tx.Omit("Zone").Create(&models.Membership{
			ZoneID:   zone.ID,
			MemberID: creatorID,
			Username: c.GetString(middleware.UsernameKey),
			Role:     models.RoleOwner,
			Status:   models.StatusActive,
		}).Error
	})
	if err != nil {
		// Lost a race with another request creating the same name
		if database.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "Zone already exists"})
			return
		}
		h.logger.Error("create zone", zap.String("zone", input.Name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create zone"})
		return
	}

	c.JSON(http.StatusCreated, zone)
}
