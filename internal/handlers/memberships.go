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

type MembershipHandler struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewMembershipHandler(db *gorm.DB, logger *zap.Logger) *MembershipHandler {
	return &MembershipHandler{db: db, logger: logger}
}

// JoinZone makes the caller an active member. A pending invitation is
// accepted instead.
func (h *MembershipHandler) JoinZone(c *gin.Context) {
	memberID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	zone, ok := h.findZone(c)
	if !ok {
		return
	}

	existing, found, err := h.membership(c, zone.ID, memberID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to join zone"})
		return
	}
	if found {
		if existing.Status == models.StatusActive {
			c.JSON(http.StatusConflict, gin.H{"error": "Already a member of this zone"})
			return
		}
		h.activate(c, existing)
		return
	}

	membership := models.Membership{
		ZoneID:   zone.ID,
		MemberID: memberID,
		Username: c.GetString(middleware.UsernameKey),
		Role:     models.RoleMember,
		Status:   models.StatusActive,
	}
	if err := h.db.WithContext(c.Request.Context()).Omit("Zone").Create(&membership).Error; err != nil {
		if database.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "Already a member of this zone"})
			return
		}
		h.logger.Error("join zone", zap.String("zone", zone.Name), zap.Int("member_id", memberID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to join zone"})
		return
	}

	c.JSON(http.StatusCreated, membership)
}

// LeaveZone removes the caller's membership; for a pending invitation this
// declines it. Owners stay.
func (h *MembershipHandler) LeaveZone(c *gin.Context) {
	memberID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	zone, ok := h.findZone(c)
	if !ok {
		return
	}

	existing, found, err := h.membership(c, zone.ID, memberID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to leave zone"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not a member of this zone"})
		return
	}
	if existing.Role == models.RoleOwner {
		c.JSON(http.StatusConflict, gin.H{"error": "Zone owners cannot leave their zone"})
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Delete(&existing).Error; err != nil {
		h.logger.Error("leave zone", zap.String("zone", zone.Name), zap.Int("member_id", memberID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to leave zone"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Left zone successfully"})
}

// InviteMember records a pending invitation. Only active members invite.
func (h *MembershipHandler) InviteMember(c *gin.Context) {
	inviterID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var input models.InviteRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Can't invite yourself
	if input.MemberID == inviterID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot invite yourself"})
		return
	}

	zone, ok := h.findZone(c)
	if !ok {
		return
	}

	inviter, found, err := h.membership(c, zone.ID, inviterID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to invite member"})
		return
	}
	if !found || inviter.Status != models.StatusActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only zone members can invite"})
		return
	}

	_, found, err = h.membership(c, zone.ID, input.MemberID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to invite member"})
		return
	}
	if found {
		c.JSON(http.StatusConflict, gin.H{"error": "Already invited or a member"})
		return
	}

	invite := models.Membership{
		ZoneID:    zone.ID,
		MemberID:  input.MemberID,
		Role:      models.RoleMember,
		Status:    models.StatusInvited,
		InvitedBy: &inviterID,
	}
	if err := h.db.WithContext(c.Request.Context()).Omit("Zone").Create(&invite).Error; err != nil {
		if database.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "Already invited or a member"})
			return
		}
		h.logger.Error("invite member", zap.String("zone", zone.Name), zap.Int("member_id", input.MemberID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to invite member"})
		return
	}

	c.JSON(http.StatusCreated, invite)
}

// AcceptInvite turns the caller's pending invitation into an active membership
func (h *MembershipHandler) AcceptInvite(c *gin.Context) {
	memberID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	zone, ok := h.findZone(c)
	if !ok {
		return
	}

	existing, found, err := h.membership(c, zone.ID, memberID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to accept invitation"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "No pending invitation"})
		return
	}
	if existing.Status == models.StatusActive {
		c.JSON(http.StatusConflict, gin.H{"error": "Already a member of this zone"})
		return
	}

	h.activate(c, existing)
}

// GetMembers lists a zone's members, or its pending invitations with
// ?status=invited
func (h *MembershipHandler) GetMembers(c *gin.Context) {
	status := c.DefaultQuery("status", models.StatusActive)
	if status != models.StatusActive && status != models.StatusInvited {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be active or invited"})
		return
	}
	page, limit := pagination(c)

	zone, ok := h.findZone(c)
	if !ok {
		return
	}

	members := []models.Membership{}
	err := h.db.WithContext(c.Request.Context()).
		Where("zone_id = ? AND status = ?", zone.ID, status).
		Order("created_at asc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&members).Error
	if err != nil {
		h.logger.Error("list members", zap.String("zone", zone.Name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch members"})
		return
	}

	c.JSON(http.StatusOK, members)
}

// GetMyMemberships lists the zones the caller belongs to or is invited to
func (h *MembershipHandler) GetMyMemberships(c *gin.Context) {
	memberID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var memberships []models.Membership
	if err := h.db.WithContext(c.Request.Context()).Where("member_id = ?", memberID).Preload("Zone").Order("created_at desc").Find(&memberships).Error; err != nil {
		h.logger.Error("list memberships", zap.Int("member_id", memberID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch memberships"})
		return
	}

	responses := make([]gin.H, 0, len(memberships))
	for _, m := range memberships {
		responses = append(responses, gin.H{
			"zone_id":    m.ZoneID,
			"zone":       m.Zone.Name,
			"role":       m.Role,
			"status":     m.Status,
			"invited_by": m.InvitedBy,
			"created_at": m.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, responses)
}

func (h *MembershipHandler) activate(c *gin.Context, membership models.Membership) {
	membership.Status = models.StatusActive
	if name := c.GetString(middleware.UsernameKey); name != "" {
		membership.Username = name
	}
	err := h.db.WithContext(c.Request.Context()).
		Model(&membership).
		Updates(map[string]any{"status": membership.Status, "username": membership.Username}).Error
	if err != nil {
		h.logger.Error("accept invitation", zap.Int("membership_id", membership.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to accept invitation"})
		return
	}

	c.JSON(http.StatusOK, membership)
}

func (h *MembershipHandler) membership(c *gin.Context, zoneID, memberID int) (models.Membership, bool, error) {
	var m models.Membership
	err := h.db.WithContext(c.Request.Context()).Where("zone_id = ? AND member_id = ?", zoneID, memberID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Membership{}, false, nil
		}
		h.logger.Error("find membership", zap.Int("zone_id", zoneID), zap.Int("member_id", memberID), zap.Error(err))
		return models.Membership{}, false, err
	}
	return m, true, nil
}

func (h *MembershipHandler) findZone(c *gin.Context) (models.Zone, bool) {
	var zone models.Zone
	if err := h.db.WithContext(c.Request.Context()).Where("name = ?", c.Param("name")).First(&zone).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Zone not found"})
		} else {
			h.logger.Error("find zone", zap.String("zone", c.Param("name")), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch zone"})
		}
		return models.Zone{}, false
	}
	return zone, true
}
