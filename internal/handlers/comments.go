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

type CommentHandler struct {
	db     *gorm.DB
	votes  *ledger.Ledger
	logger *zap.Logger
}

func NewCommentHandler(db *gorm.DB, votes *ledger.Ledger, logger *zap.Logger) *CommentHandler {
	return &CommentHandler{db: db, votes: votes, logger: logger}
}

func commentResponse(comment models.Comment, tally ledger.Tally) gin.H {
	return gin.H{
		"id":                comment.ID,
		"body":              comment.Body,
		"author_id":         comment.AuthorID,
		"author":            comment.Author,
		"point_id":          comment.PointID,
		"parent_comment_id": comment.ParentCommentID,
		"boosts":            tally.Up,
		"reduces":           tally.Down,
		"net":               tally.Net,
		"created_at":        comment.CreatedAt,
		"updated_at":        comment.UpdatedAt,
	}
}

func (h *CommentHandler) withTally(c *gin.Context, comment models.Comment) (gin.H, error) {
	tally, err := h.votes.Tally(c.Request.Context(), ledger.SubjectKey(database.SubjectComment, comment.ID))
	if err != nil {
		return nil, err
	}
	return commentResponse(comment, tally), nil
}

// GetComments returns all comments for a point with their tallies
func (h *CommentHandler) GetComments(c *gin.Context) {
	pointID, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid point id"})
		return
	}

	var point models.Point
	if err := h.db.WithContext(c.Request.Context()).Select("id").First(&point, pointID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Point not found"})
			return
		}
		h.logger.Error("find point", zap.Int("point_id", pointID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch comments"})
		return
	}

	var comments []models.Comment
	if err := h.db.WithContext(c.Request.Context()).Where("point_id = ?", pointID).Order("created_at desc").Find(&comments).Error; err != nil {
		h.logger.Error("list comments", zap.Int("point_id", pointID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch comments"})
		return
	}

	subjects := make([]string, len(comments))
	for i, comment := range comments {
		subjects[i] = ledger.SubjectKey(database.SubjectComment, comment.ID)
	}
	tallies, err := h.votes.Tallies(c.Request.Context(), subjects)
	if err != nil {
		h.logger.Error("tally comments", zap.Int("point_id", pointID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch comments"})
		return
	}

	responses := make([]gin.H, 0, len(comments))
	for i, comment := range comments {
		responses = append(responses, commentResponse(comment, tallies[subjects[i]]))
	}

	c.JSON(http.StatusOK, responses)
}

// CreateComment creates a new comment on a point
func (h *CommentHandler) CreateComment(c *gin.Context) {
	var input models.CreateCommentRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	authorID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	pointID, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid point id"})
		return
	}

	// Verify point exists
	var point models.Point
	if err := h.db.WithContext(c.Request.Context()).First(&point, pointID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Point not found"})
		return
	}

	// Replies must stay on the same point
	if input.ParentCommentID != nil {
		var parent models.Comment
		err := h.db.WithContext(c.Request.Context()).First(&parent, *input.ParentCommentID).Error
		if err != nil || parent.PointID != point.ID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Parent comment not found on this point"})
			return
		}
	}

	comment := models.Comment{
		Body:            input.Body,
		PointID:         point.ID,
		AuthorID:        authorID,
		Author:          c.GetString(middleware.UsernameKey),
		ParentCommentID: input.ParentCommentID,
	}

	if err := h.db.WithContext(c.Request.Context()).Create(&comment).Error; err != nil {
		h.logger.Error("create comment", zap.Int("point_id", point.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create comment"})
		return
	}

	resp, err := h.withTally(c, comment)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create comment"})
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// UpdateComment updates a comment (owner only)
func (h *CommentHandler) UpdateComment(c *gin.Context) {
	authorID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var input struct {
		Body string `json:"body" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	comment, ok := h.findComment(c)
	if !ok {
		return
	}

	if comment.AuthorID != authorID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only edit your own comments"})
		return
	}

	comment.Body = input.Body
	if err := h.db.WithContext(c.Request.Context()).Save(&comment).Error; err != nil {
		h.logger.Error("update comment", zap.Int("comment_id", comment.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update comment"})
		return
	}

	resp, err := h.withTally(c, comment)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update comment"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DeleteComment deletes a comment and its boosts (owner only)
func (h *CommentHandler) DeleteComment(c *gin.Context) {
	authorID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	comment, ok := h.findComment(c)
	if !ok {
		return
	}

	if comment.AuthorID != authorID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only delete your own comments"})
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		// Clean up boosts on this comment too
		if err := database.DeleteSubjects(tx, ledger.SubjectKey(database.SubjectComment, comment.ID)); err != nil {
			return err
		}
		// Replies stay, detached from the removed parent
		if err := tx.Model(&models.Comment{}).Where("parent_comment_id = ?", comment.ID).Update("parent_comment_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&comment).Error
	})
	if err != nil {
		h.logger.Error("delete comment", zap.Int("comment_id", comment.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete comment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted successfully"})
}

func (h *CommentHandler) findComment(c *gin.Context) (models.Comment, bool) {
	id, ok := parseID(c.Param("commentId"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid comment id"})
		return models.Comment{}, false
	}

	var comment models.Comment
	if err := h.db.WithContext(c.Request.Context()).First(&comment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
		} else {
			h.logger.Error("find comment", zap.Int("comment_id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch comment"})
		}
		return models.Comment{}, false
	}
	return comment, true
}
