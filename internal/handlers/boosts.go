package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/whisperhq/whisper/backend/internal/database"
	"github.com/whisperhq/whisper/backend/internal/ledger"
	"github.com/whisperhq/whisper/backend/internal/models"
)

// SubjectFinder checks that a boost target exists before the ledger runs.
type SubjectFinder interface {
	SubjectExists(ctx context.Context, subjectID string) (bool, error)
}

type BoostHandler struct {
	votes    *ledger.Ledger
	subjects SubjectFinder
	logger   *zap.Logger
}

func NewBoostHandler(votes *ledger.Ledger, subjects SubjectFinder, logger *zap.Logger) *BoostHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BoostHandler{votes: votes, subjects: subjects, logger: logger}
}

type boostResponse struct {
	Outcome   ledger.Outcome   `json:"outcome"`
	NetAfter  int              `json:"netAfter"`
	NetBefore int              `json:"netBefore"`
	Direction ledger.Direction `json:"direction,omitempty"`
}

type tallyResponse struct {
	Subject string `json:"subject"`
	ledger.Tally
	Standing ledger.Direction `json:"standing,omitempty"`
}

type errorResponse struct {
	ErrorKind string `json:"errorKind"`
	Message   string `json:"message"`
}

// VotePoint applies the direction named in the request body to a point.
func (h *BoostHandler) VotePoint(c *gin.Context) {
	h.applyFromBody(c, database.SubjectPoint, c.Param("id"))
}

// BoostPoint is Up on a point; repeating it withdraws the boost
func (h *BoostHandler) BoostPoint(c *gin.Context) {
	h.apply(c, database.SubjectPoint, c.Param("id"), ledger.Up)
}

// ReducePoint is Down on a point, subject to the zero floor
func (h *BoostHandler) ReducePoint(c *gin.Context) {
	h.apply(c, database.SubjectPoint, c.Param("id"), ledger.Down)
}

func (h *BoostHandler) PointTally(c *gin.Context) {
	h.tally(c, database.SubjectPoint, c.Param("id"))
}

func (h *BoostHandler) VoteComment(c *gin.Context) {
	h.applyFromBody(c, database.SubjectComment, c.Param("commentId"))
}

func (h *BoostHandler) BoostComment(c *gin.Context) {
	h.apply(c, database.SubjectComment, c.Param("commentId"), ledger.Up)
}

func (h *BoostHandler) ReduceComment(c *gin.Context) {
	h.apply(c, database.SubjectComment, c.Param("commentId"), ledger.Down)
}

func (h *BoostHandler) CommentTally(c *gin.Context) {
	h.tally(c, database.SubjectComment, c.Param("commentId"))
}

func (h *BoostHandler) applyFromBody(c *gin.Context, kind, rawID string) {
	var input models.BoostRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		h.fail(c, fmt.Errorf("%w: direction is required", ledger.ErrInvalidArgument))
		return
	}
	direction, err := ledger.ParseDirection(input.Direction)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.apply(c, kind, rawID, direction)
}

func (h *BoostHandler) apply(c *gin.Context, kind, rawID string, direction ledger.Direction) {
	voterID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	subjectID, err := h.resolve(c.Request.Context(), kind, rawID)
	if err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.votes.Apply(c.Request.Context(), subjectID, strconv.Itoa(voterID), direction)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, boostResponse{
		Outcome:   result.Outcome,
		NetAfter:  result.NetAfter,
		NetBefore: result.NetBefore,
		Direction: result.Standing,
	})
}

func (h *BoostHandler) tally(c *gin.Context, kind, rawID string) {
	subjectID, err := h.resolve(c.Request.Context(), kind, rawID)
	if err != nil {
		h.fail(c, err)
		return
	}

	tally, err := h.votes.Tally(c.Request.Context(), subjectID)
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := tallyResponse{Subject: subjectID, Tally: tally}

	// Signed-in callers also see which way they voted.
	if voterID, ok := extractUserID(c); ok {
		if resp.Standing, err = h.votes.Standing(c.Request.Context(), subjectID, strconv.Itoa(voterID)); err != nil {
			h.fail(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, resp)
}

// resolve turns a route id into a subject key and checks the subject exists.
func (h *BoostHandler) resolve(ctx context.Context, kind, rawID string) (string, error) {
	id, ok := parseID(rawID)
	if !ok {
		return "", fmt.Errorf("%w: invalid %s id %q", ledger.ErrInvalidArgument, kind, rawID)
	}
	subjectID := ledger.SubjectKey(kind, id)

	exists, err := h.subjects.SubjectExists(ctx, subjectID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: %s %d", ledger.ErrSubjectNotFound, kind, id)
	}
	return subjectID, nil
}

func (h *BoostHandler) fail(c *gin.Context, err error) {
	kind := ledger.KindOf(err)
	resp := errorResponse{ErrorKind: kind, Message: err.Error()}

	var status int
	switch {
	case kind == ledger.KindInvalidArgument:
		status = http.StatusBadRequest
	case kind == ledger.KindSubjectNotFound:
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrDuplicateVote):
		status = http.StatusConflict
		resp.Message = "Boost changed concurrently, try again"
	default:
		status = http.StatusInternalServerError
		resp.Message = "Boost storage unavailable"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("boost request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, resp)
}
