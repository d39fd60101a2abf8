package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"finnest/internal/database"
	"finnest/internal/nav"
	"finnest/internal/parser"
	"finnest/internal/scheme"
)

const maxUploadBytes = 10 * 1024 * 1024

var allowedExtensions = map[string]bool{".pdf": true, ".xlsx": true, ".xls": true}

type Handler struct {
	repo      *database.Repo
	parser    *parser.Parser
	resolver  *scheme.Resolver
	refresher *nav.Refresher
	log       *logrus.Logger
}

func NewHandler(r *database.Repo, p *parser.Parser, res *scheme.Resolver, ref *nav.Refresher, log *logrus.Logger) *Handler {
	return &Handler{repo: r, parser: p, resolver: res, refresher: ref, log: log}
}

// UploadStatement ingests one CAMS statement for a user: parse, resolve
// scheme identities, upsert holdings, roll up the aggregate.
func (h *Handler) UploadStatement(c *gin.Context) {
	userID := c.PostForm("user_id")
	if userID == "" || userID == "undefined" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	password := c.PostForm("password")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "statement file is required"})
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !allowedExtensions[ext] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file type, upload PDF or Excel only"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large, maximum 10MB allowed"})
		return
	}

	ctx := context.Background()
	fileID, err := h.repo.CreateUploadedFile(ctx, userID, fileHeader.Filename,
		strings.ToUpper(strings.TrimPrefix(ext, ".")), fileHeader.Size)
	if err != nil {
		h.log.Errorf("create upload record failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		h.failUpload(ctx, fileID, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		h.failUpload(ctx, fileID, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}

	records, err := h.parser.Parse(data, ext, password)
	if err != nil {
		h.failUpload(ctx, fileID, err)
		switch {
		case errors.Is(err, parser.ErrPasswordRequired), errors.Is(err, parser.ErrPasswordIncorrect):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "password_required": true})
		case errors.Is(err, parser.ErrUnparseable):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			h.log.Errorf("statement parse failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to parse statement: %v", err)})
		}
		return
	}

	resolutions := h.resolver.ResolveAll(ctx, records)

	folios := map[string]bool{}
	totalInvestment := decimal.Zero
	created := 0
	for _, rec := range records {
		holding := database.Holding{
			UserID:         userID,
			FolioNumber:    rec.FolioNumber,
			SchemeCode:     resolutions[rec.SchemeName].StorageCode(),
			SchemeName:     rec.SchemeName,
			UnitBalance:    rec.UnitBalance,
			AvgCostPerUnit: rec.AvgCostPerUnit,
			CostValue:      rec.CostValue,
			CurrentNAV:     rec.CurrentNAV,
			NAVDate:        rec.NAVDate,
		}
		if rec.AMCName != "" {
			holding.AMCName = sql.NullString{String: rec.AMCName, Valid: true}
		}
		if err := h.repo.UpsertHolding(ctx, holding); err != nil {
			h.log.Errorf("upsert holding %s/%s failed: %v", rec.FolioNumber, rec.SchemeName, err)
			continue
		}
		folios[rec.FolioNumber] = true
		totalInvestment = totalInvestment.Add(rec.CostValue)
		created++
	}

	if err := h.repo.FinishUploadedFile(ctx, fileID, database.FileStatusCompleted, len(folios), created, totalInvestment, ""); err != nil {
		h.log.Warnf("finish upload record failed: %v", err)
	}
	if _, err := h.repo.SyncMutualFundsValue(ctx, userID); err != nil {
		h.log.Warnf("aggregate sync after upload failed: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("parsed %d folios with %d holdings", len(folios), created),
		"data": gin.H{
			"file_id":          fileID,
			"folios_extracted": len(folios),
			"holdings_created": created,
			"total_investment": totalInvestment.StringFixed(4),
		},
	})
}

func (h *Handler) failUpload(ctx context.Context, fileID string, cause error) {
	if err := h.repo.FinishUploadedFile(ctx, fileID, database.FileStatusFailed, 0, 0, decimal.Zero, cause.Error()); err != nil {
		h.log.Warnf("mark upload failed: %v", err)
	}
}

// GetHoldings returns a user's active holdings plus the computed summary.
func (h *Handler) GetHoldings(c *gin.Context) {
	userID := c.Param("userId")
	holdings, err := h.repo.ActiveHoldings(context.Background(), userID)
	if err != nil {
		h.log.Errorf("get holdings failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"holdings": holdings,
		"summary":  database.Summarize(holdings),
	})
}

// DeleteHolding soft-deletes one holding after an ownership check and
// re-syncs the aggregate.
func (h *Handler) DeleteHolding(c *gin.Context) {
	holdingID := c.Param("id")
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	ctx := context.Background()
	err := h.repo.SoftDeleteHolding(ctx, holdingID, userID)
	switch {
	case err == sql.ErrNoRows:
		c.JSON(http.StatusNotFound, gin.H{"error": "holding not found"})
		return
	case errors.Is(err, database.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "you don't own this holding"})
		return
	case err != nil:
		h.log.Errorf("delete holding failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}

	if _, err := h.repo.SyncMutualFundsValue(ctx, userID); err != nil {
		h.log.Warnf("aggregate sync after delete failed: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "holding deleted"})
}

// RefreshNAV triggers one batch refresh, optionally scoped to a user.
func (h *Handler) RefreshNAV(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id"`
	}
	_ = c.ShouldBindJSON(&req)

	stats, err := h.refresher.Run(context.Background(), req.UserID)
	if err != nil {
		h.log.Errorf("manual nav refresh failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "nav refresh failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "NAV update completed", "stats": stats})
}

// GetNotifications returns a user's notifications, unread first.
func (h *Handler) GetNotifications(c *gin.Context) {
	userID := c.Param("userId")
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	notifications, unread, err := h.repo.ListNotifications(context.Background(), userID, limit)
	if err != nil {
		h.log.Errorf("list notifications failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"notifications": notifications,
		"unread_count":  unread,
	})
}

// MarkNotificationRead flips one notification to read.
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	id := c.Param("id")
	err := h.repo.MarkNotificationRead(context.Background(), id)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	if err != nil {
		h.log.Errorf("mark notification read failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "notification marked as read"})
}
