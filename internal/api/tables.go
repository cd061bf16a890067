package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/bloops-games/carousing/internal/carousing/model"
	"github.com/bloops-games/carousing/internal/carousing/tables"
	"github.com/gin-gonic/gin"
)

const (
	kindCustom   = "custom"
	kindExpanded = "expanded"

	maxImportSize = 1 << 20
)

func tableKind(c *gin.Context) (string, error) {
	switch k := c.Param("kind"); k {
	case kindCustom, kindExpanded:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown table kind %q", errBadRequest, k)
	}
}

func (h *Handler) listTables(c *gin.Context) {
	list, err := h.tables.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) createTable(c *gin.Context) {
	h.saveTable(c, "")
}

func (h *Handler) updateTable(c *gin.Context) {
	h.saveTable(c, c.Param("id"))
}

func (h *Handler) saveTable(c *gin.Context, id string) {
	ctx := c.Request.Context()

	kind, err := tableKind(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.engine.RequireGM(ctx, callerID(c)); err != nil {
		h.fail(c, err)
		return
	}

	if kind == kindExpanded {
		var t model.ExpandedTable
		if !h.bind(c, &t) {
			return
		}
		t.ID = id
		saved, err := h.tables.SaveExpanded(ctx, t)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, saved)
		return
	}

	var t model.Table
	if !h.bind(c, &t) {
		return
	}
	t.ID = id
	saved, err := h.tables.SaveCustom(ctx, t)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h *Handler) deleteTable(c *gin.Context) {
	ctx := c.Request.Context()

	kind, err := tableKind(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.engine.RequireGM(ctx, callerID(c)); err != nil {
		h.fail(c, err)
		return
	}

	if kind == kindExpanded {
		err = h.tables.DeleteExpanded(ctx, c.Param("id"))
	} else {
		err = h.tables.DeleteCustom(ctx, c.Param("id"))
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) exportTable(c *gin.Context) {
	ctx := c.Request.Context()

	kind, err := tableKind(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	var data []byte
	if kind == kindExpanded {
		data, err = h.tables.ExportExpanded(ctx, c.Param("id"))
	} else {
		data, err = h.tables.ExportCustom(ctx, c.Param("id"))
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", c.Param("id")+".json"))
	c.Data(http.StatusOK, "application/json", data)
}

func (h *Handler) importTable(c *gin.Context) {
	ctx := c.Request.Context()

	kind, err := tableKind(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.engine.RequireGM(ctx, callerID(c)); err != nil {
		h.fail(c, err)
		return
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportSize))
	if err != nil {
		h.fail(c, fmt.Errorf("%w: read body: %v", errBadRequest, err))
		return
	}

	if kind == kindExpanded {
		t, err := h.tables.ImportExpanded(ctx, data)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
		return
	}

	t, err := h.tables.ImportCustom(ctx, data)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// parseTable converts pasted text into rows for the editor. Nothing is stored.
func (h *Handler) parseTable(c *gin.Context) {
	var req struct {
		Section string `json:"section" binding:"required"`
		Text    string `json:"text"`
	}
	if !h.bind(c, &req) {
		return
	}

	var (
		rows    interface{}
		skipped int
	)
	switch req.Section {
	case "tiers":
		rows, skipped = tables.ParseTiers(req.Text)
	case "outcomes":
		if c.Param("kind") == kindExpanded {
			rows, skipped = tables.ParseRecipes(req.Text)
		} else {
			rows, skipped = tables.ParseOutcomes(req.Text)
		}
	case "benefits", "mishaps":
		rows, skipped = tables.ParseEntries(req.Text)
	default:
		h.fail(c, fmt.Errorf("%w: unknown section %q", errBadRequest, req.Section))
		return
	}

	c.JSON(http.StatusOK, gin.H{"rows": rows, "skipped": skipped})
}
