package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/bloops-games/carousing/internal/carousing/model"
	actorModel "github.com/bloops-games/carousing/internal/database/actor/model"
	"github.com/gin-gonic/gin"
)

func (h *Handler) getMode(c *gin.Context) {
	mode, err := h.engine.Mode(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": mode})
}

func (h *Handler) putMode(c *gin.Context) {
	var req struct {
		Mode model.Mode `json:"mode" binding:"required"`
	}
	if !h.bind(c, &req) {
		return
	}

	if err := h.engine.SetMode(c.Request.Context(), callerID(c), req.Mode); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getSession(c *gin.Context) {
	s, err := h.engine.Session(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if viewer := callerUser(c); !viewer.GM {
		s = s.VisibleTo(viewer.ID)
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) getStatus(c *gin.Context) {
	st, err := h.engine.Status(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st.VisibleTo(callerUser(c)))
}

func (h *Handler) putTable(c *gin.Context) {
	var req struct {
		TableID string `json:"tableId" binding:"required"`
	}
	if !h.bind(c, &req) {
		return
	}

	if err := h.engine.SetTable(c.Request.Context(), callerID(c), req.TableID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) putTier(c *gin.Context) {
	var req struct {
		Tier *int `json:"tier"`
	}
	if !h.bind(c, &req) {
		return
	}

	if err := h.engine.SetTier(c.Request.Context(), callerID(c), req.Tier); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) putDrop(c *gin.Context) {
	var req struct {
		ActorID string `json:"actorId"`
	}
	if !h.bind(c, &req) {
		return
	}

	if err := h.engine.SetDrop(c.Request.Context(), callerID(c), c.Param("player"), req.ActorID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) putConfirmation(c *gin.Context) {
	var req struct {
		Confirmed bool `json:"confirmed"`
	}
	if !h.bind(c, &req) {
		return
	}

	if err := h.engine.SetConfirmation(c.Request.Context(), callerID(c), c.Param("player"), req.Confirmed); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) putModifier(c *gin.Context) {
	var req struct {
		Field model.ModifierField `json:"field" binding:"required"`
		Text  string              `json:"text"`
	}
	if !h.bind(c, &req) {
		return
	}

	if err := h.engine.SetModifier(c.Request.Context(), callerID(c), c.Param("player"), req.Field, req.Text); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) postRoll(c *gin.Context) {
	report, err := h.engine.ExecuteRolls(c.Request.Context(), callerID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) postReset(c *gin.Context) {
	if err := h.engine.Reset(c.Request.Context(), callerID(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) postPrune(c *gin.Context) {
	n, err := h.engine.PruneOffline(c.Request.Context(), callerID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pruned": n})
}

func (h *Handler) postResult(c *gin.Context) {
	var req struct {
		Kind model.Kind `json:"kind" binding:"required"`
		Text string     `json:"text"`
	}
	if !h.bind(c, &req) {
		return
	}

	added, err := h.engine.AddResult(c.Request.Context(), callerID(c), c.Param("player"), req.Kind, req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added})
}

func (h *Handler) deleteResult(c *gin.Context) {
	kind, err := model.ParseKind(c.Param("kind"))
	if err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		h.fail(c, fmt.Errorf("%w: index: %v", errBadRequest, err))
		return
	}

	removed, err := h.engine.RemoveResult(c.Request.Context(), callerID(c), c.Param("player"), kind, index)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (h *Handler) listActors(c *gin.Context) {
	ctx := c.Request.Context()
	u := callerUser(c)

	var (
		list []actorModel.Actor
		err  error
	)
	if u.GM {
		list, err = h.actors.FetchAll(ctx)
	} else {
		list, err = h.actors.FetchByOwner(ctx, u.ID)
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	if list == nil {
		list = []actorModel.Actor{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) awardActor(c *gin.Context) {
	var req struct {
		Gold int `json:"gold"`
	}
	if !h.bind(c, &req) {
		return
	}

	a, err := h.engine.AwardGold(c.Request.Context(), callerID(c), c.Param("id"), req.Gold)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
