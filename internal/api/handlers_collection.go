package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keyperdb/keyper/internal/collection"
	"github.com/keyperdb/keyper/internal/db"
	"github.com/keyperdb/keyper/internal/logging"
	"github.com/keyperdb/keyper/internal/sqlitesource"
	"github.com/keyperdb/keyper/pkg/config"
	"github.com/keyperdb/keyper/pkg/source"
)

// handlers holds the shared state behind every route.
type handlers struct {
	registry *db.DB
	cfg      *config.Config
	log      *logging.Logger
}

func (h *handlers) health(c *gin.Context) {
	SuccessResponse(c, "ok", gin.H{"collections": h.registry.Collections()})
}

// openCollection resolves (lazily creating) the Collection named by the
// :collection path parameter, backed by a SQLite Data Source scoped to it.
// Every keyperd-managed collection uses "id" as its primary key field,
// since the HTTP surface has no channel for a caller to declare richer
// collection configuration (relations, compound keys, ...); those are set
// up in-process by whatever Go program embeds keyper.
func (h *handlers) openCollection(name string) (*collection.Collection, error) {
	if c, ok := h.registry.GetCollection(name); ok {
		return c, nil
	}
	rawDB, err := sqlitesource.Open(h.cfg.SQLiteSource.Path)
	if err != nil {
		return nil, err
	}
	src := sqlitesource.New(rawDB, name, "id")
	return h.registry.CreateCollection(name, collection.Config{PrimaryKey: "id"}, src)
}

func (h *handlers) respondErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, source.ErrNotFound), errors.Is(err, collection.ErrNotFound):
		NotFoundError(c, err.Error())
	case errors.Is(err, collection.ErrConfiguration), errors.Is(err, collection.ErrMisuse):
		BadRequestError(c, err.Error())
	default:
		h.log.Error("request failed", "error", err)
		InternalError(c, err.Error())
	}
}

func (h *handlers) getOne(c *gin.Context) {
	coll, err := h.openCollection(c.Param("collection"))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	e, err := coll.FetchOne(c.Request.Context(), c.Param("pk"), nil, c.Query("force") == "true")
	if err != nil {
		h.respondErr(c, err)
		return
	}
	SuccessResponse(c, "ok", e.Fields())
}

// queryRequest is the JSON body accepted by GET .../collections/:name's
// "query" form (a GET with a body is unusual but keeps Criteria/OrderBy
// structured instead of flattening them into query-string JSON).
type queryRequest struct {
	Where     any  `json:"where,omitempty"`
	OrderBy   any  `json:"orderBy,omitempty"`
	Limit     int  `json:"limit,omitempty"`
	Offset    int  `json:"offset,omitempty"`
	HasLimit  bool `json:"hasLimit"`
	HasOffset bool `json:"hasOffset"`
}

func (h *handlers) query(c *gin.Context) {
	coll, err := h.openCollection(c.Param("collection"))
	if err != nil {
		h.respondErr(c, err)
		return
	}

	var req queryRequest
	if c.Request.ContentLength > 0 {
		if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
			BadRequestError(c, "invalid query body: "+err.Error())
			return
		}
	}
	if limitParam := c.Query("limit"); limitParam != "" {
		req.Limit = clampLimit(atoiOrZero(limitParam))
		req.HasLimit = true
	}

	params := collection.FilterParams{
		Where:     req.Where,
		OrderBy:   req.OrderBy,
		Limit:     req.Limit,
		Offset:    req.Offset,
		HasLimit:  req.HasLimit,
		HasOffset: req.HasOffset,
	}
	res, err := coll.Fetch(c.Request.Context(), params, nil, c.Query("force") == "true")
	if err != nil {
		h.respondErr(c, err)
		return
	}
	items := make([]map[string]any, len(res.Items))
	for i, e := range res.Items {
		items[i] = e.Fields()
	}
	SuccessResponse(c, "ok", gin.H{"items": items, "total": res.Total})
}

func (h *handlers) create(c *gin.Context) {
	coll, err := h.openCollection(c.Param("collection"))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		BadRequestError(c, "invalid payload: "+err.Error())
		return
	}
	e, err := coll.Create(c.Request.Context(), payload)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	CreatedResponse(c, "created", e.Fields())
}

func (h *handlers) update(c *gin.Context) {
	coll, err := h.openCollection(c.Param("collection"))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		BadRequestError(c, "invalid payload: "+err.Error())
		return
	}
	m, err := coll.GetMutable(c.Param("pk"), nil)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	for k, v := range payload {
		m.Fields[k] = v
	}
	e, err := coll.Update(c.Request.Context(), m, false)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	SuccessResponse(c, "updated", e.Fields())
}

func (h *handlers) delete(c *gin.Context) {
	coll, err := h.openCollection(c.Param("collection"))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if err := coll.Delete(c.Request.Context(), c.Param("pk")); err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusNoContent, nil)
}

func atoiOrZero(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
