package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/tilecache/internal/tile"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const maxTileZoom = 22

func (h *Handler) Tile(c *gin.Context) {
	l := requestLogger(c)

	coord, err := parseCoordinate(c)
	if err != nil {
		l.Warn("invalid tile coordinate", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	telemetry.SpanFromContext(c).SetAttributes(
		attribute.Int("tile.z", coord.Z),
		attribute.Int("tile.x", coord.X),
		attribute.Int("tile.y", coord.Y),
	)

	url := tile.ExpandTemplate(h.tileTemplate, coord)

	t, ok := h.tiles.GetOrFetch(c.Request.Context(), url)
	if !ok {
		h.RespondWithJSON(c, http.StatusNotFound, ErrTileUnavailable.Error(), nil)
		return
	}

	c.Header("X-Tile-Source", string(t.Source))
	c.Data(http.StatusOK, http.DetectContentType(t.Data), t.Data)
}

func parseCoordinate(c *gin.Context) (tile.Coordinate, error) {
	z, err := strconv.Atoi(c.Param("z"))
	if err != nil {
		return tile.Coordinate{}, errors.New("z should be integer")
	}
	x, err := strconv.Atoi(c.Param("x"))
	if err != nil {
		return tile.Coordinate{}, errors.New("x should be integer")
	}
	y, err := strconv.Atoi(c.Param("y"))
	if err != nil {
		return tile.Coordinate{}, errors.New("y should be integer")
	}

	if z < 0 || z > maxTileZoom {
		return tile.Coordinate{}, errors.New("z is out of range")
	}
	n := tile.CountAtZoom(z)
	if x < 0 || x >= n || y < 0 || y >= n {
		return tile.Coordinate{}, fmt.Errorf("x or y is out of range for zoom %d", z)
	}

	return tile.Coordinate{Z: z, X: x, Y: y}, nil
}
