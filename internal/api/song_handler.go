package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GET /songs
func (h *Handler) ListSongs(c *gin.Context) {
	songs, err := h.store.ListSongs(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	response := make([]SongResponse, 0, len(songs))
	for _, song := range songs {
		response = append(response, toSongResponse(song))
	}
	c.JSON(http.StatusOK, response)
}

// GET /songs/:id
func (h *Handler) GetSong(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid song id"})
		return
	}

	song, err := h.store.GetSong(c.Request.Context(), uint(id))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSongResponse(song))
}

// GET /state
func (h *Handler) GetState(c *gin.Context) {
	prelaunch, err := h.store.GetPrelaunch(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prelaunch": prelaunch})
}
