package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"labattend/internal/scanner"
)

func (s *server) scannerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": s.Scanner.Status(), "devices": s.Scanner.Devices()})
}

func (s *server) discover(c *gin.Context) {
	devices, err := s.Scanner.Discover(c.Request.Context())
	if err != nil {
		s.fail(c, err, gin.H{"status": s.Scanner.Status()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices, "status": s.Scanner.Status()})
}

func (s *server) connect(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := s.Scanner.Connect(c.Request.Context(), req.DeviceID)
	if err != nil {
		s.fail(c, err, gin.H{"status": st})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": st})
}

func (s *server) disconnect(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": s.Scanner.Disconnect()})
}

func (s *server) retry(c *gin.Context) {
	st, err := s.Scanner.Retry(c.Request.Context())
	if err != nil {
		s.fail(c, err, gin.H{"status": st})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": st})
}

func (s *server) autoReconnect(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.Scanner.SetAutoReconnect(*req.Enabled)
	c.JSON(http.StatusOK, gin.H{"status": s.Scanner.Status()})
}

func (s *server) simulateDrop(c *gin.Context) {
	if s.Simulator == nil {
		s.fail(c, scanner.ErrPlatformUnsupported)
		return
	}
	st := s.Scanner.Status()
	if st.Device == nil {
		s.fail(c, fmt.Errorf("no connected scanner: %w", errNotFound))
		return
	}
	s.Simulator.Drop(st.Device.ID)
	c.JSON(http.StatusAccepted, gin.H{"status": s.Scanner.Status()})
}
