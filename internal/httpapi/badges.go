package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"labattend/internal/directory"
)

const (
	defaultBadgeSize = 256
	maxBadgeSize     = 1024
)

// studentBadge renders the student identifier as a QR code so ID cards can
// be printed for the handheld scanner.
func (s *server) studentBadge(c *gin.Context) {
	id := directory.CanonicalID(c.Param("studentID"))
	if _, ok := s.Directory.FindStudent(id); !ok {
		s.fail(c, fmt.Errorf("student %s: %w", id, errNotFound))
		return
	}
	size := defaultBadgeSize
	if v, err := strconv.Atoi(c.Query("size")); err == nil && v >= 64 && v <= maxBadgeSize {
		size = v
	}
	png, err := qrcode.Encode(id, qrcode.Medium, size)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", id+"_badge.png"))
	c.Data(http.StatusOK, "image/png", png)
}
