package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"labattend/internal/directory"
	"labattend/internal/export"
	"labattend/internal/model"
	"labattend/internal/session"
)

func (s *server) startSession(c *gin.Context) {
	var req struct {
		Lab     string `json:"lab"`
		StaffID int    `json:"staff_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.StaffID != 0 && req.Lab != "" {
		staff, ok := s.Directory.FindStaff(req.StaffID)
		if !ok {
			s.fail(c, fmt.Errorf("staff %d: %w", req.StaffID, errNotFound))
			return
		}
		if staff.Role == directory.RoleStaff && !directory.Assigned(staff, req.Lab) {
			s.fail(c, errNotAssigned)
			return
		}
	}
	snap, err := s.Engine.Start(req.Lab)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": snap})
}

func (s *server) currentSession(c *gin.Context) {
	snap, ok := s.Engine.Snapshot()
	if !ok {
		s.fail(c, session.ErrNoSession)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session":  snap,
		"elapsed":  model.FormatDuration(int(s.Clock.Now().Sub(snap.StartedAt).Seconds())),
		"pending":  s.Engine.Pending(),
		"enrolled": countEnrolled(snap.Roster),
	})
}

func countEnrolled(roster []model.RosterEntry) int {
	n := 0
	for _, e := range roster {
		if e.Enrolled {
			n++
		}
	}
	return n
}

func (s *server) submitScan(c *gin.Context) {
	var req struct {
		StudentID         string `json:"student_id"`
		ConfirmUnenrolled bool   `json:"confirm_unenrolled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.Engine.Submit(c.Request.Context(), req.StudentID, session.Always(req.ConfirmUnenrolled))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, scanBody(res))
}

// scanBody adds the confirmation prompt a console shows for declined scans.
func scanBody(res session.Result) gin.H {
	body := gin.H{"result": res}
	if res.Outcome == session.Declined {
		body["confirm"] = fmt.Sprintf("%s (%s) is not enrolled in %s. Mark attendance anyway?", res.StudentName, res.StudentID, res.Event.Lab)
	}
	return body
}

func (s *server) feedInput(c *gin.Context) {
	var req struct {
		Data              string `json:"data" binding:"required"`
		ConfirmUnenrolled bool   `json:"confirm_unenrolled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	results, err := s.Engine.Feed(c.Request.Context(), req.Data, session.Always(req.ConfirmUnenrolled))
	if err != nil {
		s.fail(c, err, gin.H{"results": results})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "pending": s.Engine.Pending()})
}

func (s *server) removeStudent(c *gin.Context) {
	removed, err := s.Engine.Remove(c.Param("studentID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if !removed {
		s.fail(c, fmt.Errorf("student %s not on roster: %w", c.Param("studentID"), errNotFound))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) endSession(c *gin.Context) {
	var req struct {
		StaffID      int  `json:"staff_id"`
		ConfirmEmpty bool `json:"confirm_empty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.Engine.End(c.Request.Context(), session.EndOptions{StaffID: req.StaffID, ConfirmEmpty: req.ConfirmEmpty})
	if errors.Is(err, session.ErrEmptyRoster) {
		s.fail(c, err, gin.H{"confirm": "No students were scanned. Are you sure you want to end the session?"})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()
	s.log.Info("session closed over http", zap.String("session_id", res.Summary.SessionID))
	c.JSON(http.StatusOK, gin.H{"result": res, "message": res.Summary.String()})
}

func (s *server) lastSession(c *gin.Context) {
	last := s.lastResult()
	if last == nil {
		s.fail(c, fmt.Errorf("no finished session: %w", errNotFound))
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": last, "message": last.Summary.String()})
}

func (s *server) lastResult() *session.EndResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *server) currentScanLogCSV(c *gin.Context) {
	snap, ok := s.Engine.Snapshot()
	if !ok {
		s.fail(c, session.ErrNoSession)
		return
	}
	s.writeScanLog(c, snap.ScanLog)
}

func (s *server) lastScanLogCSV(c *gin.Context) {
	last := s.lastResult()
	if last == nil {
		s.fail(c, fmt.Errorf("no finished session: %w", errNotFound))
		return
	}
	s.writeScanLog(c, last.ScanLog)
}

func (s *server) writeScanLog(c *gin.Context, events []model.ScanEvent) {
	body, err := export.ScanLogCSV(events)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No scan log to export"})
		return
	}
	writeCSV(c, export.ScanLogFilename(s.Clock.Now()), body)
}

func writeCSV(c *gin.Context, filename, body string) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(body))
}
