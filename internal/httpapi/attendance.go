package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"labattend/internal/attendance"
	"labattend/internal/directory"
	"labattend/internal/export"
)

func filterFrom(c *gin.Context) attendance.Filter {
	f := attendance.Filter{
		StudentID: directory.CanonicalID(c.Query("student_id")),
		Lab:       c.Query("lab"),
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		f.Limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		f.Offset = v
	}
	return f
}

func (s *server) listAttendance(c *gin.Context) {
	recs, err := s.Records.List(c.Request.Context(), filterFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

func (s *server) exportAttendance(c *gin.Context) {
	f := filterFrom(c)
	recs, err := s.Records.List(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	body, err := export.AttendanceCSV(recs, s.Directory)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No data to export"})
		return
	}
	name := "attendance.csv"
	switch {
	case f.StudentID != "":
		name = export.AttendanceFilename(f.StudentID)
	case f.Lab != "":
		name = export.HistoryFilename(f.Lab, s.Clock.Now())
	case c.Query("staff_id") != "":
		if id, err := strconv.Atoi(c.Query("staff_id")); err == nil {
			if staff, ok := s.Directory.FindStaff(id); ok {
				name = export.HistoryFilename(staff.Name, s.Clock.Now())
			}
		}
	}
	writeCSV(c, name, body)
}

func (s *server) studentReport(c *gin.Context) {
	id := directory.CanonicalID(c.Param("studentID"))
	student, ok := s.Directory.FindStudent(id)
	if !ok {
		s.fail(c, fmt.Errorf("student %s: %w", id, errNotFound))
		return
	}
	recs, err := s.Records.List(c.Request.Context(), attendance.Filter{StudentID: id, Lab: c.Query("lab")})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"student":       student,
		"report":        attendance.BuildReport(recs),
		"average_score": attendance.AverageScore(recs),
		"records":       recs,
	})
}

func (s *server) studentReportText(c *gin.Context) {
	id := directory.CanonicalID(c.Param("studentID"))
	student, ok := s.Directory.FindStudent(id)
	if !ok {
		s.fail(c, fmt.Errorf("student %s: %w", id, errNotFound))
		return
	}
	recs, err := s.Records.List(c.Request.Context(), attendance.Filter{StudentID: id})
	if err != nil {
		s.fail(c, err)
		return
	}
	body := export.StudentReport(student, recs, s.Clock.Now())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.ReportFilename(id)))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(body))
}

func (s *server) labs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"labs": s.Directory.Labs()})
}

func (s *server) users(c *gin.Context) {
	var role directory.Role
	if v := c.Query("role"); v != "" {
		r, err := directory.ParseRole(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		role = r
	}
	c.JSON(http.StatusOK, gin.H{"users": s.Directory.ListUsers(role)})
}

func (s *server) feedback(c *gin.Context) {
	if s.Board == nil {
		c.JSON(http.StatusOK, gin.H{"current": nil, "history": []any{}})
		return
	}
	body := gin.H{"current": nil, "history": s.Board.History()}
	if cur, ok := s.Board.Current(); ok {
		body["current"] = cur
	}
	c.JSON(http.StatusOK, body)
}
