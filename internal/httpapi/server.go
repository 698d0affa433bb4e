package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"labattend/internal/attendance"
	"labattend/internal/clock"
	"labattend/internal/directory"
	"labattend/internal/feedback"
	"labattend/internal/httpmiddleware"
	"labattend/internal/scanner"
	"labattend/internal/session"
)

// Directory is the read side of the department directory used by handlers.
type Directory interface {
	FindStudent(id string) (directory.User, bool)
	FindStaff(id int) (directory.User, bool)
	StudentName(id string) string
	ListUsers(role directory.Role) []directory.User
	Labs() []string
}

// Simulator lets operators emulate a lost link on simulated scanners.
type Simulator interface {
	Drop(deviceID string) bool
}

// HealthCheck reports one dependency's health.
type HealthCheck func(ctx context.Context) bool

// Deps are the components the router serves.
type Deps struct {
	Scanner    *scanner.Manager
	Engine     *session.Engine
	Directory  Directory
	Records    attendance.Repository
	Board      *feedback.Board
	Simulator  Simulator
	Gatherer   prometheus.Gatherer
	Health     map[string]HealthCheck
	Logger     *zap.Logger
	Clock      clock.Clock
	RatePerMin int
	Origins    []string
}

type server struct {
	Deps
	log *zap.Logger

	mu   sync.Mutex
	last *session.EndResult
}

// NewRouter builds the console API.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	s := &server{Deps: d, log: d.Logger.Named("http")}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(s.log, "/healthz", "/metrics"))
	r.Use(cors.New(corsConfig(d.Origins)))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(d.RatePerMin, d.RatePerMin, d.Clock).Middleware())

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", s.health)

	v1 := r.Group("/v1")
	{
		sc := v1.Group("/scanner")
		sc.GET("", s.scannerStatus)
		sc.POST("/discover", s.discover)
		sc.POST("/connect", s.connect)
		sc.POST("/disconnect", s.disconnect)
		sc.POST("/retry", s.retry)
		sc.PUT("/auto-reconnect", s.autoReconnect)
		sc.POST("/simulate/drop", s.simulateDrop)

		se := v1.Group("/sessions")
		se.POST("", s.startSession)
		se.GET("/current", s.currentSession)
		se.POST("/current/scans", s.submitScan)
		se.POST("/current/input", s.feedInput)
		se.DELETE("/current/roster/:studentID", s.removeStudent)
		se.POST("/current/end", s.endSession)
		se.GET("/current/scan-log.csv", s.currentScanLogCSV)
		se.GET("/last", s.lastSession)
		se.GET("/last/scan-log.csv", s.lastScanLogCSV)

		v1.GET("/attendance", s.listAttendance)
		v1.GET("/attendance/export.csv", s.exportAttendance)
		v1.GET("/students/:studentID/report", s.studentReport)
		v1.GET("/students/:studentID/report.txt", s.studentReportText)
		v1.GET("/students/:studentID/badge.png", s.studentBadge)
		v1.GET("/labs", s.labs)
		v1.GET("/users", s.users)
		v1.GET("/feedback", s.feedback)
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: len(origins) > 0,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func (s *server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	body := gin.H{"status": "ok"}
	status := http.StatusOK
	for name, check := range s.Health {
		ok := check(ctx)
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var connErr *scanner.ConnectionError
	switch {
	case errors.Is(err, session.ErrNoLabSelected),
		errors.Is(err, session.ErrEmptyInput),
		errors.Is(err, scanner.ErrUnknownDevice):
		return http.StatusBadRequest
	case errors.Is(err, scanner.ErrPermissionDenied), errors.Is(err, errNotAssigned):
		return http.StatusForbidden
	case errors.Is(err, session.ErrNoSession), errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionActive),
		errors.Is(err, session.ErrScannerRequired),
		errors.Is(err, session.ErrEmptyRoster),
		errors.Is(err, scanner.ErrBusy),
		errors.Is(err, scanner.ErrAlreadyConnected),
		errors.Is(err, scanner.ErrNoDevice):
		return http.StatusConflict
	case errors.Is(err, scanner.ErrPlatformUnsupported):
		return http.StatusNotImplemented
	case errors.As(err, &connErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

var (
	errNotAssigned = errors.New("staff member is not assigned to this lab")
	errNotFound    = errors.New("not found")
)

func (s *server) fail(c *gin.Context, err error, extra ...gin.H) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	body := gin.H{"error": err.Error()}
	for _, e := range extra {
		for k, v := range e {
			body[k] = v
		}
	}
	c.AbortWithStatusJSON(code, body)
}
