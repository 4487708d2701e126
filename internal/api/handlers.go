package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"resonance/internal/emotion"
	"resonance/internal/health"
	"resonance/internal/orchestrator"
	"resonance/internal/personalization"
)

// API-level error codes. Pipeline failures use the orchestrator codes.
const (
	CodeBadRequest        = "BAD_REQUEST"
	CodeNotFound          = "NOT_FOUND"
	CodeUnavailable       = "SERVICE_UNAVAILABLE"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeProfileInvalid    = "PROFILE_INVALID"
)

type errorBody struct {
	Code       string                `json:"code"`
	Message    string                `json:"message"`
	Severity   orchestrator.Severity `json:"severity"`
	Violations []string              `json:"violations,omitempty"`
}

func abortWithError(c *gin.Context, status int, body errorBody) {
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	abortWithError(c, http.StatusBadRequest, errorBody{
		Code:     CodeBadRequest,
		Message:  msg,
		Severity: orchestrator.SeverityLow,
	})
}

// writeError maps an orchestrator error onto an HTTP status.
func writeError(c *gin.Context, err error) {
	var oerr *orchestrator.Error
	switch {
	case errors.Is(err, orchestrator.ErrNotAccepting), errors.Is(err, orchestrator.ErrClosed):
		abortWithError(c, http.StatusServiceUnavailable, errorBody{
			Code: CodeUnavailable, Message: err.Error(), Severity: orchestrator.SeverityLow,
		})
	case errors.Is(err, orchestrator.ErrInvalidTransition):
		abortWithError(c, http.StatusConflict, errorBody{
			Code: CodeInvalidTransition, Message: err.Error(), Severity: orchestrator.SeverityLow,
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		abortWithError(c, http.StatusServiceUnavailable, errorBody{
			Code: CodeUnavailable, Message: err.Error(), Severity: orchestrator.SeverityLow,
		})
	case errors.As(err, &oerr):
		status := http.StatusInternalServerError
		if oerr.Code == orchestrator.CodeInvalidSample {
			status = http.StatusBadRequest
		}
		abortWithError(c, status, errorBody{Code: oerr.Code, Message: oerr.Error(), Severity: oerr.Severity})
	default:
		n := orchestrator.Normalize(err)
		abortWithError(c, http.StatusInternalServerError, errorBody{Code: n.Code, Message: n.Error(), Severity: n.Severity})
	}
}

func (s *Server) live(c *gin.Context) {
	st := s.orch.Status()
	code := http.StatusOK
	if st == orchestrator.StatusError {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": st})
}

// ready runs the component checks. Degraded still serves traffic.
func (s *Server) ready(c *gin.Context) {
	report := s.checker.Report(c.Request.Context())
	code := http.StatusOK
	if report.Status == health.StatusUnhealthy || report.Status == health.StatusUnknown {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

// touchRequest is the wire form of a touch sample. Durations are in
// milliseconds.
type touchRequest struct {
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	Pressure   *float64   `json:"pressure" binding:"required"`
	DurationMs float64    `json:"duration_ms"`
	Area       float64    `json:"area"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	Thermal    *float64   `json:"thermal,omitempty"`
	Pulse      *float64   `json:"pulse,omitempty"`
}

func (r touchRequest) sample() emotion.TouchSample {
	s := emotion.TouchSample{
		X:        r.X,
		Y:        r.Y,
		Pressure: *r.Pressure,
		Duration: time.Duration(r.DurationMs * float64(time.Millisecond)),
		Area:     r.Area,
	}
	if r.Timestamp != nil {
		s.Timestamp = *r.Timestamp
	}
	if r.Thermal != nil || r.Pulse != nil {
		s.Biosignal = &emotion.Biosignal{Thermal: r.Thermal, Pulse: r.Pulse}
	}
	return s
}

func (s *Server) touch(c *gin.Context) {
	var req touchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := s.orch.Process(c.Request.Context(), req.sample())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": s.orch.Status()})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"pipeline": s.orch.Statistics(),
		"learning": s.orch.Profile().Stats(),
	})
}

func (s *Server) disable(c *gin.Context) {
	if err := s.orch.Disable(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": s.orch.Status()})
}

func (s *Server) enable(c *gin.Context) {
	if err := s.orch.Enable(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": s.orch.Status()})
}

func boolQuery(c *gin.Context, key string) (bool, bool) {
	v := c.Query(key)
	if v == "" {
		return false, true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		badRequest(c, "invalid "+key+" parameter: "+v)
		return false, false
	}
	return b, true
}

func (s *Server) exportProfile(c *gin.Context) {
	private, ok := boolQuery(c, "private")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.orch.Profile().ExportProfile(private))
}

func (s *Server) importProfile(c *gin.Context) {
	merge, ok := boolQuery(c, "merge")
	if !ok {
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	profile := s.orch.Profile()
	if err := profile.ImportJSON(raw, merge); err != nil {
		var serr *personalization.SchemaError
		if errors.As(err, &serr) {
			abortWithError(c, http.StatusBadRequest, errorBody{
				Code:       CodeProfileInvalid,
				Message:    "profile document failed validation",
				Severity:   orchestrator.SeverityLow,
				Violations: serr.Violations,
			})
			return
		}
		badRequest(c, err.Error())
		return
	}
	s.persist(c)
	if c.IsAborted() {
		return
	}
	c.JSON(http.StatusOK, profile.ExportProfile(false))
}

func (s *Server) removePattern(c *gin.Context) {
	if _, ok := s.orch.Profile().RemovePattern(c.Param("id")); !ok {
		abortWithError(c, http.StatusNotFound, errorBody{
			Code: CodeNotFound, Message: "pattern not found", Severity: orchestrator.SeverityLow,
		})
		return
	}
	s.persist(c)
	if c.IsAborted() {
		return
	}
	c.Status(http.StatusNoContent)
}

// persist saves the profile after an edit. Stores without a backend are
// memory-only and skip the write.
func (s *Server) persist(c *gin.Context) {
	err := s.orch.Profile().Save(c.Request.Context())
	if err == nil || errors.Is(err, personalization.ErrNoBlobStore) {
		return
	}
	oerr := orchestrator.NewError(orchestrator.CodePersistenceFailure, "profile not saved", err, nil)
	s.orch.ReportError(oerr)
	writeError(c, oerr)
}

func (s *Server) personalizedSettings(c *gin.Context) {
	e, err := emotion.ParseEmotion(c.Param("emotion"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, s.orch.Profile().PersonalizedResonance(e))
}
