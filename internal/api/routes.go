package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"listing-agent/internal/cascade"
	"listing-agent/internal/eval"
	"listing-agent/internal/events"
	"listing-agent/internal/llm"
	"listing-agent/internal/store"
)

// Config defines server dependencies.
type Config struct {
	DBPath           string
	AllowedOrigins   []string
	SilentDB         bool
	LLM              llm.Config
	Model            string
	JudgeModel       string
	VerboseThreshold float64
}

// Server wires HTTP handlers with persistence, the inference client, the
// cascade and the live progress channels.
type Server struct {
	db               *store.Database
	gen              llm.Generator
	registry         *events.Registry
	evalNotifier     *EvaluationNotifier
	allowedOrigins   []string
	model            string
	judgeModel       string
	verboseThreshold float64
	jobMu            sync.Mutex
	activeJob        *evaluationJob
}

// NewServer constructs the API server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("db path required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("model required")
	}
	db, err := store.Open(cfg.DBPath, cfg.SilentDB)
	if err != nil {
		return nil, err
	}

	threshold := cfg.VerboseThreshold
	if threshold <= 0 {
		threshold = cascade.DefaultVerboseThreshold
	}
	if strings.TrimSpace(cfg.JudgeModel) == "" {
		logrus.Info("verbose judge disabled - no judge model configured")
	}

	return &Server{
		db:               db,
		gen:              llm.NewClient(cfg.LLM),
		registry:         events.NewRegistry(),
		evalNotifier:     NewEvaluationNotifier(),
		allowedOrigins:   cfg.AllowedOrigins,
		model:            strings.TrimSpace(cfg.Model),
		judgeModel:       strings.TrimSpace(cfg.JudgeModel),
		verboseThreshold: threshold,
	}, nil
}

// Router configures gin routes.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowCredentials = true
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.allowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsCfg.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	r.GET("/api/healthz", s.handleHealth)
	r.GET("/api/config", s.handleConfig)

	api := r.Group("/api")
	{
		api.GET("/profiles", s.handleListProfiles)
		api.POST("/profiles", s.handleCreateProfile)
		api.GET("/profiles/:id", s.handleGetProfile)
		api.DELETE("/profiles/:id", s.handleDeleteProfile)
		api.POST("/profiles/wizard/questions", s.handleWizardQuestions)
		api.POST("/profiles/wizard/build", s.handleWizardBuild)

		api.POST("/evaluate", s.handleEvaluate)
		api.GET("/evaluate/status", s.handleEvaluateStatus)
		api.DELETE("/evaluate/:runID", s.handleCancelEvaluate)
		api.GET("/evaluate/stream", s.handleEvaluateStream)
		api.GET("/runs/:id", s.handleGetRun)
		api.GET("/runs/:id/stream", s.handleRunStream)

		api.GET("/ads", s.handleListAds)
		api.GET("/ads/:id", s.handleGetAd)
		api.GET("/export.csv", s.handleExportCSV)
		api.GET("/export.json", s.handleExportJSON)
	}

	return r, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"model":             s.model,
		"judge_model":       s.judgeModel,
		"verbose_threshold": s.verboseThreshold,
	})
}

func (s *Server) handleListProfiles(c *gin.Context) {
	rows, err := s.db.ListProfiles()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]ProfileDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, ProfileFromModel(row))
	}
	c.JSON(http.StatusOK, gin.H{"items": dtos})
}

func (s *Server) handleCreateProfile(c *gin.Context) {
	var req CreateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("name is required"))
		return
	}

	model := store.Profile{
		Name:    strings.TrimSpace(req.Name),
		Domain:  strings.TrimSpace(req.Domain),
		Notes:   req.Notes,
		CfgJSON: string(req.Cfg),
	}
	model.SetQueries(req.Queries)
	model.SetHardYes(req.HardYes)
	model.SetHardNo(req.HardNo)

	if err := s.db.CreateProfile(&model); err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusCreated, ProfileFromModel(model))
}

func (s *Server) handleGetProfile(c *gin.Context) {
	id, err := parseUintParam(c.Param("id"))
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	row, err := s.db.GetProfile(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("profile %d not found", id))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusOK, ProfileFromModel(*row))
}

func (s *Server) handleDeleteProfile(c *gin.Context) {
	id, err := parseUintParam(c.Param("id"))
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	if err := s.db.DeleteProfile(id); err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) handleWizardQuestions(c *gin.Context) {
	var req WizardQuestionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Goal) == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("goal is required"))
		return
	}
	model := firstNonEmpty(req.Model, s.model)
	questions := eval.WizardQuestions(c.Request.Context(), s.gen, model, req.Goal)
	c.JSON(http.StatusOK, gin.H{"questions": questions})
}

func (s *Server) handleWizardBuild(c *gin.Context) {
	var req WizardBuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Goal) == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("goal is required"))
		return
	}
	model := firstNonEmpty(req.Model, s.model)
	built := eval.WizardBuildProfile(c.Request.Context(), s.gen, model, req.Goal, req.Answers)

	cfgJSON := "{}"
	if payload, err := json.Marshal(built.Cfg); err == nil {
		cfgJSON = string(payload)
	}
	row := store.Profile{
		Name:    built.Name,
		Domain:  strings.TrimSpace(req.Domain),
		Notes:   built.Notes,
		CfgJSON: cfgJSON,
	}
	row.SetQueries(built.Queries)
	row.SetHardYes(built.HardYes)
	row.SetHardNo(built.HardNo)

	if err := s.db.CreateProfile(&row); err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusCreated, ProfileFromModel(row))
}

func (s *Server) handleGetRun(c *gin.Context) {
	runID := strings.TrimSpace(c.Param("id"))
	run, err := s.db.GetRun(runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("run %s not found", runID))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusOK, run)
}

// handleRunStream replays run events to the caller as server-sent events,
// terminating the stream once the done event goes out. Events published
// before the subscriber attached may be gone; gaps are expected.
func (s *Server) handleRunStream(c *gin.Context) {
	runID := strings.TrimSpace(c.Param("id"))
	ch, ok := s.registry.Subscribe(runID)
	if !ok {
		s.renderError(c, http.StatusNotFound, fmt.Errorf("run %s not found or finished", runID))
		return
	}

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		ev, open := <-ch
		if !open {
			return false
		}
		c.SSEvent(ev.Type, ev)
		return ev.Type != events.TypeDone
	})
}

func (s *Server) handleEvaluateStream(c *gin.Context) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout:  5 * time.Second,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("upgrade websocket")
		return
	}

	client := s.evalNotifier.Register(conn)
	logrus.WithField("remote", conn.RemoteAddr().String()).Info("evaluation websocket connected")
	defer s.evalNotifier.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithField("remote", conn.RemoteAddr().String()).Info("evaluation websocket closed")
			} else {
				logrus.WithError(err).Warn("evaluation websocket unexpected close")
			}
			break
		}
	}
}

func (s *Server) handleListAds(c *gin.Context) {
	opts := store.AdQuery{
		RunID:        strings.TrimSpace(c.Query("run_id")),
		IncludeDrops: strings.EqualFold(c.Query("include_drops"), "true"),
	}
	if value := strings.TrimSpace(c.Query("min_score")); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid min_score: %s", value))
			return
		}
		opts.MinScore = &parsed
	}
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 0 {
		page = 0
	}
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))
	if pageSize <= 0 {
		pageSize = 200
	}
	opts.Offset = page * pageSize
	opts.Limit = pageSize

	rows, total, err := s.db.ListAds(opts)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]AdDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, AdFromModel(row))
	}
	c.JSON(http.StatusOK, AdsResponse{Items: dtos, Total: total})
}

func (s *Server) handleGetAd(c *gin.Context) {
	id, err := parseUintParam(c.Param("id"))
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	ad, err := s.db.GetAd(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("ad %d not found", id))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusOK, AdFromModel(*ad))
}

func (s *Server) handleExportCSV(c *gin.Context) {
	rows, _, err := s.db.ListAds(store.AdQuery{IncludeDrops: true, Limit: -1})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=listing-agent-export.csv")
	c.Header("Content-Type", "text/csv")

	writer := csv.NewWriter(c.Writer)
	headers := []string{"url", "title", "price_ron", "distance_km", "intent", "score", "verdict", "likely_fix", "reasoning", "soft_dropped", "drop_reason", "judge_error"}
	if err := writer.Write(headers); err != nil {
		return
	}
	for _, row := range rows {
		dto := AdFromModel(row)
		line := []string{
			dto.URL,
			dto.Title,
			formatIntPtr(dto.PriceRON),
			formatFloatPtr(dto.DistanceKm),
			dto.Intent,
			fmt.Sprintf("%.2f", dto.Score),
			dto.Verdict,
			dto.LikelyFix,
			dto.Reasoning,
			strconv.FormatBool(dto.SoftDropped),
			dto.DropReason,
			dto.JudgeError,
		}
		if err := writer.Write(line); err != nil {
			return
		}
	}
	writer.Flush()
}

func (s *Server) handleExportJSON(c *gin.Context) {
	rows, _, err := s.db.ListAds(store.AdQuery{IncludeDrops: true, Limit: -1})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]AdDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, AdFromModel(row))
	}
	c.Header("Content-Disposition", "attachment; filename=listing-agent-export.json")
	c.JSON(http.StatusOK, dtos)
}

func (s *Server) renderError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseUintParam(value string) (uint, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errors.New("identifier is required")
	}
	parsed, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid identifier: %w", err)
	}
	if parsed == 0 {
		return 0, errors.New("identifier must be greater than zero")
	}
	return uint(parsed), nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func formatIntPtr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.1f", *v)
}
