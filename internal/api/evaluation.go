package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"listing-agent/internal/cascade"
	"listing-agent/internal/events"
	"listing-agent/internal/store"
)

const evaluationThrottle = 500 * time.Millisecond

// evaluationJob tracks the state of a running evaluation. Its id doubles as
// the run id used by the event registry and the persisted run row.
type evaluationJob struct {
	id        string
	cancel    context.CancelFunc
	startedAt time.Time
	total     int
	profileID uint

	mu          sync.Mutex
	state       string
	message     string
	processed   int
	kept        int
	softDropped int
	hardDropped int
	lastAd      *AdDTO
}

func (j *evaluationJob) snapshot() EvaluateStatusResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	return EvaluateStatusResponse{
		Running:   j.state == "running",
		RunID:     j.id,
		ProfileID: j.profileID,
		State:     j.state,
		Message:   j.message,
		Processed: j.processed,
		Total:     j.total,
		LastAd:    j.lastAd,
	}
}

type listingResult struct {
	Listing  ListingDTO
	Outcome  cascade.Result
	Duration time.Duration
	Err      error
}

func (s *Server) handleEvaluate(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	if len(req.Listings) == 0 {
		s.renderError(c, http.StatusBadRequest, errors.New("listings are required"))
		return
	}
	row, err := s.db.GetProfile(req.ProfileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("profile %d not found", req.ProfileID))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}

	s.jobMu.Lock()
	job, err := s.startEvaluation(req, *row)
	s.jobMu.Unlock()
	if err != nil {
		s.renderError(c, http.StatusConflict, err)
		return
	}

	c.JSON(http.StatusAccepted, StartEvaluationResponse{
		RunID:     job.id,
		ProfileID: job.profileID,
		Total:     job.total,
		StartedAt: job.startedAt,
	})
}

func (s *Server) handleEvaluateStatus(c *gin.Context) {
	s.jobMu.Lock()
	job := s.activeJob
	s.jobMu.Unlock()

	if job != nil {
		c.JSON(http.StatusOK, job.snapshot())
		return
	}
	if status := s.evalNotifier.LastStatus(); status != nil {
		c.JSON(http.StatusOK, EvaluateStatusResponse{
			Running:   false,
			RunID:     status.RunID,
			State:     status.Type,
			Message:   status.Message,
			Processed: status.Processed,
			Total:     status.Total,
		})
		return
	}
	c.JSON(http.StatusOK, EvaluateStatusResponse{Running: false, State: "idle"})
}

func (s *Server) handleCancelEvaluate(c *gin.Context) {
	runID := strings.TrimSpace(c.Param("runID"))

	s.jobMu.Lock()
	job := s.activeJob
	s.jobMu.Unlock()

	if job == nil || job.id != runID {
		s.renderError(c, http.StatusNotFound, fmt.Errorf("run %s is not active", runID))
		return
	}
	job.cancel()
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling", "run_id": runID})
}

// startEvaluation launches a new asynchronous evaluation run. The caller must
// hold s.jobMu prior to invoking this function.
func (s *Server) startEvaluation(req EvaluateRequest, prof store.Profile) (*evaluationJob, error) {
	if s.activeJob != nil {
		return nil, errors.New("evaluation already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &evaluationJob{
		id:        s.registry.CreateRun(),
		cancel:    cancel,
		startedAt: time.Now().UTC(),
		total:     len(req.Listings),
		profileID: prof.ID,
		state:     "running",
	}

	if err := s.db.SaveRun(&store.Run{
		RunID:     job.id,
		ProfileID: prof.ID,
		Status:    "running",
		Total:     job.total,
	}); err != nil {
		s.registry.CloseRun(job.id)
		cancel()
		return nil, fmt.Errorf("save run: %w", err)
	}

	s.activeJob = job
	go s.runEvaluation(ctx, job, req, prof)
	return job, nil
}

func (s *Server) runEvaluation(ctx context.Context, job *evaluationJob, req EvaluateRequest, prof store.Profile) {
	finishStatus := "completed"
	var finishErr error

	defer func() {
		job.cancel()
		s.registry.CloseRun(job.id)

		job.mu.Lock()
		job.state = finishStatus
		if finishErr != nil {
			job.message = finishErr.Error()
		}
		run := store.Run{
			RunID:       job.id,
			ProfileID:   job.profileID,
			Status:      finishStatus,
			Message:     job.message,
			Processed:   job.processed,
			Kept:        job.kept,
			SoftDropped: job.softDropped,
			HardDropped: job.hardDropped,
			Total:       job.total,
		}
		job.mu.Unlock()

		if err := s.db.SaveRun(&run); err != nil {
			logrus.WithError(err).WithField("run", job.id).Warn("persist run status")
		}
		s.jobMu.Lock()
		s.activeJob = nil
		s.jobMu.Unlock()
	}()

	model := firstNonEmpty(req.Model, s.model)
	judgeModel := strings.TrimSpace(req.JudgeModel)
	if judgeModel == "" {
		judgeModel = s.judgeModel
	}
	decision := DecisionProfile(prof)
	runner := cascade.NewRunner(s.gen, model, judgeModel, s.verboseThreshold, s.registry)

	logrus.WithFields(logrus.Fields{
		"run":         job.id,
		"profile":     prof.Name,
		"domain":      decision.Domain,
		"model":       model,
		"judge_model": judgeModel,
		"total":       job.total,
	}).Info("evaluation run started")

	s.evalNotifier.Broadcast(EvaluationEvent{
		Type:    "started",
		RunID:   job.id,
		Total:   job.total,
		Message: fmt.Sprintf("evaluating %d listings against %s", job.total, prof.Name),
	})

	workerCount := determineWorkerCount()
	if workerCount > job.total {
		workerCount = job.total
	}
	logrus.WithFields(logrus.Fields{"run": job.id, "workers": workerCount}).Info("evaluation worker pool configured")

	taskCh := make(chan ListingDTO, workerCount*4)
	resultCh := make(chan listingResult, workerCount*4)

	var workerWG sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			for task := range taskCh {
				select {
				case <-ctx.Done():
					return
				default:
				}
				start := time.Now()
				outcome, err := runner.Evaluate(ctx, job.id, task.ToListing(), decision)
				res := listingResult{
					Listing:  task,
					Outcome:  outcome,
					Duration: time.Since(start),
					Err:      err,
				}
				select {
				case resultCh <- res:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		workerWG.Wait()
		close(resultCh)
	}()

	go func() {
		defer close(taskCh)
		for _, listing := range req.Listings {
			if strings.TrimSpace(listing.URL) == "" {
				continue
			}
			select {
			case taskCh <- listing:
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		lastEmit     time.Time
		hasPending   bool
		pendingEvent EvaluationEvent
	)
	flush := func(force bool) {
		if !hasPending {
			return
		}
		if !force && !lastEmit.IsZero() && time.Since(lastEmit) < evaluationThrottle {
			return
		}
		s.evalNotifier.Broadcast(pendingEvent)
		lastEmit = time.Now()
		hasPending = false
	}

	activeResultCh := resultCh
	for activeResultCh != nil {
		select {
		case <-ctx.Done():
			flush(true)
			finishStatus = "cancelled"
			s.evalNotifier.Broadcast(EvaluationEvent{
				Type:      "cancelled",
				RunID:     job.id,
				Total:     job.total,
				Processed: job.processed,
				Message:   "evaluation cancelled",
			})
			logrus.WithField("run", job.id).Warn("evaluation run cancelled")
			return
		case res, ok := <-activeResultCh:
			if !ok {
				activeResultCh = nil
				continue
			}
			if res.Err != nil {
				// transport failure on one listing; the fallback judgment is
				// already persisted below, the run keeps going
				logrus.WithError(res.Err).WithField("url", res.Listing.URL).Warn("listing evaluated with transport failure")
			}

			var dto *AdDTO
			if res.Outcome.HardDrop() {
				job.mu.Lock()
				job.processed++
				job.hardDropped++
				job.mu.Unlock()
				logrus.WithFields(logrus.Fields{
					"run":    job.id,
					"url":    res.Listing.URL,
					"reason": res.Outcome.DropReason,
				}).Debug("listing hard dropped")
			} else {
				ad := adFromResult(job.id, job.profileID, res.Listing, res.Outcome)
				if err := s.db.UpsertAd(&ad); err != nil {
					flush(true)
					finishStatus = "failed"
					finishErr = fmt.Errorf("save ad: %w", err)
					s.evalNotifier.Broadcast(EvaluationEvent{
						Type:    "error",
						RunID:   job.id,
						Message: finishErr.Error(),
					})
					logrus.WithError(err).Error("save ad")
					job.cancel()
					return
				}
				converted := AdFromModel(ad)
				dto = &converted

				job.mu.Lock()
				job.processed++
				if res.Outcome.Keep {
					job.kept++
				} else {
					job.softDropped++
				}
				job.lastAd = dto
				job.mu.Unlock()
			}

			job.mu.Lock()
			pendingEvent = EvaluationEvent{
				Type:        "evaluation",
				RunID:       job.id,
				Total:       job.total,
				Processed:   job.processed,
				Kept:        job.kept,
				HardDropped: job.hardDropped,
				Ad:          dto,
			}
			job.mu.Unlock()
			hasPending = true

			logrus.WithFields(logrus.Fields{
				"run":      job.id,
				"url":      res.Listing.URL,
				"score":    res.Outcome.Minimal.Score,
				"verdict":  res.Outcome.Minimal.Verdict,
				"keep":     res.Outcome.Keep,
				"total_ms": res.Duration.Milliseconds(),
			}).Debug("listing evaluated")
			flush(false)
		}
	}

	flush(true)

	duration := time.Since(job.startedAt).Round(time.Millisecond)
	job.mu.Lock()
	processed, kept, hardDropped := job.processed, job.kept, job.hardDropped
	job.message = fmt.Sprintf("evaluation finished in %s", duration)
	message := job.message
	job.mu.Unlock()

	s.evalNotifier.Broadcast(EvaluationEvent{
		Type:        "complete",
		RunID:       job.id,
		Total:       job.total,
		Processed:   processed,
		Kept:        kept,
		HardDropped: hardDropped,
		Message:     message,
	})
	s.registry.Publish(job.id, events.TypeKV, map[string]any{"key": "processed", "value": processed})
	logrus.WithFields(logrus.Fields{
		"run":       job.id,
		"processed": processed,
		"kept":      kept,
		"duration":  duration,
	}).Info("evaluation run completed")
}

func determineWorkerCount() int {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	if workers > 12 {
		workers = 12
	}
	return workers
}

// adFromResult builds the persisted row for one evaluated listing. Hard drops
// never reach this function.
func adFromResult(runID string, profileID uint, l ListingDTO, res cascade.Result) store.Ad {
	minimal := res.Minimal
	ad := store.Ad{
		URL:          strings.TrimSpace(l.URL),
		RunID:        runID,
		ProfileID:    profileID,
		Title:        strings.TrimSpace(l.Title),
		PriceRON:     l.PriceRON,
		LocationText: l.LocationText,
		Lat:          l.Lat,
		Lon:          l.Lon,
		ImageURL:     l.ImageURL,
		Description:  l.Description,
		ScrapedAt:    time.Now().UTC(),
		DistanceKm:   l.DistanceKm,

		Intent:             string(res.Intent),
		Score:              minimal.Score,
		Verdict:            minimal.Verdict,
		LikelyFix:          minimal.LikelyFix,
		RepairEstimateLow:  minimal.RepairEstimateLow,
		RepairEstimateHigh: minimal.RepairEstimateHigh,
		PartsSuspected:     minimal.PartsSuspected,
		PriceHint:          minimal.PriceHint,
		ScamRisk:           minimal.ScamRisk,
		Reasoning:          minimal.ReasoningShort,
		Bonus:              res.Bonus,

		SoftDropped: res.SoftDrop,
		DropReason:  res.DropReason,
		ParseOK:     minimal.Parsed,
		JudgeError:  minimal.JudgeError,
	}

	if v := res.Verbose; v != nil {
		confidence := v.Confidence
		ad.Confidence = &confidence
		ad.SetSignalsPositive(v.SignalsPositive)
		ad.SetSignalsNegative(v.SignalsNegative)
		ad.SetQuickTests(v.QuickTests)
		if len(v.RepairItems) > 0 {
			if payload, err := json.Marshal(v.RepairItems); err == nil {
				ad.RepairItemsJSON = string(payload)
			}
		}
		resaleLow, resaleHigh := v.ResaleValueLow, v.ResaleValueHigh
		profitLow, profitHigh := v.ProfitLow, v.ProfitHigh
		ad.ResaleValueLow = &resaleLow
		ad.ResaleValueHigh = &resaleHigh
		ad.ProfitLow = &profitLow
		ad.ProfitHigh = &profitHigh
	}
	return ad
}
