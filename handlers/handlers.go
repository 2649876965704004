package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"visit-summary-service/events"
	"visit-summary-service/metrics"
	"visit-summary-service/middleware"
	"visit-summary-service/models"
	"visit-summary-service/openai"
	"visit-summary-service/prompt"
	"visit-summary-service/utils"
	"visit-summary-service/version"
	"visit-summary-service/visit"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

const ServiceName = "visit-summary-service"

// Completer opens a streaming completion for a prompt pair.
type Completer interface {
	StreamChatCompletion(ctx context.Context, pair prompt.Pair) (*openai.Stream, error)
}

type VisitHandler struct {
	completer Completer
}

func NewVisitHandler(completer Completer) *VisitHandler {
	return &VisitHandler{
		completer: completer,
	}
}

// HealthCheck returns service health status
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:  "healthy",
		Service: ServiceName,
	})
}

// Version returns build information
func Version(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get(ServiceName))
}

// Summarize validates a visit, asks the model for a summary and streams it
// back as server-sent events.
func (h *VisitHandler) Summarize(c *gin.Context) {
	start := time.Now()
	fields := log.Fields{
		"request_id": c.GetString(middleware.ContextRequestID),
		"user_id":    middleware.GetUserID(c),
	}

	var req models.VisitRequest
	err := c.ShouldBindJSON(&req)
	if err != nil && !isTypeError(err) {
		log.WithFields(fields).Warnf("visit.summarize.bad_body: %v", err)
		observe(metrics.OutcomeInvalid, start)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body"})
		return
	}

	var record visit.Record
	if err != nil {
		err = typeError(err)
	} else {
		record, err = visit.Validate(req)
	}
	if err != nil {
		var validationErr *visit.ValidationError
		if !errors.As(err, &validationErr) {
			validationErr = &visit.ValidationError{}
		}
		log.WithFields(fields).WithFields(log.Fields{
			"field":  validationErr.Field,
			"reason": validationErr.Reason,
		}).Warn("visit.summarize.invalid")
		observe(metrics.OutcomeInvalid, start)
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Error:  err.Error(),
			Field:  validationErr.Field,
			Reason: validationErr.Reason,
		})
		return
	}

	log.WithFields(fields).WithField("notes_len", len(record.Notes)).Info("visit.summarize.request")

	ctx := c.Request.Context()
	opened := time.Now()

	stream, err := h.completer.StreamChatCompletion(ctx, prompt.Compose(record))
	if err != nil {
		h.upstreamFailed(c, fields, err, start)
		return
	}
	defer stream.Close()

	// Headers are committed only once the first fragment has arrived or the
	// upstream finished cleanly without output.
	first, ok := <-stream.Fragments()
	if !ok {
		if err := stream.Err(); err != nil {
			if ctx.Err() != nil {
				log.WithFields(fields).Info("visit.summarize.client_gone")
				observe(metrics.OutcomeClientGone, start)
				return
			}
			h.upstreamFailed(c, fields, err, start)
			return
		}
	} else {
		metrics.TimeToFirstFragmentSeconds.Observe(time.Since(opened).Seconds())
	}

	utils.SetStreamHeaders(c.Writer)
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	lines := 0
	emit := func(line events.EventLine) error {
		if err := utils.WriteEvent(c.Writer, line); err != nil {
			return err
		}
		lines++
		metrics.EventLinesTotal.Inc()
		return nil
	}

	var writeErr error
	if ok {
		for _, line := range events.Rechunk(first) {
			if writeErr = emit(line); writeErr != nil {
				break
			}
		}
	}
	if writeErr == nil {
		writeErr = events.Pipe(ctx, stream.Fragments(), emit)
	}

	fields["lines"] = lines
	fields["duration"] = time.Since(start).String()

	switch {
	case writeErr != nil || ctx.Err() != nil:
		log.WithFields(fields).Infof("visit.summarize.client_gone: %v", firstErr(writeErr, ctx.Err()))
		observe(metrics.OutcomeClientGone, start)
	case stream.Err() != nil:
		log.WithFields(fields).Errorf("visit.summarize.stream_truncated: %v", stream.Err())
		observe(metrics.OutcomeTruncated, start)
	default:
		log.WithFields(fields).Info("visit.summarize.stream_end")
		observe(metrics.OutcomeCompleted, start)
	}
}

func (h *VisitHandler) upstreamFailed(c *gin.Context, fields log.Fields, err error, start time.Time) {
	log.WithFields(fields).Errorf("visit.summarize.upstream_failed: %v", err)
	observe(metrics.OutcomeUpstreamFailed, start)
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error: "Error generating summary: " + err.Error(),
	})
}

func isTypeError(err error) bool {
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &typeErr) && typeErr.Field != ""
}

// typeError reports a well-formed body whose field holds a non-string value.
func typeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	errors.As(err, &typeErr)
	return &visit.ValidationError{Field: typeErr.Field, Reason: visit.ReasonWrongType}
}

func observe(outcome string, start time.Time) {
	metrics.RequestsTotal.WithLabelValues(outcome).Inc()
	metrics.StreamDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
