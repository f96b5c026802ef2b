package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallhouse123/go-analytics/service/analytics"
	"go.uber.org/zap"
)

type eventRequest struct {
	Type    analytics.EventType `json:"type" binding:"required"`
	Data    json.RawMessage     `json:"data"`
	PageURL string              `json:"pageUrl"`
}

type batchResponse struct {
	Accepted int           `json:"accepted"`
	Rejected int           `json:"rejected"`
	Errors   []batchReject `json:"errors,omitempty"`
}

type batchReject struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

func errorBody(msg string) gin.H {
	return gin.H{"error": msg}
}

func (s *Server) handleEvent(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	data, err := analytics.DecodeEventData(req.Type, req.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	s.analytics.Track(withPage(s.sessionContext(c), c, req.PageURL), data)
	c.JSON(http.StatusAccepted, batchResponse{Accepted: 1})
}

func (s *Server) handleBatchEvents(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var reqs []eventRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&reqs); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	if len(reqs) > maxBatchSize {
		c.JSON(http.StatusRequestEntityTooLarge, errorBody(fmt.Sprintf("batch exceeds %d events", maxBatchSize)))
		return
	}

	ctx := s.sessionContext(c)
	resp := batchResponse{}
	for i, req := range reqs {
		data, err := analytics.DecodeEventData(req.Type, req.Data)
		if err != nil {
			resp.Rejected++
			resp.Errors = append(resp.Errors, batchReject{Index: i, Error: err.Error()})
			continue
		}
		s.analytics.Track(withPage(ctx, c, req.PageURL), data)
		resp.Accepted++
	}

	c.JSON(http.StatusAccepted, resp)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"pending":   s.analytics.Len(),
		"sessionId": s.analytics.SessionID(),
	})
}

// sessionContext scopes the session to the X-Analytics-Tab header when present.
func (s *Server) sessionContext(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	tab := c.GetHeader(TabHeader)
	if tab == "" || s.session == nil {
		return ctx
	}
	sessionID, err := s.session.Resolve(ctx, "tab:"+tab)
	if err != nil {
		s.logger.Warn("failed to resolve tab session, using client session",
			zap.String("tab", tab),
			zap.Error(err),
		)
		return ctx
	}
	return analytics.WithSession(ctx, sessionID)
}

// withPage stamps the page URL, falling back to the Referer, and the user agent.
func withPage(ctx context.Context, c *gin.Context, pageURL string) context.Context {
	if pageURL == "" {
		pageURL = c.Request.Referer()
	}
	return analytics.WithPage(ctx, pageURL, c.Request.UserAgent())
}
