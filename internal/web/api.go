package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SyedDaiam9101/predict-service/internal/catalog"
	"github.com/SyedDaiam9101/predict-service/internal/logging"
	"github.com/SyedDaiam9101/predict-service/internal/schema"
)

type appSummary struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Task        string `json:"task"`
	Available   bool   `json:"available"`
}

type appDetail struct {
	*catalog.App
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// predictRequest is the body of the predict and metrics endpoints.
type predictRequest struct {
	Inputs schema.Selections `json:"inputs"`
}

func (s *Server) listApps(c *gin.Context) {
	apps := s.svc.Apps()
	out := make([]appSummary, 0, len(apps))
	for _, st := range apps {
		out = append(out, appSummary{
			Name:        st.App.Name,
			Title:       st.App.Title,
			Description: st.App.Description,
			Task:        string(st.App.Task),
			Available:   st.Available,
		})
	}
	c.JSON(http.StatusOK, gin.H{"apps": out})
}

func (s *Server) getApp(c *gin.Context) {
	app, err := s.svc.App(c.Param("app"))
	if err != nil {
		s.apiError(c, err)
		return
	}
	detail := appDetail{App: app, Available: true}
	if err := s.svc.Available(app.Name); err != nil {
		detail.Available = false
		detail.Error = msgUnavailable
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) predict(c *gin.Context) {
	var req predictRequest
	if !s.bind(c, &req) {
		return
	}
	result, err := s.svc.Predict(c.Request.Context(), c.Param("app"), req.Inputs)
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) metrics(c *gin.Context) {
	var req predictRequest
	if !s.bind(c, &req) {
		return
	}
	values, err := s.svc.Metrics(c.Param("app"), req.Inputs)
	if err != nil {
		s.apiError(c, err)
		return
	}
	if values == nil {
		values = []catalog.MetricValue{}
	}
	c.JSON(http.StatusOK, gin.H{"metrics": values})
}

func (s *Server) bind(c *gin.Context, req *predictRequest) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) apiError(c *gin.Context, err error) {
	code, msg := httpError(err)
	if code >= http.StatusInternalServerError {
		logging.For(c.Request.Context(), s.logger).Error("prediction error",
			zap.String("app", c.Param("app")),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(code, newErrorBody(err, msg))
}
