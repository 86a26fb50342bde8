package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SyedDaiam9101/predict-service/internal/catalog"
	"github.com/SyedDaiam9101/predict-service/internal/logging"
	"github.com/SyedDaiam9101/predict-service/internal/predictor"
	"github.com/SyedDaiam9101/predict-service/internal/schema"
)

const indexTitle = "Predictors"

// fieldView is one form control. Categorical fields carry Options.
type fieldView struct {
	Name    string
	Label   string
	Value   string
	Min     string
	Max     string
	Step    string
	Options []string
}

type pageData struct {
	Title       string
	App         *catalog.App
	Fields      []fieldView
	Result      *predictor.Result
	Metrics     []catalog.MetricValue
	Error       string
	Unavailable string
}

func (s *Server) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Title": indexTitle,
		"Apps":  s.svc.Apps(),
	})
}

func (s *Server) showForm(c *gin.Context) {
	app, ok := s.lookup(c)
	if !ok {
		return
	}
	c.HTML(http.StatusOK, "app.html", s.page(c, app, nil, nil))
}

// submitForm runs a prediction and re-renders the form with the result or an
// error block, keeping the submitted values so the page stays usable.
func (s *Server) submitForm(c *gin.Context) {
	app, ok := s.lookup(c)
	if !ok {
		return
	}

	values := make(map[string]string)
	sel := make(schema.Selections)
	for _, f := range app.Schema.Fields {
		v, ok := c.GetPostForm(f.Name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		values[f.Name] = v
		sel[f.Name] = v
	}

	data := s.page(c, app, values, sel)
	result, err := s.svc.Predict(c.Request.Context(), app.Name, sel)
	if err != nil {
		code, msg := httpError(err)
		if code >= http.StatusInternalServerError {
			logging.For(c.Request.Context(), s.logger).Error("prediction error",
				zap.String("app", app.Name),
				zap.Error(err),
			)
		}
		if code == http.StatusServiceUnavailable {
			data.Unavailable = msg
		} else {
			data.Error = msg
		}
		_ = c.Error(err)
		c.HTML(code, "app.html", data)
		return
	}

	data.Result = result
	c.HTML(http.StatusOK, "app.html", data)
}

func (s *Server) lookup(c *gin.Context) (*catalog.App, bool) {
	app, err := s.svc.App(c.Param("app"))
	if err != nil {
		c.HTML(http.StatusNotFound, "index.html", gin.H{
			"Title": indexTitle,
			"Apps":  s.svc.Apps(),
		})
		return nil, false
	}
	return app, true
}

// page builds the form for app. Derived metrics are computed from the current
// values without the model; values that do not validate leave them out.
func (s *Server) page(c *gin.Context, app *catalog.App, values map[string]string, sel schema.Selections) pageData {
	data := pageData{
		Title:  app.Title,
		App:    app,
		Fields: fieldViews(app, values),
	}
	if err := s.svc.Available(app.Name); err != nil {
		data.Unavailable = msgUnavailable
	}
	metrics, err := s.svc.Metrics(app.Name, sel)
	if err != nil {
		logging.For(c.Request.Context(), s.logger).Debug("derived metrics skipped",
			zap.String("app", app.Name),
			zap.Error(err),
		)
	}
	data.Metrics = metrics
	return data
}

func fieldViews(app *catalog.App, values map[string]string) []fieldView {
	views := make([]fieldView, 0, len(app.Schema.Fields))
	for i := range app.Schema.Fields {
		f := &app.Schema.Fields[i]
		v := fieldView{Name: f.Name, Label: f.Label}
		if f.Categorical() {
			v.Options = f.Labels
			v.Value = f.DefaultChoice()
		} else {
			v.Value = formatFloat(f.DefaultValue())
			if f.Min != nil {
				v.Min = formatFloat(*f.Min)
			}
			if f.Max != nil {
				v.Max = formatFloat(*f.Max)
			}
			if f.Step > 0 {
				v.Step = formatFloat(f.Step)
			}
		}
		if submitted, ok := values[f.Name]; ok {
			v.Value = strings.TrimSpace(submitted)
		}
		views = append(views, v)
	}
	return views
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
