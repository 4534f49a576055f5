// Package api exposes the quiz flow over HTTP and streams domain events to
// WebSocket clients.
package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/pdfquiz/internal/app"
	"github.com/victornm/pdfquiz/internal/domain"
	"github.com/victornm/pdfquiz/internal/errors"
	"github.com/victornm/pdfquiz/internal/event"
	"github.com/victornm/pdfquiz/internal/session"
)

// MaxUploadSize bounds the accepted PDF size.
const MaxUploadSize = 50 << 20

type Config struct {
	Router   gin.IRouter
	EventBus *event.Bus
	App      *app.App
}

type API struct {
	app      *app.App
	notifier *Notifier
}

func New(c Config) *API {
	a := &API{
		app:      c.App,
		notifier: NewNotifier(),
	}

	r := c.Router.Group("/api")
	r.GET("/state", a.getState)
	r.DELETE("/messages", a.dismissMessages)
	r.POST("/upload", a.upload)
	r.POST("/reset", a.reset)
	r.GET("/ws", a.notifier.Serve)

	lib := r.Group("/library")
	lib.GET("", a.listLibrary)
	lib.POST("/:id/load", a.loadSaved)
	lib.DELETE("/:id", a.deleteSaved)

	quiz := r.Group("/quiz")
	quiz.POST("/start", a.start)
	quiz.GET("", a.quizState)
	quiz.POST("/select", a.selectOption)
	quiz.POST("/flag", a.toggleFlag)
	quiz.POST("/goto", a.goTo)
	quiz.POST("/next", a.next)
	quiz.POST("/previous", a.previous)
	quiz.POST("/restart", a.restart)
	quiz.POST("/redo-mistakes", a.redoMistakesInSession)
	quiz.POST("/finish", a.finish)

	res := r.Group("/result")
	res.GET("", a.result)
	res.POST("/retake", a.retake)
	res.POST("/redo-mistakes", a.redoMistakes)
	res.POST("/redo-flagged", a.redoFlagged)
	res.POST("/save-flagged", a.saveFlagged)

	if c.EventBus != nil {
		for _, name := range []string{
			domain.EventNameQuizExtracted,
			domain.EventNameSessionStarted,
			domain.EventNameSessionAdvanced,
			domain.EventNameSessionFinished,
			domain.EventNameLibraryChanged,
		} {
			c.EventBus.Subscribe(name, a.notifier.Notify)
		}
	}

	return a
}

// Notifier returns the WebSocket fan-out used by the API.
func (a *API) Notifier() *Notifier {
	return a.notifier
}

func (a *API) getState(c *gin.Context) {
	c.JSON(http.StatusOK, a.app.State())
}

func (a *API) dismissMessages(c *gin.Context) {
	a.app.DismissMessages()
	c.JSON(http.StatusOK, a.app.State())
}

func (a *API) upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		renderError(c, errors.InvalidArgument("missing file: %v", err))
		return
	}
	if fh.Size > MaxUploadSize {
		renderError(c, errors.InvalidArgument("file is larger than %d MB", MaxUploadSize>>20))
		return
	}

	f, err := fh.Open()
	if err != nil {
		renderError(c, errors.InvalidArgument("open file: %v", err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxUploadSize))
	if err != nil {
		renderError(c, errors.InvalidArgument("read file: %v", err))
		return
	}

	if err := a.app.Upload(c.Request.Context(), fh.Filename, data); err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, a.app.State())
}

func (a *API) reset(c *gin.Context) {
	a.app.Reset()
	c.JSON(http.StatusOK, a.app.State())
}

func (a *API) listLibrary(c *gin.Context) {
	list, err := a.app.Library(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"quizzes": list})
}

func (a *API) loadSaved(c *gin.Context) {
	if err := a.app.LoadSaved(c.Request.Context(), c.Param("id")); err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, a.app.State())
}

func (a *API) deleteSaved(c *gin.Context) {
	if err := a.app.DeleteSaved(c.Request.Context(), c.Param("id")); err != nil {
		renderError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) start(c *gin.Context) {
	settings := domain.DefaultSettings()
	if err := bindOptionalJSON(c, &settings); err != nil {
		renderError(c, err)
		return
	}

	s, err := a.app.Start(c.Request.Context(), settings)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, s.State())
}

func (a *API) quizState(c *gin.Context) {
	a.withSession(c, func(s *session.Session) (any, error) {
		return s.State(), nil
	})
}

type (
	SelectRequest struct {
		Index *int `json:"index" binding:"required"`
	}

	FlagRequest struct {
		ID string `json:"id" binding:"required"`
	}

	GoToRequest struct {
		Index *int `json:"index" binding:"required"`
	}

	// ChangeResponse reports whether an operation changed anything along
	// with the resulting session state.
	ChangeResponse struct {
		Changed bool          `json:"changed"`
		State   session.State `json:"state"`
	}
)

func (a *API) selectOption(c *gin.Context) {
	var req SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.InvalidArgument("%v", err))
		return
	}

	a.withSession(c, func(s *session.Session) (any, error) {
		changed, err := s.SelectOption(*req.Index)
		if err != nil {
			return nil, err
		}
		return ChangeResponse{Changed: changed, State: s.State()}, nil
	})
}

func (a *API) toggleFlag(c *gin.Context) {
	var req FlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.InvalidArgument("%v", err))
		return
	}

	a.withSession(c, func(s *session.Session) (any, error) {
		flagged, err := s.ToggleFlag(req.ID)
		if err != nil {
			return nil, err
		}
		return ChangeResponse{Changed: flagged, State: s.State()}, nil
	})
}

func (a *API) goTo(c *gin.Context) {
	var req GoToRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.InvalidArgument("%v", err))
		return
	}

	a.withSession(c, func(s *session.Session) (any, error) {
		if err := s.GoTo(*req.Index); err != nil {
			return nil, err
		}
		return s.State(), nil
	})
}

func (a *API) next(c *gin.Context) {
	a.withSession(c, func(s *session.Session) (any, error) {
		moved := s.Next()
		return ChangeResponse{Changed: moved, State: s.State()}, nil
	})
}

func (a *API) previous(c *gin.Context) {
	a.withSession(c, func(s *session.Session) (any, error) {
		moved := s.Previous()
		return ChangeResponse{Changed: moved, State: s.State()}, nil
	})
}

func (a *API) restart(c *gin.Context) {
	a.withSession(c, func(s *session.Session) (any, error) {
		if err := s.Restart(); err != nil {
			return nil, err
		}
		return s.State(), nil
	})
}

func (a *API) redoMistakesInSession(c *gin.Context) {
	a.withSession(c, func(s *session.Session) (any, error) {
		if err := s.RedoMistakes(); err != nil {
			return nil, err
		}
		return s.State(), nil
	})
}

func (a *API) finish(c *gin.Context) {
	r, err := a.app.Finish(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}

func (a *API) result(c *gin.Context) {
	r, err := a.app.Result(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}

func (a *API) retake(c *gin.Context) {
	a.renderSession(c)(a.app.RetakeAll(c.Request.Context()))
}

func (a *API) redoMistakes(c *gin.Context) {
	a.renderSession(c)(a.app.RedoMistakes(c.Request.Context()))
}

func (a *API) redoFlagged(c *gin.Context) {
	a.renderSession(c)(a.app.RedoFlagged(c.Request.Context()))
}

func (a *API) saveFlagged(c *gin.Context) {
	saved, err := a.app.SaveFlagged(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"saved": saved,
		"state": a.app.State(),
	})
}

func (a *API) withSession(c *gin.Context, f func(s *session.Session) (any, error)) {
	s, err := a.app.Session()
	if err != nil {
		renderError(c, err)
		return
	}

	resp, err := f(s)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) renderSession(c *gin.Context) func(*session.Session, error) {
	return func(s *session.Session, err error) {
		if err != nil {
			renderError(c, err)
			return
		}

		c.JSON(http.StatusOK, s.State())
	}
}

// bindOptionalJSON decodes the request body into v when there is one.
func bindOptionalJSON(c *gin.Context, v any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}

	if err := c.ShouldBindJSON(v); err != nil {
		return errors.InvalidArgument("invalid request body: %v", err)
	}

	return nil
}

func renderError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		_ = c.Error(err)
		c.AbortWithStatusJSON(e.HTTPStatusCode(), errors.New(errors.CodeInternal))
		return
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
