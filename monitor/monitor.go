package monitor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/allape/gogger"
	"github.com/allape/hypercap/grabber/delivery"
	"github.com/allape/hypercap/grabber/dispatcher"
	"github.com/allape/hypercap/grabber/handler"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var l = gogger.New("monitor")

const DefaultInterval = time.Second

type Status struct {
	State    string           `json:"state"`
	Output   string           `json:"output,omitempty"`
	Capture  dispatcher.Stats `json:"capture"`
	Delivery delivery.Stats   `json:"delivery"`
	Handler  handler.Stats    `json:"handler"`
	Time     time.Time        `json:"time"`
}

type StatusFunc func() Status

type Options struct {
	Path     string
	Cors     bool
	Interval time.Duration
}

// Server
// Exposes the pipeline counters over http, GET /status once
// and the websocket path every Interval.
type Server struct {
	engine   *gin.Engine
	upgrader websocket.Upgrader
	status   StatusFunc

	Interval time.Duration
}

func New(status StatusFunc, options Options) *Server {
	if options.Interval <= 0 {
		options.Interval = DefaultInterval
	}
	if options.Path == "" {
		options.Path = "/ws"
	}

	s := &Server{
		engine:   gin.New(),
		status:   status,
		Interval: options.Interval,
	}

	s.engine.Use(gin.Recovery())

	if options.Cors {
		s.engine.Use(cors.Default())
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			return true
		}
	}

	s.engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.status())
	})
	s.engine.GET(options.Path, s.stream)

	return s
}

func (s *Server) stream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Println("upgrade:", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		if err := conn.WriteJSON(s.status()); err != nil {
			l.Verbose().Println("websocket write:", err)
			return
		}

		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe blocks until ctx is done or the listener fails
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}

	errs := make(chan error, 1)
	go func() {
		l.Info().Println("monitor listening on", addr)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		err := server.Shutdown(shutdown)
		if serveErr := <-errs; !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return err
	}
}
