// Package server exposes the attendance controller, the ledger and the label tool over HTTP.
package server

import (
	"context"
	"embed"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/andresmejia3/rollcall/internal/labels"
	"github.com/andresmejia3/rollcall/internal/pipeline"
	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

//go:embed static
var static embed.FS

// MaxUpload bounds label image uploads.
const MaxUpload = 10 << 20

// Attendance is the part of the pipeline controller the server drives.
type Attendance interface {
	Start() (string, error)
	Stop() error
	Status() pipeline.Status
}

// Records is the ledger view served for download.
type Records interface {
	Path() string
	Snapshot() []types.AttendanceRecord
}

// LabelReader reads and optionally files a label image.
type LabelReader interface {
	Extract(ctx context.Context, img []byte) (labels.Result, error)
	Save(row labels.Row) error
	WorkbookPath() string
}

// Config wires the server. Feed and Labels are optional.
type Config struct {
	Attendance Attendance
	Records    Records
	Feed       http.HandlerFunc
	Labels     LabelReader
}

type Server struct {
	cfg Config
}

func New(cfg Config) *Server {
	return &Server{cfg: cfg}
}

// Handler builds the gin router.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.Use(cors.New(cors.Config{
		AllowMethods:     []string{"GET", "POST", "HEAD"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "X-Requested-With", "Connection", "Upgrade"},
		AllowCredentials: false,
		AllowAllOrigins:  true,
		MaxAge:           12 * time.Hour,
	}))

	page, _ := fs.Sub(static, "static")
	r.GET("/", func(c *gin.Context) {
		c.FileFromFS("/", http.FS(page))
	})

	r.GET("/start-attendance", s.start)
	r.GET("/stop-attendance", s.stop)
	r.GET("/download-attendance", s.download)
	r.GET("/status", s.status)
	r.GET("/attendance", s.snapshot)

	if s.cfg.Feed != nil {
		r.GET("/ws", gin.WrapF(s.cfg.Feed))
	}
	if s.cfg.Labels != nil {
		r.POST("/api/labels", s.label)
		r.GET("/api/labels/workbook", s.workbook)
	}
	return r
}

func (s *Server) start(c *gin.Context) {
	id, err := s.cfg.Attendance.Start()
	switch {
	case errors.Is(err, pipeline.ErrAlreadyRunning):
		c.String(http.StatusOK, "Attendance is already running.")
	case err != nil:
		slog.Error("server: start failed", "err", err)
		c.String(http.StatusInternalServerError, "Failed to start attendance: %v", err)
	default:
		slog.Info("server: attendance started", "run", id)
		c.String(http.StatusOK, "Attendance started.")
	}
}

func (s *Server) stop(c *gin.Context) {
	err := s.cfg.Attendance.Stop()
	switch {
	case errors.Is(err, pipeline.ErrNotRunning):
		c.String(http.StatusOK, "Attendance is not running.")
	case err != nil:
		slog.Error("server: stop failed", "err", err)
		c.String(http.StatusInternalServerError, "Failed to stop attendance: %v", err)
	default:
		c.String(http.StatusOK, "Attendance stopped.")
	}
}

func (s *Server) download(c *gin.Context) {
	path := s.cfg.Records.Path()
	if _, err := os.Stat(path); err != nil {
		c.String(http.StatusNotFound, "No attendance recorded yet.")
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

func (s *Server) workbook(c *gin.Context) {
	path := s.cfg.Labels.WorkbookPath()
	if _, err := os.Stat(path); err != nil {
		c.String(http.StatusNotFound, "No labels saved yet.")
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Attendance.Status())
}

func (s *Server) snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Records.Snapshot())
}

// label accepts a multipart "image" field or a raw image body.
// ?save=false returns the fields without touching the workbook.
func (s *Server) label(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUpload)

	img, err := readImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.cfg.Labels.Extract(c.Request.Context(), img)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	if c.DefaultQuery("save", "true") != "false" {
		if err := s.cfg.Labels.Save(res.Row); err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, labels.ErrWorkbookLocked) {
				code = http.StatusConflict
			}
			c.JSON(code, gin.H{"error": err.Error(), "result": res})
			return
		}
	}
	c.JSON(http.StatusOK, res)
}

func readImage(c *gin.Context) ([]byte, error) {
	if fh, err := c.FormFile("image"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	}

	img, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	if len(img) == 0 {
		return nil, errors.New("empty image")
	}
	return img, nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("server: request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"took", time.Since(start),
		)
	}
}
