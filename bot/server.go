package bot

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// UpdateDecoder reads one Telegram update from a webhook request.
// tgbotapi.BotAPI.HandleUpdate satisfies it.
type UpdateDecoder func(r *http.Request) (*tgbotapi.Update, error)

// RouterConfig controls the HTTP surface.
type RouterConfig struct {
	// WebhookPath is served only when Decode is set.
	WebhookPath string
	Decode      UpdateDecoder
	Updates     chan<- tgbotapi.Update
	Debug       bool
}

// NewRouter serves health checks and, in webhook mode, Telegram updates.
func NewRouter(cfg RouterConfig, log *zap.Logger) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(requestLogger(log), gin.Recovery())

	ok := func(c *gin.Context) { c.String(http.StatusOK, "ok") }
	r.GET("/", ok)
	r.GET("/health", ok)
	r.GET("/healthz", ok)

	if cfg.Decode != nil {
		r.POST(cfg.WebhookPath, func(c *gin.Context) {
			update, err := cfg.Decode(c.Request)
			if err != nil {
				log.Warn("bad webhook update", zap.Error(err))
				c.AbortWithStatus(http.StatusBadRequest)
				return
			}
			select {
			case cfg.Updates <- *update:
				c.Status(http.StatusOK)
			case <-c.Request.Context().Done():
				c.AbortWithStatus(http.StatusServiceUnavailable)
			}
		})
	}
	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

// Serve runs handler on listen:port until ctx is done.
func Serve(ctx context.Context, listen string, port int, handler http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(listen, strconv.Itoa(port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
