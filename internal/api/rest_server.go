package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/iso-game/internal/eventbus"
	"github.com/annel0/iso-game/internal/logging"
	"github.com/annel0/iso-game/internal/middleware"
	"github.com/annel0/iso-game/internal/server"
)

// GameState источник состояния игрового сервера
type GameState interface {
	Stats() server.Stats
	Peers() []server.PeerInfo
}

// Config содержит конфигурацию REST сервера
type Config struct {
	Port     string               // адрес для запуска, например ":8088"
	Game     GameState            // состояние сервера
	Registry *prometheus.Registry // реестр метрик для /metrics
	Bus      eventbus.EventBus    // необязательно: последние события в /api/events
	Events   int                  // размер буфера событий
}

// GenericResponse общий формат ответа
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RestServer отдаёт состояние сервера по HTTP
type RestServer struct {
	router  *gin.Engine
	game    GameState
	port    string
	metrics *ProcessMetrics
	http    *http.Server
	log     *logging.Logger

	mu     sync.Mutex
	events []*eventbus.Envelope
	maxEv  int
	sub    eventbus.Subscription
}

// NewRestServer создает REST API сервер
func NewRestServer(config Config) (*RestServer, error) {
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	if config.Events <= 0 {
		config.Events = 100
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("game_api"))
	router.Use(middleware.NewRequestLogger(logging.GetServerLogger()).Handler())
	router.Use(middleware.NewPrometheusMiddleware("game_api", config.Registry).Handler())
	middleware.RegisterMetricsEndpoint(router, config.Registry)

	rs := &RestServer{
		router:  router,
		game:    config.Game,
		port:    config.Port,
		metrics: NewProcessMetrics(),
		maxEv:   config.Events,
		log:     logging.GetServerLogger(),
	}

	if config.Bus != nil {
		sub, err := config.Bus.Subscribe(context.Background(), eventbus.Filter{}, rs.recordEvent)
		if err != nil {
			return nil, err
		}
		rs.sub = sub
	}

	rs.setupRoutes()
	return rs, nil
}

// Router возвращает gin.Engine (для тестов)
func (rs *RestServer) Router() *gin.Engine { return rs.router }

func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	{
		api.GET("/stats", rs.handleStats)
		api.GET("/peers", rs.handlePeers)
		api.GET("/events", rs.handleEvents)
	}
}

// Start запускает HTTP сервер в отдельной горутине
func (rs *RestServer) Start() {
	rs.http = &http.Server{Addr: rs.port, Handler: rs.router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		rs.log.Info("🌐 REST API доступен по адресу %s", rs.port)
		if err := rs.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rs.log.Error("Ошибка REST API сервера: %v", err)
		}
	}()
}

// Stop останавливает HTTP сервер и отписывается от событий
func (rs *RestServer) Stop(ctx context.Context) error {
	if rs.sub != nil {
		rs.sub.Unsubscribe()
	}
	if rs.http == nil {
		return nil
	}
	return rs.http.Shutdown(ctx)
}

func (rs *RestServer) recordEvent(ctx context.Context, ev *eventbus.Envelope) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.events = append(rs.events, ev)
	if over := len(rs.events) - rs.maxEv; over > 0 {
		rs.events = append(rs.events[:0], rs.events[over:]...)
	}
}

func (rs *RestServer) handleHealth(c *gin.Context) {
	stats := rs.game.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"session": stats.SessionID,
		"frame":   stats.Frame,
	})
}

func (rs *RestServer) handleStats(c *gin.Context) {
	stats := rs.game.Stats()
	cpuPercent, _ := rs.metrics.CPUPercent()
	rssMB, _ := rs.metrics.RSSMegabytes()

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data: gin.H{
			"game": stats,
			"tick_ms": float64(stats.LastTick) / float64(time.Millisecond),
			"server": gin.H{
				"uptime":      rs.metrics.Uptime(),
				"cpu_percent": cpuPercent,
				"rss_mb":      rssMB,
				"server_time": time.Now().Unix(),
			},
			"memory": rs.metrics.MemoryStats(),
		},
	})
}

func (rs *RestServer) handlePeers(c *gin.Context) {
	peers := rs.game.Peers()
	if peers == nil {
		peers = []server.PeerInfo{}
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Подключённые клиенты",
		Data:    peers,
	})
}

func (rs *RestServer) handleEvents(c *gin.Context) {
	limit := rs.maxEv
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный параметр limit"})
			return
		}
		limit = n
	}

	rs.mu.Lock()
	events := rs.events
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	out := make([]*eventbus.Envelope, len(events))
	copy(out, events)
	rs.mu.Unlock()

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Последние события",
		Data:    out,
	})
}
