// Package metrics считает события лотереи в Prometheus и отдаёт их по HTTP.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const namespace = "lottery_bot"

// Metrics — счётчики лотереи. Реализует lottery.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	entries      *prometheus.CounterVec
	adsWatched   prometheus.Counter
	referrals    prometheus.Counter
	referralGift prometheus.Counter
	draws        *prometheus.CounterVec
	drawSize     *prometheus.HistogramVec
}

// New создаёт отдельный реестр со счётчиками лотереи и стандартными коллекторами.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_total",
			Help:      "Выданные билеты по источнику.",
		}, []string{"source"}),
		adsWatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ads_watched_total",
			Help:      "Просмотры рекламы с начислением кредита.",
		}),
		referrals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "referrals_applied_total",
			Help:      "Применённые реферальные коды.",
		}),
		referralGift: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "referral_entries_total",
			Help:      "Билеты, выданные владельцам кодов.",
		}),
		draws: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draws_total",
			Help:      "Проведённые розыгрыши по типу лотереи.",
		}, []string{"kind"}),
		drawSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "draw_participants",
			Help:      "Число участников в розыгрыше.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.entries,
		m.adsWatched,
		m.referrals,
		m.referralGift,
		m.draws,
		m.drawSize,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// EntryRecorded считает выданный билет по источнику (payment, ad, referral).
func (m *Metrics) EntryRecorded(source string) {
	m.entries.WithLabelValues(source).Inc()
}

// AdWatched считает засчитанный просмотр рекламы.
func (m *Metrics) AdWatched() {
	m.adsWatched.Inc()
}

// ReferralApplied считает применённый код и подаренные владельцу билеты.
func (m *Metrics) ReferralApplied(entriesGranted int) {
	m.referrals.Inc()
	m.referralGift.Add(float64(entriesGranted))
}

// LotteryClosed считает розыгрыш и размер его пула участников.
func (m *Metrics) LotteryClosed(kind string, participants, winners int) {
	m.draws.WithLabelValues(kind).Inc()
	m.drawSize.WithLabelValues(kind).Observe(float64(participants))
	log.WithFields(log.Fields{
		"kind":         kind,
		"participants": participants,
		"winners":      winners,
	}).Debug("Розыгрыш учтён в метриках")
}

// Router отдаёт /metrics и /healthz.
func (m *Metrics) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return r
}

// Server — HTTP-сервер метрик.
type Server struct {
	srv *http.Server
}

// NewServer создаёт сервер на addr.
func NewServer(addr string, m *Metrics) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           m.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start слушает в фоне. Ошибка запуска только логируется: бот работает и без метрик.
func (s *Server) Start() {
	go func() {
		log.WithField("addr", s.srv.Addr).Info("Сервер метрик запущен")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Сервер метрик остановлен с ошибкой")
		}
	}()
}

// Shutdown останавливает сервер.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
