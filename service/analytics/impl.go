package analytics

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/smallhouse123/go-analytics/service/config"
	"github.com/smallhouse123/go-analytics/service/metrics"
	"github.com/smallhouse123/go-analytics/service/session"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	Service = fx.Provide(New)
)

const (
	FlushIntervalKey = "ANALYTICS_FLUSH_INTERVAL"
	WriteTimeoutKey  = "ANALYTICS_WRITE_TIMEOUT"
	MaxBufferedKey   = "ANALYTICS_MAX_BUFFERED"
	SessionScopeKey  = "ANALYTICS_SESSION_SCOPE"
	PageURLKey       = "ANALYTICS_PAGE_URL"
	UserAgentKey     = "ANALYTICS_USER_AGENT"

	DefaultFlushInterval = 30 * time.Second
	DefaultWriteTimeout  = 10 * time.Second
	DefaultUserAgent     = "go-analytics"
)

type state int

const (
	stateNew state = iota
	stateRunning
	stateStopped
)

type Params struct {
	fx.In

	Sink      Sink
	Config    config.Config
	Metrics   metrics.Metrics
	Logger    *zap.Logger
	Session   session.Session `optional:"true"`
	Lifecycle fx.Lifecycle    `optional:"true"`
}

type Impl struct {
	sink    Sink
	session session.Session
	metrics metrics.Metrics
	logger  *zap.Logger

	flushInterval time.Duration
	writeTimeout  time.Duration
	maxBuffered   int
	sessionScope  string
	pageURL       string
	userAgent     string

	mu        sync.Mutex
	buffer    []Event
	sessionID string
	state     state

	// flushMu keeps a single batch in flight so a retried batch stays ahead of newer events
	flushMu sync.Mutex
	// lifecycleMu serializes Start and Shutdown
	lifecycleMu sync.Mutex

	flushChan chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	now       func() time.Time
}

func New(p Params) Analytics {
	im := &Impl{
		sink:          p.Sink,
		session:       p.Session,
		metrics:       p.Metrics,
		logger:        p.Logger.Named("analytics").With(zap.String("sink", p.Sink.Name())),
		flushInterval: config.GetDuration(p.Config, FlushIntervalKey, DefaultFlushInterval),
		writeTimeout:  config.GetDuration(p.Config, WriteTimeoutKey, DefaultWriteTimeout),
		maxBuffered:   config.GetInt(p.Config, MaxBufferedKey, 0),
		sessionScope:  config.GetString(p.Config, SessionScopeKey, ""),
		pageURL:       config.GetString(p.Config, PageURLKey, ""),
		userAgent:     config.GetString(p.Config, UserAgentKey, DefaultUserAgent),
		flushChan:     make(chan struct{}, 1),
		done:          make(chan struct{}),
		now:           time.Now,
	}
	if im.flushInterval <= 0 {
		im.flushInterval = DefaultFlushInterval
	}
	if im.writeTimeout <= 0 {
		im.writeTimeout = DefaultWriteTimeout
	}

	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStart: im.Start,
			OnStop:  im.Shutdown,
		})
	}
	return im
}

func (im *Impl) Track(ctx context.Context, data EventData) {
	if data == nil {
		return
	}

	evt := Event{
		Type:       data.EventType(),
		Data:       data,
		PageURL:    im.pageURL,
		UserAgent:  im.userAgent,
		SessionID:  sessionFrom(ctx),
		RecordedAt: im.now(),
	}
	if p, ok := pageFrom(ctx); ok {
		evt.PageURL = p.url
		if p.userAgent != "" {
			evt.UserAgent = p.userAgent
		}
	}

	im.mu.Lock()
	if im.state == stateStopped {
		im.mu.Unlock()
		im.logger.Debug("dropping event tracked after shutdown", zap.String("event_type", string(evt.Type)))
		im.count("events_dropped", 1, "reason", "closed")
		return
	}
	if evt.SessionID == "" {
		evt.SessionID = im.sessionID
	}
	im.buffer = append(im.buffer, evt)
	dropped := im.trimLocked()
	size := len(im.buffer)
	im.mu.Unlock()

	im.count("events_tracked", 1, "event_type", string(evt.Type))
	im.reportDropped(dropped)
	im.gauge(size)

	if evt.Type == EventPageView {
		im.kick()
	}
}

func (im *Impl) TrackPageView(ctx context.Context, path, title string) {
	im.Track(ctx, PageView{Path: path, Title: title})
}

func (im *Impl) TrackUserInteraction(ctx context.Context, action, element string, details map[string]string) {
	im.Track(ctx, UserInteraction{Action: action, Element: element, Details: details})
}

func (im *Impl) TrackFormSubmission(ctx context.Context, formType string, success bool) {
	im.Track(ctx, FormSubmission{FormType: formType, Success: success})
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func (im *Impl) TrackError(ctx context.Context, err error, where string) {
	if err == nil {
		return
	}
	report := ErrorReport{Message: err.Error(), Context: where}
	if st, ok := err.(stackTracer); ok {
		report.Stack = fmt.Sprintf("%+v", st.StackTrace())
	}
	im.Track(ctx, report)
}

// kick asks the flush loop for an immediate flush. Pending kicks coalesce.
func (im *Impl) kick() {
	select {
	case im.flushChan <- struct{}{}:
	default:
	}
}

func (im *Impl) Flush(ctx context.Context) error {
	im.flushMu.Lock()
	defer im.flushMu.Unlock()

	im.mu.Lock()
	batch := im.buffer
	im.buffer = nil
	im.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	if timer, err := im.metrics.BumpTime("flush_duration", "sink", im.sink.Name()); err == nil {
		defer timer.End()
	}
	err := im.sink.Write(ctx, batch)
	if err == nil {
		im.gauge(im.Len())
		im.count("flush_total", 1, "result", "success")
		im.count("events_flushed", float64(len(batch)))
		im.logger.Debug("flushed analytics batch",
			zap.Int("count", len(batch)),
			zap.Duration("latency", time.Since(start)),
		)
		return nil
	}

	im.mu.Lock()
	requeued := make([]Event, 0, len(batch)+len(im.buffer))
	requeued = append(requeued, batch...)
	requeued = append(requeued, im.buffer...)
	im.buffer = requeued
	dropped := im.trimLocked()
	size := len(im.buffer)
	im.mu.Unlock()

	im.count("flush_total", 1, "result", "failure")
	im.reportDropped(dropped)
	im.gauge(size)
	im.logger.Error("failed to flush analytics batch, will retry",
		zap.Int("count", len(batch)),
		zap.Int("buffered", size),
		zap.Duration("latency", time.Since(start)),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %s: %w", ErrSinkWrite, im.sink.Name(), err)
}

// trimLocked drops the oldest events above maxBuffered and returns how many went.
func (im *Impl) trimLocked() int {
	if im.maxBuffered <= 0 || len(im.buffer) <= im.maxBuffered {
		return 0
	}
	n := len(im.buffer) - im.maxBuffered
	im.buffer = append([]Event(nil), im.buffer[n:]...)
	return n
}

func (im *Impl) Start(ctx context.Context) error {
	im.lifecycleMu.Lock()
	defer im.lifecycleMu.Unlock()

	im.mu.Lock()
	st := im.state
	im.mu.Unlock()
	switch st {
	case stateRunning:
		return nil
	case stateStopped:
		return ErrClosed
	}

	sessionID, err := im.resolveSession(ctx)
	if err != nil {
		return err
	}

	im.mu.Lock()
	im.sessionID = sessionID
	for i := range im.buffer {
		if im.buffer[i].SessionID == "" {
			im.buffer[i].SessionID = sessionID
		}
	}
	im.state = stateRunning
	im.mu.Unlock()

	im.wg.Add(1)
	go im.flushLoop()

	im.logger.Info("analytics client started",
		zap.String("session_id", sessionID),
		zap.Duration("flush_interval", im.flushInterval),
		zap.Int("max_buffered", im.maxBuffered),
	)
	return nil
}

func (im *Impl) resolveSession(ctx context.Context) (string, error) {
	if im.session == nil {
		return uuid.New().String(), nil
	}
	id, err := im.session.Resolve(ctx, im.sessionScope)
	if err != nil {
		return "", errors.Wrap(err, "resolve analytics session")
	}
	return id, nil
}

func (im *Impl) flushLoop() {
	defer im.wg.Done()

	ticker := time.NewTicker(im.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-im.flushChan:
			im.backgroundFlush("page_view")
		case <-ticker.C:
			im.backgroundFlush("interval")
		case <-im.done:
			return
		}
	}
}

// backgroundFlush flushes on behalf of the loop. Failures are already logged and re-queued.
func (im *Impl) backgroundFlush(trigger string) {
	ctx, cancel := context.WithTimeout(context.Background(), im.writeTimeout)
	defer cancel()

	im.logger.Debug("flush triggered", zap.String("trigger", trigger))
	_ = im.Flush(ctx)
}

func (im *Impl) Shutdown(ctx context.Context) error {
	im.lifecycleMu.Lock()
	defer im.lifecycleMu.Unlock()

	im.mu.Lock()
	st := im.state
	im.state = stateStopped
	im.mu.Unlock()

	if st == stateStopped {
		return nil
	}
	if st == stateRunning {
		close(im.done)
		im.wg.Wait()
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, im.writeTimeout)
		defer cancel()
	}

	err := im.Flush(ctx)
	im.logger.Info("analytics client stopped", zap.Int("unsent", im.Len()))
	return err
}

func (im *Impl) Pending() []Event {
	im.mu.Lock()
	defer im.mu.Unlock()

	pending := make([]Event, len(im.buffer))
	copy(pending, im.buffer)
	return pending
}

func (im *Impl) Len() int {
	im.mu.Lock()
	defer im.mu.Unlock()
	return len(im.buffer)
}

func (im *Impl) SessionID() string {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.sessionID
}

func (im *Impl) reportDropped(n int) {
	if n == 0 {
		return
	}
	im.count("events_dropped", float64(n), "reason", "overflow")
	im.logger.Warn("analytics buffer full, dropped oldest events",
		zap.Int("dropped", n),
		zap.String("max_buffered", strconv.Itoa(im.maxBuffered)),
	)
}

func (im *Impl) count(key string, val float64, tags ...string) {
	if err := im.metrics.BumpCount(key, val, tags...); err != nil {
		im.logger.Debug("metric update failed", zap.String("metric", key), zap.Error(err))
	}
}

func (im *Impl) gauge(size int) {
	if err := im.metrics.SetGauge("buffer_size", float64(size)); err != nil {
		im.logger.Debug("metric update failed", zap.String("metric", "buffer_size"), zap.Error(err))
	}
}
