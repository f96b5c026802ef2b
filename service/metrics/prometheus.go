package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

var (
	Service = fx.Provide(New)

	ErrOddTags = errors.New("tags must be a multiplier of 2")
)

type Params struct {
	fx.In

	ServiceName string                `name:"serviceName"`
	Registerer  prometheus.Registerer `optional:"true"`
}

type PromMetric struct {
	service            string
	registerer         prometheus.Registerer
	histogramCollector sync.Map
	counterCollector   sync.Map
	gaugeCollector     sync.Map
	mutex              sync.Mutex
}

func New(p Params) Metrics {
	registerer := p.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &PromMetric{
		service:    p.ServiceName,
		registerer: registerer,
	}
}

// loadOrRegister returns the collector stored under id, creating and registering
// it with build on first use.
func (p *PromMetric) loadOrRegister(store *sync.Map, id string, build func() prometheus.Collector) (prometheus.Collector, error) {
	// First check without a lock
	if collector, ok := store.Load(id); ok {
		return collector.(prometheus.Collector), nil
	}

	// Lock to handle concurrent registrations
	p.mutex.Lock()
	defer p.mutex.Unlock()

	// Double-check after acquiring the lock
	if collector, ok := store.Load(id); ok {
		return collector.(prometheus.Collector), nil
	}

	collector := build()
	if err := p.registerer.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		collector = are.ExistingCollector
	}

	store.Store(id, collector)
	return collector, nil
}

func (p *PromMetric) BumpTime(key string, tags ...string) (Endable, error) {
	if len(tags)%2 != 0 {
		return nil, ErrOddTags
	}

	keyArr, _ := tagsToKeyAndVals(tags)
	collector, err := p.loadOrRegister(&p.histogramCollector, p.service+key, func() prometheus.Collector {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.service,
			Name:      key,
		}, keyArr)
	})
	if err != nil {
		return nil, err
	}

	duration := collector.(*prometheus.HistogramVec)
	observer, err := duration.GetMetricWith(tagsToLabels(tags))
	if err != nil {
		return nil, err
	}
	return &promTimer{
		timer: prometheus.NewTimer(observer),
	}, nil
}

func (p *PromMetric) BumpCount(key string, val float64, tags ...string) error {
	if len(tags)%2 != 0 {
		return ErrOddTags
	}

	keyArr, _ := tagsToKeyAndVals(tags)
	collector, err := p.loadOrRegister(&p.counterCollector, p.service+key, func() prometheus.Collector {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.service,
			Name:      key,
		}, keyArr)
	})
	if err != nil {
		return err
	}

	counter, err := collector.(*prometheus.CounterVec).GetMetricWith(tagsToLabels(tags))
	if err != nil {
		return err
	}
	counter.Add(val)
	return nil
}

func (p *PromMetric) SetGauge(key string, val float64, tags ...string) error {
	if len(tags)%2 != 0 {
		return ErrOddTags
	}

	keyArr, _ := tagsToKeyAndVals(tags)
	collector, err := p.loadOrRegister(&p.gaugeCollector, p.service+key, func() prometheus.Collector {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.service,
			Name:      key,
		}, keyArr)
	})
	if err != nil {
		return err
	}

	gauge, err := collector.(*prometheus.GaugeVec).GetMetricWith(tagsToLabels(tags))
	if err != nil {
		return err
	}
	gauge.Set(val)
	return nil
}

func tagsToKeyAndVals(tags []string) ([]string, []string) {
	keyArr := []string{}
	valArr := []string{}

	if len(tags)%2 != 0 {
		return keyArr, valArr
	}

	for i := 0; i < len(tags); i += 2 {
		keyArr = append(keyArr, tags[i])
		valArr = append(valArr, tags[i+1])
	}

	return keyArr, valArr
}

func tagsToLabels(tags []string) prometheus.Labels {
	newLabels := prometheus.Labels{}

	for i := 0; i+1 < len(tags); i += 2 {
		newLabels[tags[i]] = tags[i+1]
	}
	return newLabels
}

type promTimer struct {
	timer *prometheus.Timer
}

func (p *promTimer) End() {
	p.timer.ObserveDuration()
}
