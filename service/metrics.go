package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for extraction and mirror operations.
type Observer interface {
	RecordExtraction(duration time.Duration, images int, err error)
	RecordImageSkipped()
	RecordMirror(provider string, duration time.Duration, sizeBytes int64, err error)
	RecordCleanup(err error)
}

// PrometheusObserver exports service metrics to Prometheus.
type PrometheusObserver struct {
	extractions     *prometheus.CounterVec
	extractDuration prometheus.Histogram
	imagesExtracted prometheus.Counter
	imagesSkipped   prometheus.Counter
	mirrorDuration  *prometheus.HistogramVec
	mirrorFailures  *prometheus.CounterVec
	mirrorBytes     *prometheus.CounterVec
	cleanupFailures prometheus.Counter
}

// NewPrometheusObserver registers the service metrics on reg.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "pdfimages"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var err error
	o := &PrometheusObserver{}
	if o.extractions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "extractions_total",
		Help:      "Document extractions by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if o.extractDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "extraction_duration_seconds",
		Help:      "Latency of a full document extraction.",
		Buckets:   prometheus.DefBuckets,
	})); err != nil {
		return nil, err
	}
	if o.imagesExtracted, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "images_extracted_total",
		Help:      "Images written to the output directory.",
	})); err != nil {
		return nil, err
	}
	if o.imagesSkipped, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "images_skipped_total",
		Help:      "Images written but not found afterwards.",
	})); err != nil {
		return nil, err
	}
	if o.mirrorDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "mirror_duration_seconds",
		Help:      "Latency of remote mirror uploads.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})); err != nil {
		return nil, err
	}
	if o.mirrorFailures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mirror_failures_total",
		Help:      "Remote mirror uploads that failed.",
	}, []string{"provider"})); err != nil {
		return nil, err
	}
	if o.mirrorBytes, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mirror_uploaded_bytes_total",
		Help:      "Bytes successfully uploaded to the remote mirror.",
	}, []string{"provider"})); err != nil {
		return nil, err
	}
	if o.cleanupFailures, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "temp_cleanup_failures_total",
		Help:      "Temporary documents that could not be deleted.",
	})); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *PrometheusObserver) RecordExtraction(duration time.Duration, images int, err error) {
	if o == nil {
		return
	}
	o.extractDuration.Observe(duration.Seconds())
	if err != nil {
		o.extractions.WithLabelValues("error").Inc()
		return
	}
	o.extractions.WithLabelValues("success").Inc()
	o.imagesExtracted.Add(float64(images))
}

func (o *PrometheusObserver) RecordImageSkipped() {
	if o == nil {
		return
	}
	o.imagesSkipped.Inc()
}

func (o *PrometheusObserver) RecordMirror(provider string, duration time.Duration, sizeBytes int64, err error) {
	if o == nil {
		return
	}
	o.mirrorDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if err != nil {
		o.mirrorFailures.WithLabelValues(provider).Inc()
		return
	}
	o.mirrorBytes.WithLabelValues(provider).Add(float64(sizeBytes))
}

func (o *PrometheusObserver) RecordCleanup(err error) {
	if o == nil || err == nil {
		return
	}
	o.cleanupFailures.Inc()
}

// register adds c to reg, reusing an identical collector that is already
// registered (a second observer on the default registry).
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register service metric: %w", err)
	}
	return c, nil
}

type nopObserver struct{}

func (nopObserver) RecordExtraction(time.Duration, int, error) {}

func (nopObserver) RecordImageSkipped() {}

func (nopObserver) RecordMirror(string, time.Duration, int64, error) {}

func (nopObserver) RecordCleanup(error) {}
