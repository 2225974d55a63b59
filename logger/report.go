package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type counterStat struct {
	count int64
	bytes int64
}

var (
	errorsVenue    int64
	errorsCapture  int64
	warnsVenue     int64
	warnsCapture   int64
	venueFetches   int64
	staleDrops     int64
	captureFlushes int64
	counters       sync.Map // map[string]*counterStat
)

func recordWarn(component string) {
	if strings.Contains(component, "venue") || strings.Contains(component, "aggregator") {
		atomic.AddInt64(&warnsVenue, 1)
	} else if strings.Contains(component, "capture") {
		atomic.AddInt64(&warnsCapture, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "venue") || strings.Contains(component, "aggregator") {
		atomic.AddInt64(&errorsVenue, 1)
	} else if strings.Contains(component, "capture") {
		atomic.AddInt64(&errorsCapture, 1)
	}
}

// IncrementVenueFetch counts one completed venue request of the given payload size.
func IncrementVenueFetch(venue string, size int) {
	atomic.AddInt64(&venueFetches, 1)
	recordCounter("venue_"+venue, size)
}

// IncrementStaleDrop counts a quote discarded by the freshness filter.
func IncrementStaleDrop(venue string) {
	atomic.AddInt64(&staleDrops, 1)
	recordCounter("stale_"+venue, 0)
}

// IncrementCaptureFlush counts one capture batch flush of the given size.
func IncrementCaptureFlush(size int64) {
	atomic.AddInt64(&captureFlushes, 1)
	recordCounter("capture_flush", int(size))
}

func recordCounter(name string, size int) {
	v, _ := counters.LoadOrStore(name, &counterStat{})
	cs := v.(*counterStat)
	atomic.AddInt64(&cs.count, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

// StartReport begins periodic logging of runtime and counter statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	counterData := map[string]map[string]int64{}
	counters.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*counterStat)
		counterData[name] = map[string]int64{
			"count": atomic.LoadInt64(&cs.count),
			"bytes": atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	fields := Fields{
		"errors_venue":    atomic.LoadInt64(&errorsVenue),
		"errors_capture":  atomic.LoadInt64(&errorsCapture),
		"warns_venue":     atomic.LoadInt64(&warnsVenue),
		"warns_capture":   atomic.LoadInt64(&warnsCapture),
		"venue_fetches":   atomic.LoadInt64(&venueFetches),
		"stale_drops":     atomic.LoadInt64(&staleDrops),
		"capture_flushes": atomic.LoadInt64(&captureFlushes),
		"goroutines":      runtime.NumGoroutine(),
		"counters":        counterData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("VenueFetches"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&venueFetches)))},
		{MetricName: aws.String("StaleDrops"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&staleDrops)))},
		{MetricName: aws.String("CaptureFlushes"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&captureFlushes)))},
		{MetricName: aws.String("VenueErrors"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsVenue)))},
		{MetricName: aws.String("Goroutines"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(runtime.NumGoroutine()))},
	}

	for name, stats := range counterData {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String("CounterMessages"),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{{Name: aws.String("Counter"), Value: aws.String(name)}},
			Value:      aws.Float64(float64(stats["count"])),
		})
	}

	publishMetrics(ctx, data)
}
