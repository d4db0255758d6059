package otel

import (
	"net/http"
	"time"
)

func isSuccess(status int, err error) bool {
	return err == nil && status > 0 && status < http.StatusBadRequest
}

func mustInstrument[T any](instrument T, err error) T {
	if err != nil {
		panic(err)
	}
	return instrument
}

// millis returns the duration in milliseconds, the unit of all histograms.
func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
