package service

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pwannenmacher/ConfReview/internal/metrics"
)

// Options carries the collaborators shared by all workflow services
type Options struct {
	Now     func() time.Time
	NewID   func() string
	Metrics metrics.Recorder
	Logger  *slog.Logger
	// SaveRetries bounds reload-and-retry loops for commutative updates
	SaveRetries int
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NopRecorder{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.SaveRetries < 1 {
		o.SaveRetries = 3
	}
	return o
}
