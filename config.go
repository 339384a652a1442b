package holdfast

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NitishJha0207/holdfast/bus"
	"github.com/NitishJha0207/holdfast/kv"
	"github.com/NitishJha0207/holdfast/respcache"
	"github.com/NitishJha0207/holdfast/session"
)

// config holds the internal configuration assembled via functional options.
type config struct {
	logger     *zap.Logger
	durable    kv.Store
	ephemeral  kv.Store
	backend    session.Backend
	bus        *bus.Publisher
	caches     *respcache.Registry
	registerer prometheus.Registerer
	tracer     trace.TracerProvider
	renewEvery time.Duration
	cacheTTL   time.Duration
	pagesMax   int
	dataMax    int
	assetsMax  int
	recordsMax int
}
