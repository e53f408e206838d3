package profiling

import (
	"context"
	"runtime"

	"progression-engine/pkg/config"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("profiling", fx.Invoke(ProvideProfiling))

func profileTypes(contention bool) []pyroscope.ProfileType {
	types := []pyroscope.ProfileType{
		pyroscope.ProfileCPU,
		pyroscope.ProfileAllocObjects,
		pyroscope.ProfileAllocSpace,
		pyroscope.ProfileInuseObjects,
		pyroscope.ProfileInuseSpace,
		pyroscope.ProfileGoroutines,
	}
	if contention {
		types = append(types,
			pyroscope.ProfileMutexCount,
			pyroscope.ProfileMutexDuration,
			pyroscope.ProfileBlockCount,
			pyroscope.ProfileBlockDuration,
		)
	}
	return types
}

// ProvideProfiling starts continuous profiling when PYROSCOPE.ADDR is set.
func ProvideProfiling(lc fx.Lifecycle, c *config.Config) error {
	if c.Pyroscope.Addr == "" {
		return nil
	}

	if c.Pyroscope.Contention {
		runtime.SetMutexProfileFraction(5)
		runtime.SetBlockProfileRate(5)
	}

	zap.L().Info("starting pyroscope",
		zap.String("app_name", c.AppName),
		zap.String("pyroscope_addr", c.Pyroscope.Addr),
		zap.Bool("contention", c.Pyroscope.Contention),
	)
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName:   c.AppName,
		ServerAddress:     c.Pyroscope.Addr,
		BasicAuthUser:     c.Pyroscope.BasicAuthUser,
		BasicAuthPassword: c.Pyroscope.BasicAuthPass,
		ProfileTypes:      profileTypes(c.Pyroscope.Contention),
		Tags: map[string]string{
			"service_name": c.AppName,
			"env":          c.AppEnv,
			"version":      c.AppVersion,
		},
	})
	if err != nil {
		zap.L().Error("failed to start pyroscope", zap.Error(err))
		return err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return profiler.Stop()
		},
	})
	return nil
}
