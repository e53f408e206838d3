package logger

import (
	"context"
	"os"
	"path/filepath"

	"progression-engine/pkg/config"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var Module = fx.Module("zap",
	fx.Provide(
		New,
	),
)

type ConfigParams struct {
	fx.In
	Cfg *config.Config
}

func New(p ConfigParams) *zap.Logger {

	log := zap.Must(zap.NewDevelopment())
	if p.Cfg != nil && p.Cfg.AppEnv == "production" {
		log = zap.New(zapcore.NewTee(cores(p.Cfg)...), zap.AddCaller())
	} else if p.Cfg != nil && p.Cfg.Log.Path != "" {
		log = log.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore(p.Cfg, zapcore.DebugLevel))
		}))
	}

	if p.Cfg != nil {
		log = log.With(
			zap.String("env", p.Cfg.AppEnv),
			zap.String("service_name", p.Cfg.AppName),
		)
	}

	zap.ReplaceGlobals(log)

	return log
}

func encoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.StacktraceKey = "stacktrace"
	ec.LevelKey = "severity"
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	ec.CallerKey = "caller"
	ec.EncodeCaller = zapcore.ShortCallerEncoder
	return ec
}

func cores(cfg *config.Config) []zapcore.Core {
	level := parseLevel(cfg.Log.Level)
	out := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.Lock(os.Stdout), level),
	}
	if cfg.Log.Path != "" {
		out = append(out, fileCore(cfg, level))
	}
	return out
}

func fileCore(cfg *config.Config, level zapcore.Level) zapcore.Core {
	_ = os.MkdirAll(filepath.Dir(cfg.Log.Path), 0o755)
	lj := &lumberjack.Logger{
		Filename:   cfg.Log.Path,
		MaxSize:    nz(cfg.Log.MaxSizeMB, 100),
		MaxBackups: nz(cfg.Log.MaxBackups, 3),
		MaxAge:     nz(cfg.Log.MaxAgeDays, 7),
		Compress:   cfg.Log.Compress,
	}
	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(lj), level)
}

func parseLevel(s string) zapcore.Level {
	level, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

func nz(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// TraceFields returns trace_id and span_id of the active span, if any.
func TraceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

// Ctx returns the global logger annotated with the active span.
func Ctx(ctx context.Context) *zap.Logger {
	return zap.L().With(TraceFields(ctx)...)
}
