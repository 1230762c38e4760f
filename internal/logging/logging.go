package logging

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level  string
	Format string
}

var (
	baseLogger *zap.Logger
	sugar      *zap.SugaredLogger
	daemonID   atomic.Value
	eventSeq   uint64
)

func init() {
	baseLogger = zap.NewNop()
	sugar = baseLogger.Sugar()
}

func InitFromEnv() error {
	cfg := Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
	}
	return Init(cfg)
}

func Init(cfg Config) error {
	level := strings.ToLower(strings.TrimSpace(cfg.Level))
	if level == "" {
		level = "info"
	}

	format := strings.ToLower(strings.TrimSpace(cfg.Format))
	if format == "" {
		format = "console"
	}

	var zapCfg zap.Config
	switch format {
	case "json":
		zapCfg = zap.NewProductionConfig()
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s", cfg.Format)
	}

	atomLevel := zap.NewAtomicLevel()
	if err := atomLevel.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %s", cfg.Level)
	}
	zapCfg.Level = atomLevel

	logger, err := zapCfg.Build(
		zap.AddCaller(),
		zap.AddCallerSkip(1),
	)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	baseLogger = logger
	sugar = logger.Sugar()
	return nil
}

func Sync() {
	if baseLogger != nil {
		_ = baseLogger.Sync()
	}
}

// SetDaemonID 设置本次进程运行的标识，所有日志都会带上
func SetDaemonID(id string) {
	if strings.TrimSpace(id) == "" {
		return
	}
	daemonID.Store(id)
}

func NewDaemonID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "daemon-unknown"
	}
	return hex.EncodeToString(buf)
}

// NextEvent 事件循环每处理一个操作调用一次
func NextEvent() uint64 {
	return atomic.AddUint64(&eventSeq, 1)
}

func Debugf(format string, args ...interface{}) {
	withFields().Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	withFields().Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	withFields().Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	withFields().Errorf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	withFields().Fatalf(format, args...)
}

// Logger 组件日志，字段在每次调用时计算，event_seq 总是最新值
type Logger struct {
	component string
}

// Named 返回带 component 字段的组件日志
func Named(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.sugared().Debugf(format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.sugared().Infof(format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.sugared().Warnf(format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.sugared().Errorf(format, args...)
}

func (l *Logger) sugared() *zap.SugaredLogger {
	return withFields().With("component", l.component)
}

func withFields() *zap.SugaredLogger {
	did, _ := daemonID.Load().(string)
	if did == "" {
		did = "daemon-unknown"
	}
	seq := atomic.LoadUint64(&eventSeq)
	return sugar.With(
		"daemon_id", did,
		"event_seq", seq,
		"log_id", fmt.Sprintf("%s-%d", did, seq),
	)
}
