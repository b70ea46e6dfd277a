package analytics

import (
	"os"

	"github.com/mohitkumar/strand/engine"
	"github.com/mohitkumar/strand/model"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ ThreadDataCollector = new(LogFileDataCollector)

// LogFileDataCollector writes one JSON line per thread event.
type LogFileDataCollector struct {
	fileName string
	file     *os.File
	logger   *zap.Logger
}

func NewLogFileDataCollector(fileName string) (*LogFileDataCollector, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.StacktraceKey = ""
	encoderConfig.CallerKey = ""
	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)
	logFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	writer := zapcore.AddSync(logFile)
	core := zapcore.NewCore(fileEncoder, writer, zapcore.InfoLevel)
	return &LogFileDataCollector{
		fileName: fileName,
		file:     logFile,
		logger:   zap.New(core),
	}, nil
}

func threadFields(thread *model.ActivityThread) []zap.Field {
	return []zap.Field{
		zap.Int("activity", thread.ActivityID),
		zap.String("domain", thread.DomainID),
		zap.String("definition", thread.DefinitionName),
		zap.String("version", thread.DefinitionVersion),
		zap.String("action", thread.CurrentAction),
	}
}

func (lc *LogFileDataCollector) OnSpawn(thread *model.ActivityThread) {
	lc.logger.Info("spawn", threadFields(thread)...)
}

func (lc *LogFileDataCollector) OnStatusChange(thread *model.ActivityThread, from model.Status) {
	fields := append(threadFields(thread), zap.String("from", from.String()), zap.String("to", thread.Status.String()))
	if thread.Status == model.FAIL {
		reason, _ := thread.ContextVar(model.FailReasonVar)
		fields = append(fields, zap.Any("reason", reason))
	}
	lc.logger.Info("status", fields...)
}

func (lc *LogFileDataCollector) OnRepair(thread *model.ActivityThread, cause engine.RepairCause, problem string) {
	lc.logger.Info("repair", append(threadFields(thread), zap.String("cause", string(cause)), zap.String("problem", problem))...)
}

func (lc *LogFileDataCollector) OnScheduleError(thread *model.ActivityThread, err error) {
	lc.logger.Info("schedule_error", append(threadFields(thread), zap.Error(err))...)
}

func (lc *LogFileDataCollector) Close() error {
	_ = lc.logger.Sync()
	return lc.file.Close()
}
