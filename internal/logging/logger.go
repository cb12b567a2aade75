package logging

import (
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogLevel определяет уровни логирования
type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel разбирает имя уровня из конфигурации
func ParseLevel(name string) (LogLevel, error) {
	switch name {
	case "trace", "TRACE":
		return TRACE, nil
	case "debug", "DEBUG":
		return DEBUG, nil
	case "", "info", "INFO":
		return INFO, nil
	case "warn", "WARN":
		return WARN, nil
	case "error", "ERROR":
		return ERROR, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", name)
}

// Logger представляет систему логирования одного компонента
type Logger struct {
	component       string
	consoleLogger   *log.Logger
	fileLogger      *log.Logger
	file            *os.File
	minConsoleLevel LogLevel
	minFileLevel    LogLevel
	mu              sync.Mutex
}

// Директория для файлов логов. Пустая строка отключает запись в файл.
var logDir = ""

var defaultLogger = &Logger{
	consoleLogger:   log.New(os.Stdout, "", log.LstdFlags),
	minConsoleLevel: INFO,
	minFileLevel:    TRACE,
}

// SetLogDir задаёт каталог, в который пишутся файлы логов
func SetLogDir(dir string) {
	logDir = dir
}

// NewLogger создаёт логгер компонента. Если задан каталог логов,
// дополнительно открывает файл <component>_<timestamp>.log.
func NewLogger(component string) (*Logger, error) {
	l := &Logger{
		component:       component,
		consoleLogger:   log.New(os.Stdout, "", log.LstdFlags),
		minConsoleLevel: defaultLogger.minConsoleLevel,
		minFileLevel:    TRACE,
	}

	if logDir == "" {
		return l, nil
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории %s: %w", logDir, err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := filepath.Join(logDir, fmt.Sprintf("%s_%s.log", component, timestamp))

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания файла логов: %w", err)
	}

	l.file = file
	l.fileLogger = log.New(file, "", log.LstdFlags)
	return l, nil
}

// NewWriterLogger создаёт логгер, пишущий в произвольный writer (используется в тестах)
func NewWriterLogger(component string, w io.Writer, level LogLevel) *Logger {
	return &Logger{
		component:       component,
		consoleLogger:   log.New(w, "", 0),
		minConsoleLevel: level,
		minFileLevel:    ERROR + 1,
	}
}

// InitDefaultLogger инициализирует глобальный логгер приложения
func InitDefaultLogger(component string) error {
	l, err := NewLogger(component)
	if err != nil {
		return err
	}
	defaultLogger = l
	return nil
}

// CloseDefaultLogger закрывает глобальный логгер
func CloseDefaultLogger() {
	_ = defaultLogger.Close()
}

// SetConsoleLevel меняет минимальный уровень вывода в консоль для глобального логгера
func SetConsoleLevel(level LogLevel) {
	defaultLogger.SetLevel(level)
}

// SetLevel меняет минимальный уровень вывода в консоль
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	l.minConsoleLevel = level
	l.mu.Unlock()
}

// Enabled сообщает, будет ли записано сообщение указанного уровня
func (l *Logger) Enabled(level LogLevel) bool {
	if l == nil {
		return false
	}
	return level >= l.minConsoleLevel || (l.fileLogger != nil && level >= l.minFileLevel)
}

// Close закрывает файл логов, если он был открыт
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.fileLogger = nil
	return err
}

func (l *Logger) Trace(format string, args ...interface{}) { l.logMessage(TRACE, format, args...) }
func (l *Logger) Debug(format string, args ...interface{}) { l.logMessage(DEBUG, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.logMessage(INFO, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.logMessage(WARN, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.logMessage(ERROR, format, args...) }

// logMessage внутренняя функция для логирования
func (l *Logger) logMessage(level LogLevel, format string, args ...interface{}) {
	if l == nil || !l.Enabled(level) {
		return
	}

	message := fmt.Sprintf(format, args...)
	if l.component != "" {
		message = fmt.Sprintf("[%s] [%s] %s", level.String(), l.component, message)
	} else {
		message = fmt.Sprintf("[%s] %s", level.String(), message)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// В файл пишем все уровни начиная с minFileLevel
	if l.fileLogger != nil && level >= l.minFileLevel {
		l.fileLogger.Println(message)
	}
	if level >= l.minConsoleLevel {
		l.consoleLogger.Println(message)
	}
}

// Функции глобального логгера

func Trace(format string, args ...interface{}) { defaultLogger.Trace(format, args...) }
func Debug(format string, args ...interface{}) { defaultLogger.Debug(format, args...) }
func Info(format string, args ...interface{})  { defaultLogger.Info(format, args...) }
func Warn(format string, args ...interface{})  { defaultLogger.Warn(format, args...) }
func Error(format string, args ...interface{}) { defaultLogger.Error(format, args...) }

// HexDump создает hex дамп данных
func HexDump(data []byte) string {
	if len(data) == 0 {
		return "No data"
	}

	// Ограничиваем размер дампа до 256 байт
	size := len(data)
	if size > 256 {
		size = 256
	}

	return hex.Dump(data[:size])
}

// LogProtocolError логирует ошибку разбора пакета от удалённого узла
func (l *Logger) LogProtocolError(peer string, err error, data []byte) {
	l.Debug("Protocol error from %s: %v", peer, err)
	if len(data) > 0 && l.Enabled(TRACE) {
		l.Trace("Raw data (%d bytes):\n%s", len(data), HexDump(data))
	}
}
