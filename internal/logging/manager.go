package logging

import (
	"fmt"
	"sort"
	"sync"
)

// Компоненты, для которых заводятся отдельные логгеры (и файлы логов)
const (
	ComponentNetwork = "network"
	ComponentServer  = "server"
	ComponentGame    = "game"
	ComponentClient  = "client"
	ComponentStorage = "storage"
)

// LoggerManager хранит логгеры компонентов; один логгер на имя
type LoggerManager struct {
	mu      sync.RWMutex
	loggers map[string]*Logger
}

var (
	globalManager *LoggerManager
	managerOnce   sync.Once
)

// GetLoggerManager возвращает глобальный менеджер логгеров
func GetLoggerManager() *LoggerManager {
	managerOnce.Do(func() {
		globalManager = &LoggerManager{loggers: make(map[string]*Logger)}
	})
	return globalManager
}

// GetLogger возвращает логгер компонента, создавая его при первом обращении
func (lm *LoggerManager) GetLogger(component string) (*Logger, error) {
	lm.mu.RLock()
	logger, ok := lm.loggers[component]
	lm.mu.RUnlock()
	if ok {
		return logger, nil
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()
	if logger, ok := lm.loggers[component]; ok {
		return logger, nil
	}
	logger, err := NewLogger(component)
	if err != nil {
		return nil, fmt.Errorf("logger %s: %w", component, err)
	}
	lm.loggers[component] = logger
	return logger, nil
}

// MustGetLogger как GetLogger, но при ошибке открытия файла возвращает
// логгер только с консольным выводом
func (lm *LoggerManager) MustGetLogger(component string) *Logger {
	logger, err := lm.GetLogger(component)
	if err == nil {
		return logger
	}
	defaultLogger.Warn("Файл лога %s не открыт: %v", component, err)

	lm.mu.Lock()
	defer lm.mu.Unlock()
	if logger, ok := lm.loggers[component]; ok {
		return logger
	}
	logger = &Logger{
		component:       component,
		consoleLogger:   defaultLogger.consoleLogger,
		minConsoleLevel: defaultLogger.minConsoleLevel,
		minFileLevel:    ERROR + 1,
	}
	lm.loggers[component] = logger
	return logger
}

// Components имена созданных логгеров
func (lm *LoggerManager) Components() []string {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	names := make([]string, 0, len(lm.loggers))
	for name := range lm.loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CloseAll закрывает файлы всех логгеров и забывает их
func (lm *LoggerManager) CloseAll() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var lastErr error
	for component, logger := range lm.loggers {
		if err := logger.Close(); err != nil {
			lastErr = fmt.Errorf("logger %s: %w", component, err)
		}
	}
	lm.loggers = make(map[string]*Logger)
	return lastErr
}

// SetAllLevels меняет уровень консольного вывода всех созданных логгеров.
// Логгеры, созданные позже, берут уровень глобального логгера.
func (lm *LoggerManager) SetAllLevels(level LogLevel) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	for _, logger := range lm.loggers {
		logger.SetLevel(level)
	}
}

func GetComponentLogger(component string) *Logger {
	return GetLoggerManager().MustGetLogger(component)
}

func GetNetworkLogger() *Logger { return GetComponentLogger(ComponentNetwork) }
func GetServerLogger() *Logger  { return GetComponentLogger(ComponentServer) }
func GetGameLogger() *Logger    { return GetComponentLogger(ComponentGame) }
func GetClientLogger() *Logger  { return GetComponentLogger(ComponentClient) }
func GetStorageLogger() *Logger { return GetComponentLogger(ComponentStorage) }
