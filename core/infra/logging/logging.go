package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

const (
	envLogFormat = "FILEGATE_LOG_FORMAT"
	envLogLevel  = "FILEGATE_LOG_LEVEL"
)

var (
	logFormatOnce sync.Once
	logAsJSON     bool
	logDebug      bool
)

func jsonEnabled() bool {
	logFormatOnce.Do(initLogEnv)
	return logAsJSON
}

func debugEnabled() bool {
	logFormatOnce.Do(initLogEnv)
	return logDebug
}

func initLogEnv() {
	logAsJSON = strings.EqualFold(strings.TrimSpace(os.Getenv(envLogFormat)), "json")
	logDebug = strings.EqualFold(strings.TrimSpace(os.Getenv(envLogLevel)), "debug")
}

// Info logs a message with key/value fields using a consistent prefix.
func Info(component, msg string, kv ...interface{}) {
	emit("INFO", component, msg, kv...)
}

// Error logs an error message with key/value fields using a consistent prefix.
func Error(component, msg string, kv ...interface{}) {
	emit("ERROR", component, msg, kv...)
}

// Debug logs only when FILEGATE_LOG_LEVEL=debug.
func Debug(component, msg string, kv ...interface{}) {
	if !debugEnabled() {
		return
	}
	emit("DEBUG", component, msg, kv...)
}

func emit(level, component, msg string, kv ...interface{}) {
	if jsonEnabled() {
		payload := map[string]any{
			"level":     level,
			"component": component,
			"msg":       msg,
		}
		for i := 0; i+1 < len(kv); i += 2 {
			payload[strings.TrimSpace(toString(kv[i]))] = toString(kv[i+1])
		}
		if len(kv)%2 != 0 {
			payload[strings.TrimSpace(toString(kv[len(kv)-1]))] = "(missing)"
		}
		data, err := json.Marshal(payload)
		if err == nil {
			log.Print(string(data))
			return
		}
	}
	if level == "INFO" {
		log.Printf("[%s] %s%s", strings.ToUpper(component), msg, formatFields(kv...))
		return
	}
	log.Printf("[%s] %s %s%s", strings.ToUpper(component), level, msg, formatFields(kv...))
}

func formatFields(kv ...interface{}) string {
	if len(kv) == 0 {
		return ""
	}
	if len(kv)%2 != 0 {
		kv = append(kv, "(missing)")
	}
	var b strings.Builder
	b.WriteString(" ")
	for i := 0; i < len(kv); i += 2 {
		if i > 0 {
			b.WriteString(" ")
		}
		key := kv[i]
		val := kv[i+1]
		b.WriteString(strings.TrimSpace(toString(key)))
		b.WriteString("=")
		b.WriteString(toString(val))
	}
	return b.String()
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		return strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(strings.TrimSpace(fmt.Sprintf("%v", t)), "\n", " "), "\t", " "))
	}
}
