package log

import "strings"

type LogLevel int

const (
	Debug LogLevel = iota
	Info
	Warn
	Error
)

func (l LogLevel) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Parse maps a level name to its LogLevel, defaulting to Info for
// anything unrecognized.
func Parse(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return Debug
	case "INFO":
		return Info
	case "WARN":
		return Warn
	case "ERROR":
		return Error
	default:
		return Info
	}
}

func color(l LogLevel) string {
	switch l {
	case Debug:
		return "\033[34m"
	case Info:
		return "\033[32m"
	case Warn:
		return "\033[33m"
	case Error:
		return "\033[31m"
	default:
		return "\033[0m"
	}
}
