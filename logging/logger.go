package logging

import (
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var RootLogger zerolog.Logger = zerolog.New(
	zerolog.NewConsoleWriter(
		func(w *zerolog.ConsoleWriter) { w.Out = os.Stderr },
		func(w *zerolog.ConsoleWriter) { w.TimeFormat = "15:04:05.000" })).Level(zerolog.InfoLevel).
	With().Timestamp().Logger()

// WithFile returns a logger writing the console stream to stderr plus a JSON
// copy to a size-rotated file.
func WithFile(path string) zerolog.Logger {
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 3,
	}
	console := zerolog.NewConsoleWriter(
		func(w *zerolog.ConsoleWriter) { w.Out = os.Stderr },
		func(w *zerolog.ConsoleWriter) { w.TimeFormat = "15:04:05.000" })
	return zerolog.New(zerolog.MultiLevelWriter(console, file)).Level(zerolog.InfoLevel).
		With().Timestamp().Logger()
}
