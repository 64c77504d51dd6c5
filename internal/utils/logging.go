package utils

import (
	"io"
	"log"
	"os"
)

type Logger struct {
	l *log.Logger
}

func NewLogger() *Logger {
	return &Logger{l: log.New(os.Stdout, "", log.LstdFlags|log.Lshortfile)}
}

// SetOutput redirects the logger; tests capture output through it.
func (lg *Logger) SetOutput(w io.Writer) { lg.l.SetOutput(w) }

func (lg *Logger) Info(msg string, kv ...any)  { lg.l.Println(append([]any{"INFO:", msg}, kv...)...) }
func (lg *Logger) Warn(msg string, kv ...any)  { lg.l.Println(append([]any{"WARN:", msg}, kv...)...) }
func (lg *Logger) Error(msg string, kv ...any) { lg.l.Println(append([]any{"ERROR:", msg}, kv...)...) }
