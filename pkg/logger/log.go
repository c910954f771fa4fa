package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"
)

type LogLevel int

const (
	VERBOSE LogLevel = iota
	DEBUG
	INFO
	SUCCESS
	NEW
	REMOVE
	STOP
	WARNING
	ERROR
	FATAL
)

var minLevel atomic.Int32

func init() {
	minLevel.Store(int32(INFO))
}

// SetMinLoggingLevel changes the lowest level which will be emitted
// by all loggers. Messages below this level are discarded.
func SetMinLoggingLevel(level int) {
	minLevel.Store(int32(level))
}

func (e LogLevel) Level() int { return int(e) }

func (e LogLevel) String() string {
	return []string{
		"V",
		"D",
		"I",
		"✓",
		"+",
		"-",
		"X",
		"!",
		"!!",
		"PANIC",
	}[e]
}

func (e LogLevel) Color() *color.Color {
	return []*color.Color{
		color.New(color.FgWhite, color.Italic),                //Verbose
		color.New(color.FgWhite, color.Italic),                //Debug
		color.New(color.FgWhite),                              //Info
		color.New(color.FgHiGreen),                            //Success
		color.New(color.FgGreen, color.Italic),                //New
		color.New(color.FgYellow, color.Italic),               //Remove
		color.New(color.FgHiYellow),                           //Stop
		color.New(color.FgYellow, color.Underline),            //Warning
		color.New(color.FgHiRed, color.Bold),                  //Error
		color.New(color.FgHiRed, color.Bold, color.Underline), //PANIC
	}[e]
}

type Logger interface {
	Emit(LogLevel, string, ...any)
	Verbosef(string, ...any)
	Debugf(string, ...any)
	Infof(string, ...any)
	Successf(string, ...any)
	Warnf(string, ...any)
	Errorf(string, ...any)

	// Printf and Fatalf allow a Logger to be handed to libraries
	// which expect the standard library logging shape (e.g. goose).
	Printf(string, ...any)
	Fatalf(string, ...any)
}

type loggerImpl struct {
	name string
}

func (l *loggerImpl) Emit(status LogLevel, message string, interpolations ...any) {
	Log.Emit(status, l.name, message, interpolations...)
}

func (l *loggerImpl) Verbosef(m string, v ...any) { l.Emit(VERBOSE, m, v...) }
func (l *loggerImpl) Debugf(m string, v ...any)   { l.Emit(DEBUG, m, v...) }
func (l *loggerImpl) Infof(m string, v ...any)    { l.Emit(INFO, m, v...) }
func (l *loggerImpl) Successf(m string, v ...any) { l.Emit(SUCCESS, m, v...) }
func (l *loggerImpl) Warnf(m string, v ...any)    { l.Emit(WARNING, m, v...) }
func (l *loggerImpl) Errorf(m string, v ...any)   { l.Emit(ERROR, m, v...) }
func (l *loggerImpl) Printf(m string, v ...any)   { l.Emit(INFO, m, v...) }
func (l *loggerImpl) Fatalf(m string, v ...any) {
	l.Emit(FATAL, m, v...)
	os.Exit(1)
}

type LoggerManager interface {
	GetLogger(string) Logger
	Emit(LogLevel, string, string, ...any)
	SetOutput(io.Writer)
}

var Log LoggerManager = &loggerMgr{
	offset: 0,
	out:    color.Output,
}

type loggerMgr struct {
	sync.Mutex
	offset int
	out    io.Writer
}

func (l *loggerMgr) GetLogger(name string) Logger {
	return &loggerImpl{name: name}
}

func (l *loggerMgr) SetOutput(w io.Writer) {
	l.Lock()
	defer l.Unlock()
	l.out = w
}

func (l *loggerMgr) Emit(status LogLevel, name string, message string, interpolations ...any) {
	if int32(status) < minLevel.Load() {
		return
	}

	l.Lock()
	defer l.Unlock()

	if len(name) > l.offset {
		l.offset = len(name)
	}
	padding := strings.Repeat(" ", l.offset-len(name))
	msg := fmt.Sprintf("[%s] %s(%s) %s", name, padding, status, fmt.Sprintf(message, interpolations...))
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}

	status.Color().Fprint(l.out, msg)
}

func Get(name string) Logger {
	return Log.GetLogger(name)
}
