package common

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/status-im/status-escrow/logutils"
)

func IsNil(i interface{}) bool {
	if i == nil {
		return true
	}
	switch reflect.TypeOf(i).Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice:
		return reflect.ValueOf(i).IsNil()
	}
	return false
}

// LogOnPanic logs the recovered value with a stack trace and re-panics.
// Deferred at the top of every goroutine the escrow core starts.
func LogOnPanic() {
	if err := recover(); err != nil {
		logutils.ZapLogger().Error("panic in goroutine", zap.Any("error", err), zap.Stack("stacktrace"))
		panic(err)
	}
}
