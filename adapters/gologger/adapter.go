// Package gologger resolves the service logger and bridges it to the go-job
// logging contracts used by the queue worker path.
package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Resolve names a logger after the service using the precedence
// provider > logger > nop. Construction sites call it once so every
// component logs through the same resolved instance.
func Resolve(serviceName string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(serviceName, provider, logger)
}

// ToJobProvider maps a glog provider to the go-job logger provider contract.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a glog logger to the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// WorkerLoggers resolves the service logger and returns it alongside its
// go-job counterpart, ready to hand to a queue worker.
func WorkerLoggers(serviceName string, provider glog.LoggerProvider, logger glog.Logger) (glog.Logger, job.Logger) {
	_, resolved := Resolve(serviceName, provider, logger)
	return resolved, ToJobLogger(resolved)
}
