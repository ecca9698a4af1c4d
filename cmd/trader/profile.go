package main

import (
	"eventtrader/internal/ops"

	"github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

type profileLogger struct{}

func (profileLogger) Infof(format string, args ...interface{})  { logs.Debugf(format, args...) }
func (profileLogger) Debugf(format string, args ...interface{}) { logs.Debugf(format, args...) }
func (profileLogger) Errorf(format string, args ...interface{}) { logs.Warnf(format, args...) }

func startProfiler(cfg ops.ProfilingConfig) (stop func(), err error) {
	if !cfg.Enabled {
		return func() {}, nil
	}
	name := cfg.ApplicationName
	if name == "" {
		name = "eventtrader"
	}
	addr := cfg.ServerAddress
	if addr == "" {
		addr = "http://localhost:4040"
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: name,
		ServerAddress:   addr,
		Logger:          profileLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "start pyroscope")
	}
	return func() {
		_ = profiler.Stop()
	}, nil
}
